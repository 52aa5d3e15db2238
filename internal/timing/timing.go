// Package timing loads the reference slide animation that makes a movie
// shape autoplay full-screen and rebinds it to a new shape id.
package timing

import (
	"archive/zip"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

//go:embed reference/slide1.xml
var bundled []byte

// ReferenceSlide is the slide part read from a .pptx timing example.
const ReferenceSlide = "ppt/slides/slide1.xml"

// ErrTemplateMismatch means the reference timing tree does not have the
// expected structure.
var ErrTemplateMismatch = errors.New("timing template mismatch")

// Location names one spid attribute inside p:timing. Path is a list of
// prefix:tag[index] steps, where index is the position among element
// children and the tag at that position must match.
type Location struct {
	Name string
	Path string
}

const (
	mainSeqCTn      = "p:tnLst[0]/p:par[0]/p:cTn[0]/p:childTnLst[0]"
	interactiveSeq  = mainSeqCTn + "/p:seq[2]"
	nestedPar       = "/p:par[0]/p:cTn[0]/p:childTnLst[1]"
	cmdTarget       = "/p:cmd[0]/p:cBhvr[0]/p:tgtEl[1]/p:spTgt[0]"
	clickEffectPath = interactiveSeq + "/p:cTn[0]/p:childTnLst[2]/p:par[0]/p:cTn[0]/p:childTnLst[1]" + nestedPar + nestedPar
)

// Locations are the five places that refer to the movie shape.
var Locations = []Location{
	{"MainSequencePlay", mainSeqCTn + "/p:seq[0]/p:cTn[0]/p:childTnLst[0]/p:par[0]/p:cTn[0]/p:childTnLst[1]" + nestedPar + nestedPar + cmdTarget},
	{"FullScreenMedia", mainSeqCTn + "/p:video[1]/p:cMediaNode[0]/p:tgtEl[1]/p:spTgt[0]"},
	{"ClickTrigger", interactiveSeq + "/p:cTn[0]/p:stCondLst[0]/p:cond[0]/p:tgtEl[0]/p:spTgt[0]"},
	{"ClickTogglePause", clickEffectPath + cmdTarget},
	{"ClickAdvance", interactiveSeq + "/p:nextCondLst[1]/p:cond[0]/p:tgtEl[0]/p:spTgt[0]"},
}

// Template holds the raw reference slide. Every Fragment call parses it again,
// so slides never share a tree.
type Template struct {
	source string
	raw    []byte
}

// Load reads the reference slide. An empty path selects the bundled one, a
// .pptx path reads its first slide, anything else is read as slide XML.
func Load(path string) (*Template, error) {
	var (
		raw []byte
		err error
	)
	source := path
	switch {
	case path == "":
		raw, source = bundled, "bundled"
	case strings.EqualFold(filepath.Ext(path), ".pptx"):
		raw, err = readZipPart(path, ReferenceSlide)
	default:
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load timing example %s: %w", path, err)
	}

	t := &Template{source: source, raw: raw}
	if _, err := t.Fragment(); err != nil {
		return nil, err
	}
	return t, nil
}

// Source is the path the template came from, or "bundled".
func (t *Template) Source() string { return t.source }

// Fragment returns a fresh, detached p:timing element.
func (t *Template) Fragment() (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(t.raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateMismatch, t.source, err)
	}
	doc.Indent(etree.NoIndent)

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: %s: empty document", ErrTemplateMismatch, t.source)
	}
	timing := root.SelectElement("p:timing")
	if timing == nil {
		return nil, fmt.Errorf("%w: %s: no p:timing", ErrTemplateMismatch, t.source)
	}
	for _, loc := range Locations {
		if _, err := Resolve(timing, loc.Path); err != nil {
			return nil, fmt.Errorf("%w: %s: %s: %v", ErrTemplateMismatch, t.source, loc.Name, err)
		}
	}
	root.RemoveChild(timing)
	return timing, nil
}

// Bind returns a fresh fragment with every location's spid set to shapeID.
func (t *Template) Bind(shapeID int) (*etree.Element, error) {
	timing, err := t.Fragment()
	if err != nil {
		return nil, err
	}
	id := strconv.Itoa(shapeID)
	for _, loc := range Locations {
		el, _ := Resolve(timing, loc.Path)
		el.CreateAttr("spid", id)
	}
	return timing, nil
}

// Spids reports the spid at every location of a p:timing element.
func Spids(timing *etree.Element) (map[string]string, error) {
	out := make(map[string]string, len(Locations))
	for _, loc := range Locations {
		el, err := Resolve(timing, loc.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateMismatch, loc.Name, err)
		}
		out[loc.Name] = el.SelectAttrValue("spid", "")
	}
	return out, nil
}

// Resolve walks path from el. The final element must carry a spid attribute.
func Resolve(el *etree.Element, path string) (*etree.Element, error) {
	cur := el
	for _, step := range strings.Split(path, "/") {
		tag, idx, err := parseStep(step)
		if err != nil {
			return nil, err
		}
		children := cur.ChildElements()
		if idx >= len(children) {
			return nil, fmt.Errorf("step %s: %s has %d children", step, cur.FullTag(), len(children))
		}
		next := children[idx]
		if next.FullTag() != tag {
			return nil, fmt.Errorf("step %s: found %s", step, next.FullTag())
		}
		cur = next
	}
	if cur.SelectAttr("spid") == nil {
		return nil, fmt.Errorf("%s has no spid", cur.FullTag())
	}
	return cur, nil
}

func parseStep(step string) (string, int, error) {
	open := strings.IndexByte(step, '[')
	if open <= 0 || !strings.HasSuffix(step, "]") {
		return "", 0, fmt.Errorf("bad step %q", step)
	}
	idx, err := strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("bad step index %q", step)
	}
	return step[:open], idx, nil
}

func readZipPart(path, name string) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
}
