// Package pptx reads and writes the parts of a PowerPoint package needed to
// append full-slide movie shapes: presentation, slides, layouts, media,
// relationships and content types. Parts it does not understand are kept
// byte for byte.
package pptx

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ErrNoLayout is returned when the package has no slide layouts at all.
var ErrNoLayout = errors.New("presentation has no slide layouts")

// blankLayoutIndex is the position of the blank layout in the stock Office
// master, used when no layout declares type="blank".
const blankLayoutIndex = 6

// Presentation is an OPC package held in memory.
type Presentation struct {
	parts    map[string][]byte
	ct       *xmlContentTypes
	doc      *etree.Document // ppt/presentation.xml
	rels     *xmlRelationships
	slides   []*Slide
	media    map[string]string // sha1 of content -> part name
	nextID   int               // next free shape id
	template string
}

// New creates an empty presentation from the built-in blank template.
func New() (*Presentation, error) {
	parts, err := blankParts()
	if err != nil {
		return nil, err
	}
	return load(parts, "blank")
}

// Open reads a .pptx file. Existing slides are kept.
func Open(path string) (*Presentation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return ReadFrom(f, info.Size(), path)
}

// ReadFrom reads a package from r. name is used in error messages.
func ReadFrom(r io.ReaderAt, size int64, name string) (*Presentation, error) {
	parts, err := readParts(r, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return load(parts, name)
}

// NewFromTemplate opens path as the starting package, or the built-in blank
// template when path is empty.
func NewFromTemplate(path string) (*Presentation, error) {
	if path == "" {
		return New()
	}
	return Open(path)
}

func load(parts map[string][]byte, name string) (*Presentation, error) {
	p := &Presentation{
		parts:    parts,
		media:    make(map[string]string),
		nextID:   2, // 1 is the group shape of every slide
		template: name,
	}

	ctData, ok := parts[contentTypesPart]
	if !ok {
		return nil, fmt.Errorf("%s: missing %s", name, contentTypesPart)
	}
	p.ct = &xmlContentTypes{}
	if err := xml.Unmarshal(ctData, p.ct); err != nil {
		return nil, fmt.Errorf("%s: parse content types: %w", name, err)
	}
	p.ct.Xmlns = nsContentTypes

	presData, ok := parts[presentationPart]
	if !ok {
		return nil, fmt.Errorf("%s: missing %s", name, presentationPart)
	}
	p.doc = etree.NewDocument()
	if err := p.doc.ReadFromBytes(presData); err != nil {
		return nil, fmt.Errorf("%s: parse presentation: %w", name, err)
	}
	if p.doc.Root() == nil {
		return nil, fmt.Errorf("%s: empty %s", name, presentationPart)
	}

	rels, err := p.readRels(presentationPart)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	p.rels = rels

	if lst := p.doc.Root().SelectElement("p:sldIdLst"); lst != nil {
		for _, sldID := range lst.SelectElements("p:sldId") {
			rid := sldID.SelectAttrValue("r:id", "")
			rel, ok := rels.byID(rid)
			if !ok {
				return nil, fmt.Errorf("%s: slide relationship %s not found", name, rid)
			}
			s, err := p.loadSlide(resolveTarget(presentationPart, rel.Target))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			p.slides = append(p.slides, s)
		}
	}

	names := make([]string, 0, len(parts))
	for part := range parts {
		if strings.HasPrefix(part, "ppt/media/") {
			names = append(names, part)
		}
	}
	sort.Strings(names)
	for _, part := range names {
		h := hashOf(parts[part])
		if _, seen := p.media[h]; !seen {
			p.media[h] = part
		}
	}
	return p, nil
}

func (p *Presentation) readRels(part string) (*xmlRelationships, error) {
	rels := newRelationships()
	data, ok := p.parts[relsPartFor(part)]
	if !ok {
		return rels, nil
	}
	if err := xml.Unmarshal(data, rels); err != nil {
		return nil, fmt.Errorf("parse %s: %w", relsPartFor(part), err)
	}
	rels.Xmlns = nsRelationships
	return rels, nil
}

func (p *Presentation) loadSlide(part string) (*Slide, error) {
	data, ok := p.parts[part]
	if !ok {
		return nil, fmt.Errorf("missing slide part %s", part)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", part, err)
	}
	rels, err := p.readRels(part)
	if err != nil {
		return nil, err
	}
	s := &Slide{pres: p, part: part, doc: doc, rels: rels}
	for _, id := range s.shapeIDs() {
		if id >= p.nextID {
			p.nextID = id + 1
		}
	}
	return s, nil
}

// Template names where the package came from.
func (p *Presentation) Template() string { return p.template }

// SlideSize returns the slide width and height in EMU.
func (p *Presentation) SlideSize() (int64, int64) {
	sz := p.doc.Root().SelectElement("p:sldSz")
	if sz == nil {
		return DefaultSlideWidth, DefaultSlideHeight
	}
	cx, err1 := strconv.ParseInt(sz.SelectAttrValue("cx", ""), 10, 64)
	cy, err2 := strconv.ParseInt(sz.SelectAttrValue("cy", ""), 10, 64)
	if err1 != nil || err2 != nil {
		return DefaultSlideWidth, DefaultSlideHeight
	}
	return cx, cy
}

// Slides returns the slides in presentation order.
func (p *Presentation) Slides() []*Slide { return p.slides }

// SlideCount returns the number of slides.
func (p *Presentation) SlideCount() int { return len(p.slides) }

// Layouts returns the layout part names of the first master, in master order.
func (p *Presentation) Layouts() ([]string, error) {
	masters := p.rels.byType(RelTypeSlideMaster)
	if len(masters) == 0 {
		return nil, ErrNoLayout
	}
	master := resolveTarget(presentationPart, masters[0].Target)

	data, ok := p.parts[master]
	if !ok {
		return nil, fmt.Errorf("missing master part %s", master)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", master, err)
	}
	mrels, err := p.readRels(master)
	if err != nil {
		return nil, err
	}

	if doc.Root() == nil {
		return nil, fmt.Errorf("empty master part %s", master)
	}

	var layouts []string
	if lst := doc.Root().SelectElement("p:sldLayoutIdLst"); lst != nil {
		for _, el := range lst.SelectElements("p:sldLayoutId") {
			if rel, ok := mrels.byID(el.SelectAttrValue("r:id", "")); ok {
				layouts = append(layouts, resolveTarget(master, rel.Target))
			}
		}
	}
	if len(layouts) == 0 {
		return nil, ErrNoLayout
	}
	return layouts, nil
}

// BlankLayout returns the layout whose type is blank, or the seventh layout
// as in the stock Office master.
func (p *Presentation) BlankLayout() (string, error) {
	layouts, err := p.Layouts()
	if err != nil {
		return "", err
	}
	for _, l := range layouts {
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(p.parts[l]); err != nil {
			return "", fmt.Errorf("parse %s: %w", l, err)
		}
		if root := doc.Root(); root != nil && root.SelectAttrValue("type", "") == "blank" {
			return l, nil
		}
	}
	if len(layouts) > blankLayoutIndex {
		return layouts[blankLayoutIndex], nil
	}
	return layouts[len(layouts)-1], nil
}

// AddSlide appends an empty slide that uses layout.
func (p *Presentation) AddSlide(layout string) (*Slide, error) {
	if _, ok := p.parts[layout]; !ok {
		return nil, fmt.Errorf("unknown layout %s", layout)
	}

	part := p.freeSlidePart()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(fmt.Sprintf(emptySlideXML, nsDrawingML, nsOfficeDocRels, nsPresentationML)); err != nil {
		return nil, err
	}
	s := &Slide{pres: p, part: part, doc: doc, rels: newRelationships()}
	s.rels.add(RelTypeSlideLayout, relativeTarget(part, layout))

	rid := p.rels.add(RelTypeSlide, relativeTarget(presentationPart, part))
	p.appendSlideID(rid)
	p.ct.setOverride(part, ctSlide)

	p.slides = append(p.slides, s)
	return s, nil
}

func (p *Presentation) freeSlidePart() string {
	for n := len(p.slides) + 1; ; n++ {
		part := fmt.Sprintf("ppt/slides/slide%d.xml", n)
		if _, taken := p.parts[part]; taken {
			continue
		}
		if p.slideByPart(part) != nil {
			continue
		}
		return part
	}
}

func (p *Presentation) slideByPart(part string) *Slide {
	for _, s := range p.slides {
		if s.part == part {
			return s
		}
	}
	return nil
}

// appendSlideID adds a p:sldId to p:sldIdLst, creating the list after the
// master id lists when missing.
func (p *Presentation) appendSlideID(rid string) {
	root := p.doc.Root()
	lst := root.SelectElement("p:sldIdLst")
	if lst == nil {
		lst = etree.NewElement("p:sldIdLst")
		idx := 0
		for i, c := range root.ChildElements() {
			switch c.FullTag() {
			case "p:sldMasterIdLst", "p:notesMasterIdLst", "p:handoutMasterIdLst":
				idx = i + 1
			}
		}
		insertChildElementAt(root, lst, idx)
	}

	next := 256
	for _, el := range lst.SelectElements("p:sldId") {
		if n, err := strconv.Atoi(el.SelectAttrValue("id", "")); err == nil && n >= next {
			next = n + 1
		}
	}
	sld := lst.CreateElement("p:sldId")
	sld.CreateAttr("id", strconv.Itoa(next))
	sld.CreateAttr("r:id", rid)
}

// insertChildElementAt inserts child before the idx-th element child of parent.
func insertChildElementAt(parent, child *etree.Element, idx int) {
	elems := parent.ChildElements()
	if idx >= len(elems) {
		parent.AddChild(child)
		return
	}
	parent.InsertChildAt(elems[idx].Index(), child)
}

// addMedia stores data under ppt/media once per distinct content and
// returns the part name.
func (p *Presentation) addMedia(data []byte, prefix, ext, contentType string) string {
	h := hashOf(data)
	if part, ok := p.media[h]; ok {
		return part
	}
	var part string
	for n := 1; ; n++ {
		part = fmt.Sprintf("ppt/media/%s%d.%s", prefix, n, ext)
		if _, taken := p.parts[part]; !taken {
			break
		}
	}
	p.parts[part] = data
	p.media[h] = part
	p.ct.ensureDefault(ext, contentType)
	return part
}

func (p *Presentation) allocShapeID() int {
	id := p.nextID
	p.nextID++
	return id
}

func hashOf(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// WriteTo serializes the package. Identical content gives identical bytes.
func (p *Presentation) WriteTo(w io.Writer) (int64, error) {
	if err := p.flush(); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := writeParts(&buf, p.parts); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

func (p *Presentation) flush() error {
	for _, s := range p.slides {
		data, err := s.doc.WriteToBytes()
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", s.part, err)
		}
		p.parts[s.part] = data
		rels, err := marshalXML(s.rels)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", relsPartFor(s.part), err)
		}
		p.parts[relsPartFor(s.part)] = rels
	}

	data, err := p.doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", presentationPart, err)
	}
	p.parts[presentationPart] = data

	rels, err := marshalXML(p.rels)
	if err != nil {
		return fmt.Errorf("failed to encode presentation rels: %w", err)
	}
	p.parts[relsPartFor(presentationPart)] = rels

	ct, err := marshalXML(p.ct)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", contentTypesPart, err)
	}
	p.parts[contentTypesPart] = ct
	return nil
}

// Save writes the package to a temporary file next to path and renames it
// into place, so path always holds a complete package.
func (p *Presentation) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(buf.Bytes())
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return writeErr
		}
		return closeErr
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Part returns the raw bytes of a part as last loaded or saved.
func (p *Presentation) Part(name string) ([]byte, bool) {
	data, ok := p.parts[strings.TrimPrefix(path.Clean(name), "/")]
	return data, ok
}

const emptySlideXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"><p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr></p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`
