package pptx

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Slide is one slide part and its relationships.
type Slide struct {
	pres *Presentation
	part string
	doc  *etree.Document
	rels *xmlRelationships
}

// Movie describes a movie shape found on a slide.
type Movie struct {
	ID     int
	Name   string
	Media  string // part name of the video
	Poster string // part name of the poster image
}

// Part returns the slide part name, e.g. ppt/slides/slide3.xml.
func (s *Slide) Part() string { return s.part }

// Layout returns the part name of the slide's layout.
func (s *Slide) Layout() string {
	for _, rel := range s.rels.byType(RelTypeSlideLayout) {
		return resolveTarget(s.part, rel.Target)
	}
	return ""
}

func (s *Slide) shapeIDs() []int {
	var ids []int
	for _, el := range s.doc.FindElements("//p:cNvPr") {
		if id, err := strconv.Atoi(el.SelectAttrValue("id", "")); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// ShapeIDs returns every shape id on the slide, group shape included.
func (s *Slide) ShapeIDs() []int { return s.shapeIDs() }

// AddMovie embeds clipPath with posterPath as its poster frame and places it
// at the given offset and size (EMU). The returned shape id is unique across
// the presentation.
func (s *Slide) AddMovie(clipPath, posterPath string, x, y, cx, cy int64) (int, error) {
	clip, err := os.ReadFile(clipPath)
	if err != nil {
		return 0, fmt.Errorf("read movie: %w", err)
	}
	poster, err := os.ReadFile(posterPath)
	if err != nil {
		return 0, fmt.Errorf("read poster: %w", err)
	}

	tree := s.doc.FindElement("/p:sld/p:cSld/p:spTree")
	if tree == nil {
		return 0, fmt.Errorf("%s has no shape tree", s.part)
	}

	videoExt := extOf(clipPath, "mp4")
	imageExt := extOf(posterPath, "png")
	mediaPart := s.pres.addMedia(clip, "media", videoExt, videoContentType(videoExt))
	imagePart := s.pres.addMedia(poster, "image", imageExt, imageContentType(imageExt))

	mediaRID := s.rels.add(RelTypeMedia, relativeTarget(s.part, mediaPart))
	videoRID := s.rels.add(RelTypeVideo, relativeTarget(s.part, mediaPart))
	imageRID := s.rels.add(RelTypeImage, relativeTarget(s.part, imagePart))

	id := s.pres.allocShapeID()
	frag := etree.NewDocument()
	err = frag.ReadFromString(fmt.Sprintf(moviePicXML,
		id, xmlEscape(filepath.Base(clipPath)),
		videoRID, nsP14, mediaRID,
		imageRID,
		x, y, cx, cy))
	if err != nil {
		return 0, fmt.Errorf("build movie shape: %w", err)
	}
	tree.AddChild(frag.Root())
	return id, nil
}

// Movies lists the movie shapes on the slide.
func (s *Slide) Movies() []Movie {
	var out []Movie
	for _, pic := range s.doc.FindElements("//p:pic") {
		vf := pic.FindElement("./p:nvPicPr/p:nvPr/a:videoFile")
		if vf == nil {
			continue
		}
		m := Movie{}
		if c := pic.FindElement("./p:nvPicPr/p:cNvPr"); c != nil {
			m.ID, _ = strconv.Atoi(c.SelectAttrValue("id", ""))
			m.Name = c.SelectAttrValue("name", "")
		}
		if rel, ok := s.rels.byID(vf.SelectAttrValue("r:link", "")); ok {
			m.Media = resolveTarget(s.part, rel.Target)
		}
		if blip := pic.FindElement("./p:blipFill/a:blip"); blip != nil {
			if rel, ok := s.rels.byID(blip.SelectAttrValue("r:embed", "")); ok {
				m.Poster = resolveTarget(s.part, rel.Target)
			}
		}
		out = append(out, m)
	}
	return out
}

// Timing returns the slide's p:timing element, or nil.
func (s *Slide) Timing() *etree.Element {
	return s.doc.Root().SelectElement("p:timing")
}

// SetTiming replaces the slide's p:timing with timing. It is placed after
// p:cSld, p:clrMapOvr and p:transition as the schema requires.
func (s *Slide) SetTiming(timing *etree.Element) {
	root := s.doc.Root()
	if old := root.SelectElement("p:timing"); old != nil {
		root.RemoveChild(old)
	}
	idx := 0
	for i, c := range root.ChildElements() {
		switch c.FullTag() {
		case "p:cSld", "p:clrMapOvr", "p:transition":
			idx = i + 1
		}
	}
	insertChildElementAt(root, timing, idx)
}

func extOf(path, fallback string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return fallback
	}
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

func videoContentType(ext string) string {
	switch ext {
	case "mov":
		return "video/quicktime"
	case "webm":
		return "video/webm"
	case "avi":
		return "video/x-msvideo"
	default:
		return "video/mp4"
	}
}

func imageContentType(ext string) string {
	switch ext {
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	default:
		return "image/png"
	}
}

// xmlEscape escapes attribute text.
func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}

const moviePicXML = `<p:pic>
  <p:nvPicPr>
    <p:cNvPr id="%d" name="%s">
      <a:hlinkClick r:id="" action="ppaction://media"/>
    </p:cNvPr>
    <p:cNvPicPr>
      <a:picLocks noChangeAspect="1"/>
    </p:cNvPicPr>
    <p:nvPr>
      <a:videoFile r:link="%s"/>
      <p:extLst>
        <p:ext uri="` + mediaExtURI + `">
          <p14:media xmlns:p14="%s" r:embed="%s"/>
        </p:ext>
      </p:extLst>
    </p:nvPr>
  </p:nvPicPr>
  <p:blipFill>
    <a:blip r:embed="%s"/>
    <a:stretch>
      <a:fillRect/>
    </a:stretch>
  </p:blipFill>
  <p:spPr>
    <a:xfrm>
      <a:off x="%d" y="%d"/>
      <a:ext cx="%d" cy="%d"/>
    </a:xfrm>
    <a:prstGeom prst="rect">
      <a:avLst/>
    </a:prstGeom>
  </p:spPr>
</p:pic>`
