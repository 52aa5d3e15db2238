package pptx

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewBlank(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.SlideCount() != 0 {
		t.Errorf("Expected 0 slides, got %d", p.SlideCount())
	}
	cx, cy := p.SlideSize()
	if cx != DefaultSlideWidth || cy != DefaultSlideHeight {
		t.Errorf("unexpected slide size %dx%d", cx, cy)
	}
	layout, err := p.BlankLayout()
	if err != nil {
		t.Fatal(err)
	}
	if layout != "ppt/slideLayouts/slideLayout1.xml" {
		t.Errorf("unexpected blank layout %s", layout)
	}
}

func TestBlankLayoutFallback(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	layout := "ppt/slideLayouts/slideLayout1.xml"
	p.parts[layout] = bytes.Replace(p.parts[layout], []byte(`type="blank"`), []byte(`type="title"`), 1)

	got, err := p.BlankLayout()
	if err != nil {
		t.Fatal(err)
	}
	if got != layout {
		t.Errorf("Expected fallback to the last layout, got %s", got)
	}
}

// buildDeck creates n slides, each with its own clip, and saves to out.
func buildDeck(t *testing.T, dir string, clips []string, out string) *Presentation {
	t.Helper()
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	layout, err := p.BlankLayout()
	if err != nil {
		t.Fatal(err)
	}
	poster := writeFile(t, dir, "poster.png", []byte("png-bytes"))
	cx, cy := p.SlideSize()
	for _, c := range clips {
		s, err := p.AddSlide(layout)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.AddMovie(c, poster, 0, 0, cx, cy); err != nil {
			t.Fatal(err)
		}
		if err := p.Save(out); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestAddMovieSaveReopen(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "00000.mp4", []byte("clip-a"))
	b := writeFile(t, dir, "00001.mp4", []byte("clip-b"))
	out := filepath.Join(dir, "out", "Scenes.pptx")

	buildDeck(t, dir, []string{a, b, a}, out)

	p, err := Open(out)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if p.SlideCount() != 3 {
		t.Fatalf("Expected 3 slides, got %d", p.SlideCount())
	}

	seen := map[int]bool{}
	for i, s := range p.Slides() {
		movies := s.Movies()
		if len(movies) != 1 {
			t.Fatalf("slide %d: expected 1 movie, got %d", i+1, len(movies))
		}
		m := movies[0]
		if seen[m.ID] {
			t.Errorf("duplicate shape id %d", m.ID)
		}
		seen[m.ID] = true
		if m.Poster == "" || m.Media == "" {
			t.Errorf("slide %d: unresolved media %+v", i+1, m)
		}
		if s.Layout() != "ppt/slideLayouts/slideLayout1.xml" {
			t.Errorf("slide %d: layout %s", i+1, s.Layout())
		}
	}

	// slides 1 and 3 share the same clip content
	m1 := p.Slides()[0].Movies()[0]
	m3 := p.Slides()[2].Movies()[0]
	if m1.Media != m3.Media {
		t.Errorf("identical clips should share a media part: %s vs %s", m1.Media, m3.Media)
	}
	if data, ok := p.Part(m1.Media); !ok || string(data) != "clip-a" {
		t.Errorf("media part content mismatch")
	}

	ct, _ := p.Part(contentTypesPart)
	for _, want := range []string{`Extension="mp4"`, `Extension="png"`, `/ppt/slides/slide3.xml`} {
		if !strings.Contains(string(ct), want) {
			t.Errorf("content types missing %s", want)
		}
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	clip := writeFile(t, dir, "00000.mp4", []byte("clip"))
	out := filepath.Join(dir, "deck", "A.pptx")
	buildDeck(t, dir, []string{clip}, out)

	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "A.pptx" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected files in output dir: %v", names)
	}
}

func TestDeterministicOutput(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "00000.mp4", []byte("clip-a"))
	b := writeFile(t, dir, "00002.mp4", []byte("clip-b"))

	out1 := filepath.Join(dir, "one.pptx")
	out2 := filepath.Join(dir, "two.pptx")
	buildDeck(t, dir, []string{a, b}, out1)
	buildDeck(t, dir, []string{a, b}, out2)

	d1, _ := os.ReadFile(out1)
	d2, _ := os.ReadFile(out2)
	if !bytes.Equal(d1, d2) {
		t.Error("identical inputs produced different bytes")
	}

	zr, err := zip.NewReader(bytes.NewReader(d1), int64(len(d1)))
	if err != nil {
		t.Fatal(err)
	}
	if zr.File[0].Name != contentTypesPart {
		t.Errorf("first entry is %s", zr.File[0].Name)
	}
}

func TestWriteTo(t *testing.T) {
	var _ io.WriterTo = (*Presentation)(nil)

	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	n, err := p.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
	}

	again, err := ReadFrom(bytes.NewReader(buf.Bytes()), n, "buffer")
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if again.SlideCount() != 0 {
		t.Errorf("expected empty deck, got %d slides", again.SlideCount())
	}
}

func TestOpenKeepsShapeIDsUnique(t *testing.T) {
	dir := t.TempDir()
	clip := writeFile(t, dir, "00000.mp4", []byte("clip"))
	poster := writeFile(t, dir, "poster.png", []byte("png"))
	out := filepath.Join(dir, "deck.pptx")
	buildDeck(t, dir, []string{clip, clip}, out)

	p, err := Open(out)
	if err != nil {
		t.Fatal(err)
	}
	layout, _ := p.BlankLayout()
	s, err := p.AddSlide(layout)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.AddMovie(clip, poster, 0, 0, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, prev := range p.Slides()[:2] {
		if prev.Movies()[0].ID == id {
			t.Errorf("new shape id %d collides with an existing slide", id)
		}
	}
	if s.Part() != "ppt/slides/slide3.xml" {
		t.Errorf("unexpected slide part %s", s.Part())
	}
}

func TestSetTiming(t *testing.T) {
	p, _ := New()
	layout, _ := p.BlankLayout()
	s, err := p.AddSlide(layout)
	if err != nil {
		t.Fatal(err)
	}

	first := etree.NewElement("p:timing")
	first.CreateAttr("marker", "1")
	s.SetTiming(first)
	second := etree.NewElement("p:timing")
	second.CreateAttr("marker", "2")
	s.SetTiming(second)

	var tags []string
	for _, c := range s.doc.Root().ChildElements() {
		tags = append(tags, c.FullTag())
	}
	if strings.Join(tags, ",") != "p:cSld,p:clrMapOvr,p:timing" {
		t.Errorf("unexpected child order %v", tags)
	}
	if s.Timing().SelectAttrValue("marker", "") != "2" {
		t.Error("timing was not replaced")
	}
}

func TestAddMovieMissingInput(t *testing.T) {
	dir := t.TempDir()
	p, _ := New()
	layout, _ := p.BlankLayout()
	s, _ := p.AddSlide(layout)
	poster := writeFile(t, dir, "p.png", []byte("png"))

	if _, err := s.AddMovie(filepath.Join(dir, "missing.mp4"), poster, 0, 0, 1, 1); err == nil {
		t.Error("Expected error for missing clip")
	}
	if _, err := s.AddMovie(poster, filepath.Join(dir, "missing.png"), 0, 0, 1, 1); err == nil {
		t.Error("Expected error for missing poster")
	}
}

func TestRelativeTargets(t *testing.T) {
	tests := []struct {
		source, part, want string
	}{
		{"ppt/slides/slide1.xml", "ppt/media/media1.mp4", "../media/media1.mp4"},
		{"ppt/presentation.xml", "ppt/slides/slide2.xml", "slides/slide2.xml"},
		{"ppt/slides/slide1.xml", "ppt/slideLayouts/slideLayout7.xml", "../slideLayouts/slideLayout7.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.part, func(t *testing.T) {
			got := relativeTarget(tt.source, tt.part)
			if got != tt.want {
				t.Errorf("relativeTarget = %s, want %s", got, tt.want)
			}
			if back := resolveTarget(tt.source, got); back != tt.part {
				t.Errorf("resolveTarget = %s, want %s", back, tt.part)
			}
		})
	}
}

func TestRelsPartFor(t *testing.T) {
	if got := relsPartFor("ppt/slides/slide4.xml"); got != "ppt/slides/_rels/slide4.xml.rels" {
		t.Errorf("got %s", got)
	}
	if got := relsPartFor("ppt/presentation.xml"); got != "ppt/_rels/presentation.xml.rels" {
		t.Errorf("got %s", got)
	}
}
