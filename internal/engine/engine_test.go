package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ivlev/scenes2pptx/internal/config"
	"github.com/ivlev/scenes2pptx/internal/manifest"
	"github.com/ivlev/scenes2pptx/internal/pptx"
	"github.com/ivlev/scenes2pptx/internal/source"
	"github.com/ivlev/scenes2pptx/internal/video"
	"github.com/rs/zerolog"
)

// fakeThumbnailer writes a small file derived from the clip content.
type fakeThumbnailer struct {
	mu    sync.Mutex
	calls int
	skip  string // clip base name whose thumbnail is silently not written
	err   error
}

func (f *fakeThumbnailer) Thumbnail(ctx context.Context, clip, image string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if filepath.Base(clip) == f.skip {
		return nil
	}
	data, err := os.ReadFile(clip)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(image), 0755); err != nil {
		return err
	}
	return os.WriteFile(image, append([]byte("png:"), data...), 0644)
}

// fakeMerger concatenates the bytes of both inputs.
type fakeMerger struct {
	calls [][2]string
}

func (f *fakeMerger) MergePair(ctx context.Context, first, second, out string) error {
	a, err := os.ReadFile(first)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(second)
	if err != nil {
		return err
	}
	f.calls = append(f.calls, [2]string{filepath.Base(first), filepath.Base(second)})
	return os.WriteFile(out, append(a, b...), 0644)
}

type fixture struct {
	root   string
	cfg    *config.Config
	thumb  *fakeThumbnailer
	merger *fakeMerger
	opened []string
}

// newFixture lays out <root>/partial_movie_files/<scene>/<nnnnn>.mp4 with
// parts[scene] clips per scene.
func newFixture(t *testing.T, parts map[string]int) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "media", "videos", "scene", "480p15")
	for scene, n := range parts {
		dir := source.SceneDir(root, scene)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("%05d.mp4", i)
			if err := os.WriteFile(filepath.Join(dir, name), []byte(scene+"/"+name), 0644); err != nil {
				t.Fatal(err)
			}
		}
	}

	cfg := config.Default()
	cfg.MovieRoot = root
	cfg.TempDir = filepath.Join(base, "tmp")
	cfg.LogFile = filepath.Join(base, "log", "scenes2pptx.log")
	cfg.SaveToPPTX = true
	cfg.Workers = 2

	return &fixture{root: root, cfg: cfg, thumb: &fakeThumbnailer{}, merger: &fakeMerger{}}
}

func (f *fixture) project() *Project {
	p := NewProject(f.cfg, f.thumb, f.merger, zerolog.Nop())
	p.Out = io.Discard
	p.Progress = io.Discard
	p.Reveal = func(ctx context.Context, path string, show bool) error {
		f.opened = append(f.opened, path)
		return nil
	}
	return p
}

func openDeck(t *testing.T, path string) *pptx.Presentation {
	t.Helper()
	pres, err := pptx.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return pres
}

func distinctIDs(t *testing.T, pres *pptx.Presentation) {
	t.Helper()
	seen := map[int]bool{}
	for _, s := range pres.Slides() {
		for _, m := range s.Movies() {
			if seen[m.ID] {
				t.Errorf("duplicate shape id %d", m.ID)
			}
			seen[m.ID] = true
		}
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		name   string
		scenes []string
		join   bool
		want   []string
	}{
		{"joined", []string{"A", "B"}, true, []string{"Scenes"}},
		{"separate", []string{"A", "B"}, false, []string{"A", "B"}},
		{"single joined", []string{"Intro"}, true, []string{"Scenes"}},
		{"empty", nil, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, b := range Batches(tt.scenes, tt.join) {
				got = append(got, b.Name)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunSeparateScenes(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 2, "B": 3})
	results, err := f.project().Run(context.Background(), []string{"A", "B"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	for _, tc := range []struct {
		name   string
		slides int
	}{{"A", 2}, {"B", 3}} {
		path := filepath.Join(f.root, tc.name+".pptx")
		pres := openDeck(t, path)
		if pres.SlideCount() != tc.slides {
			t.Errorf("%s: expected %d slides, got %d", tc.name, tc.slides, pres.SlideCount())
		}
		distinctIDs(t, pres)
	}
	if _, err := os.Stat(filepath.Join(f.root, JoinedName+".pptx")); !os.IsNotExist(err) {
		t.Error("joined file should not exist in separate mode")
	}
}

func TestRunJoinScenes(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 2, "B": 1})
	f.cfg.JoinScenes = true
	f.cfg.Report = true

	results, err := f.project().Run(context.Background(), []string{"B", "A"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != JoinedName {
		t.Fatalf("unexpected results %+v", results)
	}

	pres := openDeck(t, filepath.Join(f.root, "Scenes.pptx"))
	if pres.SlideCount() != 3 {
		t.Fatalf("Expected 3 slides, got %d", pres.SlideCount())
	}
	distinctIDs(t, pres)

	report, err := manifest.Read(results[0].Report)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, s := range report.Slides {
		order = append(order, s.Scene)
	}
	if strings.Join(order, ",") != "B,A,A" {
		t.Errorf("slides should follow scene order, got %v", order)
	}
}

func TestIntroAntiDuplication(t *testing.T) {
	f := newFixture(t, map[string]int{"Intro": 4})
	f.cfg.AntiDuplication = true
	f.cfg.Report = true

	results, err := f.project().Run(context.Background(), []string{"Intro"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(f.merger.calls) != 2 ||
		f.merger.calls[0] != [2]string{"00000.mp4", "00001.mp4"} ||
		f.merger.calls[1] != [2]string{"00002.mp4", "00003.mp4"} {
		t.Errorf("unexpected merges %v", f.merger.calls)
	}

	pres := openDeck(t, results[0].Path)
	if pres.SlideCount() != 2 {
		t.Fatalf("Expected 2 slides, got %d", pres.SlideCount())
	}
	distinctIDs(t, pres)
	if results[0].ShapeIDs[0] == results[0].ShapeIDs[1] {
		t.Error("shape ids must differ")
	}

	report, err := manifest.Read(results[0].Report)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range report.Slides {
		merged, err := os.ReadFile(s.Clip)
		if err != nil {
			t.Fatal(err)
		}
		want := fmt.Sprintf("Intro/%05d.mp4Intro/%05d.mp4", 2*i, 2*i+1)
		if string(merged) != want {
			t.Errorf("clip %d = %q, want %q", i, merged, want)
		}
		if _, err := os.Stat(s.Thumbnail); err != nil {
			t.Errorf("thumbnail %d missing: %v", i, err)
		}
		if !strings.HasPrefix(s.Clip, filepath.Join(f.cfg.TempDir, "Intro", "Intro")) {
			t.Errorf("merged clip outside the batch temp dir: %s", s.Clip)
		}
	}
}

func TestAntiDuplicationKeepsTrailingPart(t *testing.T) {
	f := newFixture(t, map[string]int{"Intro": 3})
	f.cfg.AntiDuplication = true
	f.cfg.Report = true

	results, err := f.project().Run(context.Background(), []string{"Intro"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	report, _ := manifest.Read(results[0].Report)
	if len(report.Slides) != 2 {
		t.Fatalf("Expected 2 slides, got %d", len(report.Slides))
	}
	last := report.Slides[1]
	if last.Clip != filepath.Join(source.SceneDir(f.root, "Intro"), "00002.mp4") {
		t.Errorf("trailing part should be used as is, got %s", last.Clip)
	}
}

func TestOnRenderedHonoursSaveFlag(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 1})
	f.cfg.SaveToPPTX = false

	results, err := f.project().OnRendered(context.Background(), []string{"A"})
	if err != nil || results != nil {
		t.Fatalf("expected no-op, got %v %v", results, err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "A.pptx")); !os.IsNotExist(err) {
		t.Error("no file should be written when save_to_pptx is off")
	}

	f.cfg.SaveToPPTX = true
	if _, err := f.project().OnRendered(context.Background(), []string{"A"}); err != nil {
		t.Fatal(err)
	}
	openDeck(t, filepath.Join(f.root, "A.pptx"))
}

func TestFailureKeepsSavedSlides(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 3})
	f.thumb.skip = "00001.mp4"

	_, err := f.project().Run(context.Background(), []string{"A"})
	if err == nil {
		t.Fatal("Expected failure on the missing thumbnail")
	}
	pres := openDeck(t, filepath.Join(f.root, "A.pptx"))
	if pres.SlideCount() != 1 {
		t.Errorf("Expected the first slide to be saved, got %d slides", pres.SlideCount())
	}
}

func TestToolFailureAborts(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 2})
	f.thumb.err = &video.ToolError{Tool: "ffmpeg", ExitCode: 1, Stderr: "boom", Err: errors.New("exit status 1")}

	_, err := f.project().Run(context.Background(), []string{"A"})
	var te *video.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("Expected ToolError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "A.pptx")); !os.IsNotExist(err) {
		t.Error("no presentation should be written when thumbnails fail")
	}
}

func TestMissingScene(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 1})
	_, err := f.project().Run(context.Background(), []string{"Nope"})
	if !errors.Is(err, source.ErrNoParts) {
		t.Errorf("Expected ErrNoParts, got %v", err)
	}
}

func TestInvalidSceneName(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 1})
	for _, name := range []string{"", "..", "a/b"} {
		if _, err := f.project().Run(context.Background(), []string{name}); err == nil {
			t.Errorf("Expected error for scene name %q", name)
		}
	}
}

func TestRerunIsDeterministic(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 2, "B": 2})
	f.cfg.JoinScenes = true
	out := filepath.Join(f.root, "Scenes.pptx")

	if _, err := f.project().Run(context.Background(), []string{"A", "B"}); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(out)

	if _, err := f.project().Run(context.Background(), []string{"A", "B"}); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(out)

	if !bytes.Equal(first, second) {
		t.Error("re-running with identical inputs changed the output")
	}
}

func TestTraceIsTruncatedPerRun(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 1})

	p1 := f.project()
	if _, err := p1.Run(context.Background(), []string{"A"}); err != nil {
		t.Fatal(err)
	}
	p2 := f.project()
	if _, err := p2.Run(context.Background(), []string{"A"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(f.cfg.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), p1.RunID()) {
		t.Error("trace still holds the previous run")
	}
	if !strings.Contains(string(data), p2.RunID()) {
		t.Error("trace misses the current run")
	}
}

func TestPreviewOpensResult(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 1})
	f.cfg.Preview = true

	if _, err := f.project().Run(context.Background(), []string{"A"}); err != nil {
		t.Fatal(err)
	}
	if len(f.opened) != 1 || f.opened[0] != filepath.Join(f.root, "A.pptx") {
		t.Errorf("unexpected opened files %v", f.opened)
	}
}

func TestMovieRootDiscovery(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 1})
	f.cfg.MediaDir = filepath.Dir(filepath.Dir(filepath.Dir(f.root)))
	f.cfg.MovieRoot = ""

	results, err := f.project().Run(context.Background(), []string{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Path != filepath.Join(f.root, "A.pptx") {
		t.Errorf("unexpected output %s", results[0].Path)
	}
}
