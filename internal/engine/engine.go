package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ivlev/scenes2pptx/internal/config"
	"github.com/ivlev/scenes2pptx/internal/logging"
	"github.com/ivlev/scenes2pptx/internal/manifest"
	"github.com/ivlev/scenes2pptx/internal/pptx"
	"github.com/ivlev/scenes2pptx/internal/slides"
	"github.com/ivlev/scenes2pptx/internal/source"
	"github.com/ivlev/scenes2pptx/internal/system"
	"github.com/ivlev/scenes2pptx/internal/timing"
	"github.com/ivlev/scenes2pptx/internal/video"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// JoinedName is the batch name used when all scenes go into one presentation.
const JoinedName = "Scenes"

// Batch is one output presentation and the scenes that feed it, in order.
type Batch struct {
	Name   string
	Scenes []string
}

// Clip is a video that becomes exactly one slide.
type Clip struct {
	Scene     string
	Name      string
	Path      string
	Parts     []string
	Thumbnail string
}

// Result describes one written presentation.
type Result struct {
	Name     string
	Path     string
	Report   string
	ShapeIDs []int
}

// RevealFunc opens or reveals a finished presentation.
type RevealFunc func(ctx context.Context, path string, showInFinder bool) error

// Project exports rendered scenes to presentations.
type Project struct {
	Config      *config.Config
	Thumbnailer video.Thumbnailer
	Merger      video.Merger
	Prober      video.Prober // optional, enriches the report
	Reveal      RevealFunc

	// Out receives the console progress lines; Progress the slide progress bar.
	Out      io.Writer
	Progress io.Writer

	logger zerolog.Logger
	runID  string
}

// NewProject wires a project with the given tools. Reveal defaults to the
// desktop handler and output goes to stdout.
func NewProject(cfg *config.Config, thumb video.Thumbnailer, merger video.Merger, logger zerolog.Logger) *Project {
	return &Project{
		Config:      cfg,
		Thumbnailer: thumb,
		Merger:      merger,
		Reveal:      system.Reveal,
		Out:         os.Stdout,
		Progress:    os.Stderr,
		logger:      logger.With().Str("component", "engine").Logger(),
		runID:       uuid.NewString(),
	}
}

// RunID identifies this project's exports in the trace and reports.
func (p *Project) RunID() string { return p.runID }

// Batches groups scenes into output presentations.
func Batches(scenes []string, join bool) []Batch {
	if len(scenes) == 0 {
		return nil
	}
	if join {
		return []Batch{{Name: JoinedName, Scenes: append([]string(nil), scenes...)}}
	}
	batches := make([]Batch, 0, len(scenes))
	for _, s := range scenes {
		batches = append(batches, Batch{Name: s, Scenes: []string{s}})
	}
	return batches
}

// OnRendered is called by the rendering pipeline once all scenes are
// rendered. It exports only when save_to_pptx is set.
func (p *Project) OnRendered(ctx context.Context, scenes []string) ([]Result, error) {
	if !p.Config.SaveToPPTX {
		p.logger.Debug().Msg("save_to_pptx is off, skipping export")
		return nil, nil
	}
	return p.Run(ctx, scenes)
}

// Run exports every batch and stops at the first failure.
func (p *Project) Run(ctx context.Context, scenes []string) ([]Result, error) {
	if len(scenes) == 0 {
		return nil, errors.New("no scenes to export")
	}
	for _, s := range scenes {
		if err := validName(s); err != nil {
			return nil, err
		}
	}

	movieRoot, err := p.movieRoot()
	if err != nil {
		return nil, err
	}

	// the timing template is checked before any slide is built
	tmpl, err := timing.Load(p.Config.TimingExample)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, b := range Batches(scenes, p.Config.JoinScenes) {
		res, err := p.runBatch(ctx, movieRoot, tmpl, b)
		if err != nil {
			return results, fmt.Errorf("batch %s: %w", b.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Project) movieRoot() (string, error) {
	if p.Config.MovieRoot != "" {
		return p.Config.MovieRoot, nil
	}
	root, err := system.FindLatestMovieRoot(p.Config.MediaDir, source.PartialMovieDir)
	if err != nil {
		return "", fmt.Errorf("movie_root not set: %w", err)
	}
	fmt.Fprintf(p.Out, "[*] Using latest render: %s\n", root)
	return root, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid scene name %q", name)
	}
	return nil
}

func (p *Project) runBatch(ctx context.Context, movieRoot string, tmpl *timing.Template, b Batch) (Result, error) {
	start := time.Now()

	trace, err := logging.OpenTrace(p.Config.LogFile)
	if err != nil {
		p.logger.Warn().Err(err).Msg("trace log unavailable")
		trace = logging.DiscardTrace()
	}
	defer trace.Close()

	trace.Line("run %s batch %s", p.runID, b.Name)
	trace.Line("%s", system.HostSummary(ctx))
	trace.Line("movie root %s, scenes %s", movieRoot, strings.Join(b.Scenes, ", "))
	trace.Line("anti_dupli_pptx=%t join_scenes_pptx=%t timing=%s", p.Config.AntiDuplication, p.Config.JoinScenes, tmpl.Source())

	tmpDir := filepath.Join(p.Config.TempDir, b.Name)
	if err := os.RemoveAll(tmpDir); err != nil {
		return Result{}, fmt.Errorf("clear temp dir: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}

	pres, err := pptx.NewFromTemplate(p.Config.Template)
	if err != nil {
		return Result{}, fmt.Errorf("open template: %w", err)
	}
	outPath := filepath.Join(movieRoot, b.Name+".pptx")
	builder, err := slides.New(pres, tmpl, outPath, p.logger)
	if err != nil {
		return Result{}, err
	}

	fmt.Fprintf(p.Out, "[*] Exporting %s (%s)\n", b.Name, strings.Join(b.Scenes, ", "))

	clips, err := p.resolveClips(ctx, movieRoot, tmpDir, b, trace)
	if err != nil {
		trace.Line("failed: %v", err)
		return Result{}, err
	}

	if err := p.makeThumbnails(ctx, clips, trace); err != nil {
		trace.Line("failed: %v", err)
		return Result{}, err
	}

	report := &manifest.Report{
		RunID:           p.runID,
		Name:            b.Name,
		Output:          outPath,
		Template:        pres.Template(),
		Timing:          tmpl.Source(),
		AntiDuplication: p.Config.AntiDuplication,
	}
	res := Result{Name: b.Name, Path: builder.OutPath()}

	bar := progressbar.NewOptions(len(clips),
		progressbar.OptionSetWriter(p.Progress),
		progressbar.OptionSetDescription(b.Name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	for _, c := range clips {
		built, err := builder.Build(ctx, c.Path, c.Thumbnail)
		if err != nil {
			trace.Line("slide %d failed: %v", pres.SlideCount(), err)
			return res, err
		}
		trace.Line("slide %d: %s shape %d (%s)", built.Index, c.Name, built.ShapeID, built.SlidePart)
		res.ShapeIDs = append(res.ShapeIDs, built.ShapeID)
		report.Slides = append(report.Slides, p.reportSlide(built, c))
		bar.Add(1)
	}
	bar.Finish()

	p.logger.Debug().Str("trace", trace.Path()).Str("batch", b.Name).Msg("batch done")
	trace.Line("saved %s with %d slides in %s", outPath, len(clips), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(p.Out, "[+++] Saved %s (%d slides)\n", outPath, len(clips))

	if p.Config.Report {
		res.Report = manifest.PathFor(outPath)
		if err := manifest.Write(report, res.Report); err != nil {
			return res, fmt.Errorf("write report: %w", err)
		}
		trace.Line("report %s", res.Report)
	}

	if p.Config.Preview && p.Reveal != nil {
		if err := p.Reveal(ctx, outPath, p.Config.ShowFileInFinder); err != nil {
			// the export itself succeeded
			p.logger.Warn().Err(err).Str("path", outPath).Msg("could not open presentation")
			trace.Line("open failed: %v", err)
		}
	}
	return res, nil
}

func (p *Project) reportSlide(built slides.Built, c Clip) manifest.Slide {
	s := manifest.Slide{
		Index:     built.Index,
		Scene:     c.Scene,
		ShapeID:   built.ShapeID,
		Clip:      c.Path,
		Parts:     c.Parts,
		Thumbnail: c.Thumbnail,
	}
	if p.Prober != nil && p.Config.Report {
		if info, err := p.Prober.Probe(c.Path); err == nil {
			s.Info = &info
		} else {
			p.logger.Debug().Err(err).Str("clip", c.Path).Msg("probe failed")
		}
	}
	return s
}

// resolveClips lists the parts of every scene and, in anti-duplication mode,
// merges each even part with the odd part after it.
func (p *Project) resolveClips(ctx context.Context, movieRoot, tmpDir string, b Batch, trace *logging.Trace) ([]Clip, error) {
	var clips []Clip
	for _, scene := range b.Scenes {
		parts, err := source.Discover(movieRoot, scene)
		if err != nil {
			return nil, err
		}
		trace.Line("scene %s: %d parts in %s", scene, len(parts), source.SceneDir(movieRoot, scene))

		sceneTmp := filepath.Join(tmpDir, scene)
		if err := os.MkdirAll(sceneTmp, 0755); err != nil {
			return nil, err
		}

		if !p.Config.AntiDuplication {
			for _, part := range parts {
				clips = append(clips, Clip{
					Scene:     scene,
					Name:      part.Name(),
					Path:      part.Path,
					Parts:     []string{part.Path},
					Thumbnail: filepath.Join(sceneTmp, part.Name()+".png"),
				})
			}
			continue
		}

		pairs, err := source.Pairs(parts)
		if err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			name := fmt.Sprintf("%05d", pair.First.Index)
			c := Clip{
				Scene:     scene,
				Name:      name,
				Thumbnail: filepath.Join(sceneTmp, name+".png"),
			}
			if pair.Second == nil {
				c.Path = pair.First.Path
				c.Parts = []string{pair.First.Path}
				trace.Line("scene %s: part %s has no partner, used as is", scene, pair.First.Name())
				clips = append(clips, c)
				continue
			}

			c.Path = filepath.Join(sceneTmp, name+".mp4")
			c.Parts = []string{pair.First.Path, pair.Second.Path}
			if err := p.Merger.MergePair(ctx, pair.First.Path, pair.Second.Path, c.Path); err != nil {
				return nil, fmt.Errorf("merge %s + %s: %w", pair.First.Name(), pair.Second.Name(), err)
			}
			trace.Line("scene %s: merged %s + %s -> %s", scene, pair.First.Name(), pair.Second.Name(), c.Path)
			clips = append(clips, c)
		}
	}
	return clips, nil
}

// makeThumbnails extracts every poster frame, up to workers at a time.
func (p *Project) makeThumbnails(ctx context.Context, clips []Clip, trace *logging.Trace) error {
	workers := p.Config.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range clips {
		g.Go(func() error {
			if err := p.Thumbnailer.Thumbnail(gctx, c.Path, c.Thumbnail); err != nil {
				return fmt.Errorf("thumbnail %s/%s: %w", c.Scene, c.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	trace.Line("%d thumbnails written", len(clips))
	return nil
}
