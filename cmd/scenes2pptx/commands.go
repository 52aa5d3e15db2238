package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ivlev/scenes2pptx/internal/config"
	"github.com/ivlev/scenes2pptx/internal/engine"
	"github.com/ivlev/scenes2pptx/internal/logging"
	"github.com/ivlev/scenes2pptx/internal/pptx"
	"github.com/ivlev/scenes2pptx/internal/system"
	"github.com/ivlev/scenes2pptx/internal/timing"
	"github.com/ivlev/scenes2pptx/internal/video"
	"github.com/spf13/cobra"
)

// exportOptions are bound to the export and on-rendered flags. Only flags the
// user actually set override the config file.
var exportOptions struct {
	saveToPPTX       bool
	antiDuplication  bool
	joinScenes       bool
	preview          bool
	showFileInFinder bool
	movieRoot        string
	mediaDir         string
	template         string
	timingExample    string
	tempDir          string
	logFile          string
	ffmpeg           string
	ffprobe          string
	workers          int
	thumbWidth       int
	report           bool
}

func addExportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	o := &exportOptions
	f.BoolVar(&o.saveToPPTX, "save_to_pptx", false, "export slides after rendering")
	f.BoolVar(&o.antiDuplication, "anti_dupli_pptx", false, "merge partial movies pairwise before placing them")
	f.BoolVar(&o.joinScenes, "join_scenes_pptx", false, "put all scenes into one presentation")
	f.BoolVar(&o.preview, "preview", false, "open the presentation when done")
	f.BoolVar(&o.showFileInFinder, "show_file_in_finder", false, "reveal the presentation in the file manager when done")
	f.StringVar(&o.movieRoot, "movie-root", "", "directory holding <Scene>.mp4 and partial_movie_files/ (default: newest under --media-dir)")
	f.StringVar(&o.mediaDir, "media-dir", "", "media directory searched for the movie root")
	f.StringVar(&o.template, "template", "", "base .pptx (default: bundled blank 16:9)")
	f.StringVar(&o.timingExample, "timing-example", "", "reference slide (.pptx or slide XML) holding the autoplay timing")
	f.StringVar(&o.tempDir, "temp-dir", "", "scratch directory for merged clips and thumbnails")
	f.StringVar(&o.logFile, "log-file", "", "export trace file, truncated per export")
	f.StringVar(&o.ffmpeg, "ffmpeg", "", "ffmpeg binary")
	f.StringVar(&o.ffprobe, "ffprobe", "", "ffprobe binary")
	f.IntVar(&o.workers, "workers", 0, "parallel thumbnail extractions")
	f.IntVar(&o.thumbWidth, "thumbnail-max-width", 0, "downscale poster frames wider than this")
	f.BoolVar(&o.report, "report", false, "write a YAML report next to each presentation")
}

func applyExportFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	o := &exportOptions

	bools := []struct {
		name string
		dst  *bool
		val  bool
	}{
		{"save_to_pptx", &cfg.SaveToPPTX, o.saveToPPTX},
		{"anti_dupli_pptx", &cfg.AntiDuplication, o.antiDuplication},
		{"join_scenes_pptx", &cfg.JoinScenes, o.joinScenes},
		{"preview", &cfg.Preview, o.preview},
		{"show_file_in_finder", &cfg.ShowFileInFinder, o.showFileInFinder},
		{"report", &cfg.Report, o.report},
	}
	for _, b := range bools {
		if f.Changed(b.name) {
			*b.dst = b.val
		}
	}

	strs := []struct {
		name string
		dst  *string
		val  string
	}{
		{"movie-root", &cfg.MovieRoot, o.movieRoot},
		{"media-dir", &cfg.MediaDir, o.mediaDir},
		{"template", &cfg.Template, o.template},
		{"timing-example", &cfg.TimingExample, o.timingExample},
		{"temp-dir", &cfg.TempDir, o.tempDir},
		{"log-file", &cfg.LogFile, o.logFile},
		{"ffmpeg", &cfg.FFmpegPath, o.ffmpeg},
		{"ffprobe", &cfg.FFprobePath, o.ffprobe},
	}
	for _, s := range strs {
		if f.Changed(s.name) {
			*s.dst = s.val
		}
	}

	if f.Changed("workers") {
		cfg.Workers = o.workers
	}
	if f.Changed("thumbnail-max-width") {
		cfg.ThumbnailMaxWidth = o.thumbWidth
	}

	return cfg.Validate()
}

func newProject(cmd *cobra.Command) (*engine.Project, error) {
	cfg := config.FromContext(cmd.Context())
	if err := applyExportFlags(cmd, cfg); err != nil {
		return nil, err
	}

	exe, err := video.New(logging.NewLogger(), cfg.FFmpegPath, cfg.FFprobePath)
	if err != nil {
		return nil, err
	}
	exe.ThumbnailMaxWidth = cfg.ThumbnailMaxWidth

	p := engine.NewProject(cfg, exe, exe, logging.NewLogger())
	p.Prober = exe
	p.Out = cmd.OutOrStdout()
	p.Progress = cmd.ErrOrStderr()
	return p, nil
}

func printResults(cmd *cobra.Command, results []engine.Result) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "[+++] %s: %d slides -> %s\n", r.Name, len(r.ShapeIDs), r.Path)
		if r.Report != "" {
			fmt.Fprintf(out, "      report: %s\n", r.Report)
		}
	}
}

var onRenderedCmd = &cobra.Command{
	Use:   "on-rendered SCENE...",
	Short: "Post-render hook: export only when save_to_pptx is enabled",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProject(cmd)
		if err != nil {
			return err
		}
		if !p.Config.SaveToPPTX {
			fmt.Fprintln(cmd.OutOrStdout(), "[*] save_to_pptx is off, nothing to export")
			return nil
		}
		results, err := p.OnRendered(cmd.Context(), args)
		printResults(cmd, results)
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:   "export SCENE...",
	Short: "Export rendered scenes to presentations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProject(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[*] run %s on %s\n", p.RunID(), system.HostSummary(cmd.Context()))
		results, err := p.Run(cmd.Context(), args)
		printResults(cmd, results)
		return err
	},
}

var checkTemplateCmd = &cobra.Command{
	Use:   "check-template [PATH]",
	Short: "Verify that a timing example has the expected autoplay structure",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.FromContext(cmd.Context()).TimingExample
		if len(args) == 1 {
			path = args[0]
		}

		tmpl, err := timing.Load(path)
		if err != nil {
			return err
		}
		frag, err := tmpl.Fragment()
		if err != nil {
			return err
		}
		spids, err := timing.Spids(frag)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[*] timing from %s\n", tmpl.Source())
		for _, loc := range timing.Locations {
			fmt.Fprintf(out, "[+++] %-17s spid=%s\n", loc.Name, spids[loc.Name])
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe CLIP...",
	Short: "Print clip metadata and the decoded frame count",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		exe, err := video.New(logging.NewLogger(), cfg.FFmpegPath, cfg.FFprobePath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, clip := range args {
			info, err := exe.Probe(clip)
			if err != nil {
				return err
			}
			frames, err := exe.FrameCount(cmd.Context(), clip)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "[+++] %s: %dx%d %s %.2f fps, %.2fs, %d frames\n",
				filepath.Base(clip), info.Width, info.Height, info.Codec, info.FPS, info.Duration, frames)
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect PPTX",
	Short: "List slides, movie shapes and timing targets of a presentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pres, err := pptx.Open(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		cx, cy := pres.SlideSize()
		fmt.Fprintf(out, "[*] %s: %d slides, %dx%d EMU\n", args[0], pres.SlideCount(), cx, cy)

		for i, s := range pres.Slides() {
			fmt.Fprintf(out, "[*] slide %d (%s, layout %s)\n", i+1, s.Part(), s.Layout())
			for _, m := range s.Movies() {
				fmt.Fprintf(out, "      movie id=%d %q media=%s poster=%s\n", m.ID, m.Name, m.Media, m.Poster)
			}

			t := s.Timing()
			if t == nil {
				fmt.Fprintln(out, "      no timing")
				continue
			}
			spids, err := timing.Spids(t)
			if err != nil {
				fmt.Fprintf(out, "[-]   timing: %v\n", err)
				continue
			}
			names := make([]string, 0, len(spids))
			for name := range spids {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "      %s -> %s\n", name, spids[name])
			}
		}
		return nil
	},
}
