package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ManifestPath is the concat list written for out. It is unique per output,
// so merges into different outputs never share a manifest.
func ManifestPath(out string) string {
	return out + ".txt"
}

// writeManifest writes the concat demuxer list with absolute paths.
func writeManifest(path string, clips []string) error {
	var b strings.Builder
	for _, c := range clips {
		abs, err := filepath.Abs(c)
		if err != nil {
			return err
		}
		// concat demuxer quoting: ' becomes '\''
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// concatArgs builds: -f concat -safe 0 -i manifest -c copy out -loglevel error -y
func concatArgs(manifest, out string) []string {
	return ffmpeg.Input(manifest, ffmpeg.KwArgs{"f": "concat", "safe": 0}).
		Output(out, ffmpeg.KwArgs{"c": "copy"}).
		GlobalArgs("-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

// Concat joins clips in order into out using stream copy. Nothing is re-encoded,
// so clips with incompatible codecs fail with a ToolError.
func (e *Executor) Concat(ctx context.Context, clips []string, out string) error {
	if len(clips) == 0 {
		return fmt.Errorf("concat %s: no input clips", out)
	}
	for _, c := range clips {
		if _, err := os.Stat(c); err != nil {
			return fmt.Errorf("concat input: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}

	manifest := ManifestPath(out)
	if err := writeManifest(manifest, clips); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	if _, err := e.run(ctx, e.ffmpegPath, concatArgs(manifest, out)); err != nil {
		return fmt.Errorf("ffmpeg concat %s: %w", out, err)
	}
	return nil
}

// MergePair concatenates first and then second into out.
func (e *Executor) MergePair(ctx context.Context, first, second, out string) error {
	return e.Concat(ctx, []string{first, second}, out)
}
