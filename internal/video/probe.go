package video

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	vidio "github.com/AlexEidt/Vidio"
)

// ClipInfo is the container metadata of a clip.
type ClipInfo struct {
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	FPS      float64 `yaml:"fps"`
	Duration float64 `yaml:"duration"`
	Frames   int     `yaml:"frames"` // from metadata, may be 0 for some containers
	Codec    string  `yaml:"codec"`
}

// Probe reads stream metadata without decoding frames.
func (e *Executor) Probe(clipPath string) (ClipInfo, error) {
	v, err := vidio.NewVideo(clipPath)
	if err != nil {
		return ClipInfo{}, fmt.Errorf("probe %s: %w", clipPath, err)
	}
	defer v.Close()

	return ClipInfo{
		Width:    v.Width(),
		Height:   v.Height(),
		FPS:      v.FPS(),
		Duration: v.Duration(),
		Frames:   v.Frames(),
		Codec:    v.Codec(),
	}, nil
}

// FrameCount decodes the whole video stream and returns the number of frames read.
func (e *Executor) FrameCount(ctx context.Context, clipPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-count_frames",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		"-of", "default=nokey=1:noprint_wrappers=1",
		clipPath,
	}
	out, err := e.run(ctx, e.ffprobePath, args)
	if err != nil {
		return 0, fmt.Errorf("count frames %s: %w", clipPath, err)
	}
	return parseFrameCount(string(out))
}

func parseFrameCount(out string) (int, error) {
	s := strings.TrimSpace(out)
	// multiple video streams print one line each; v:0 selects the first
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q", out)
	}
	return n, nil
}
