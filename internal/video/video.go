package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Thumbnailer extracts a poster frame from a clip.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, clipPath, imagePath string) error
}

// Merger losslessly joins clips into one file.
type Merger interface {
	MergePair(ctx context.Context, first, second, out string) error
}

// Prober reads clip metadata.
type Prober interface {
	Probe(clipPath string) (ClipInfo, error)
}

// ToolError is a non-zero exit of an external binary.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, msg)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Executor runs ffmpeg and ffprobe. Every call blocks until the process exits.
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string

	// ThumbnailMaxWidth downscales poster frames wider than this. 0 keeps them as extracted.
	ThumbnailMaxWidth int
}

// New resolves both binaries on PATH (or as given) and fails if either is missing.
func New(logger zerolog.Logger, ffmpegPath, ffprobePath string) (*Executor, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	ff, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	fp, err := exec.LookPath(ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ff,
		ffprobePath: fp,
	}, nil
}

func (e *Executor) run(ctx context.Context, bin string, args []string) ([]byte, error) {
	e.logger.Debug().Str("cmd", bin).Strs("args", args).Msg("executing")

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &ToolError{
			Tool:     bin,
			Args:     args,
			ExitCode: code,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}
