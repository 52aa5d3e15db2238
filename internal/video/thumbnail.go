package video

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/ivlev/scenes2pptx/internal/system"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/image/draw"
)

// thumbnailArgs builds: -i clip -vframes 1 image -loglevel error -y
func thumbnailArgs(clipPath, imagePath string) []string {
	return ffmpeg.Input(clipPath).
		Output(imagePath, ffmpeg.KwArgs{"vframes": 1}).
		GlobalArgs("-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

// Thumbnail writes the first frame of clipPath to imagePath, replacing any existing file.
func (e *Executor) Thumbnail(ctx context.Context, clipPath, imagePath string) error {
	if _, err := os.Stat(clipPath); err != nil {
		return fmt.Errorf("thumbnail source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(imagePath), 0755); err != nil {
		return err
	}

	if _, err := e.run(ctx, e.ffmpegPath, thumbnailArgs(clipPath, imagePath)); err != nil {
		return fmt.Errorf("thumbnail %s: %w", clipPath, err)
	}

	if e.ThumbnailMaxWidth > 0 {
		if err := FitWidth(imagePath, e.ThumbnailMaxWidth); err != nil {
			return fmt.Errorf("resize thumbnail %s: %w", imagePath, err)
		}
	}
	return nil
}

// FitWidth downscales the PNG at path so it is at most maxWidth pixels wide.
// Narrower images are left untouched.
func FitWidth(path string, maxWidth int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	src, err := png.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	b := src.Bounds()
	if b.Dx() <= maxWidth {
		return nil
	}

	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := system.GetFrame(maxWidth, h)
	defer system.PutFrame(dst)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(out, dst); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
