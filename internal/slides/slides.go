// Package slides turns one clip into one full-screen autoplay slide.
package slides

import (
	"context"
	"fmt"

	"github.com/ivlev/scenes2pptx/internal/pptx"
	"github.com/ivlev/scenes2pptx/internal/timing"
	"github.com/rs/zerolog"
)

// Builder appends movie slides to a presentation and persists it after each one.
type Builder struct {
	pres    *pptx.Presentation
	layout  string
	timing  *timing.Template
	outPath string
	logger  zerolog.Logger
}

// Built describes a slide that has been added and saved.
type Built struct {
	Index     int // 1-based slide number
	ShapeID   int
	SlidePart string
}

// New prepares a builder. The blank layout is resolved once here.
func New(pres *pptx.Presentation, tmpl *timing.Template, outPath string, logger zerolog.Logger) (*Builder, error) {
	layout, err := pres.BlankLayout()
	if err != nil {
		return nil, fmt.Errorf("blank layout: %w", err)
	}
	return &Builder{
		pres:    pres,
		layout:  layout,
		timing:  tmpl,
		outPath: outPath,
		logger:  logger.With().Str("component", "slides").Logger(),
	}, nil
}

// OutPath is where the presentation is saved.
func (b *Builder) OutPath() string { return b.outPath }

// Build adds a slide holding clipPath with thumbPath as poster, binds the
// autoplay timing to the new shape and saves the presentation.
func (b *Builder) Build(ctx context.Context, clipPath, thumbPath string) (Built, error) {
	if err := ctx.Err(); err != nil {
		return Built{}, err
	}

	slide, err := b.pres.AddSlide(b.layout)
	if err != nil {
		return Built{}, fmt.Errorf("add slide: %w", err)
	}

	cx, cy := b.pres.SlideSize()
	id, err := slide.AddMovie(clipPath, thumbPath, 0, 0, cx, cy)
	if err != nil {
		return Built{}, fmt.Errorf("add movie %s: %w", clipPath, err)
	}

	frag, err := b.timing.Bind(id)
	if err != nil {
		return Built{}, err
	}
	slide.SetTiming(frag)

	if err := b.pres.Save(b.outPath); err != nil {
		return Built{}, fmt.Errorf("save %s: %w", b.outPath, err)
	}

	built := Built{Index: b.pres.SlideCount(), ShapeID: id, SlidePart: slide.Part()}
	b.logger.Debug().
		Int("slide", built.Index).
		Int("shape_id", id).
		Str("clip", clipPath).
		Msg("slide saved")
	return built, nil
}
