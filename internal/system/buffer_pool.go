package system

import (
	"image"
	"sync"
)

// FramePool reuses RGBA buffers keyed by size. Thumbnail workers downscale
// frames of the same few sizes over and over.
type FramePool struct {
	mu    sync.RWMutex
	pools map[image.Point]*sync.Pool
}

var frames = NewFramePool()

// NewFramePool returns an empty pool.
func NewFramePool() *FramePool {
	return &FramePool{pools: make(map[image.Point]*sync.Pool)}
}

// GetFrame returns a cleared w x h buffer from the shared pool.
func GetFrame(w, h int) *image.RGBA { return frames.Get(w, h) }

// PutFrame returns img to the shared pool.
func PutFrame(img *image.RGBA) { frames.Put(img) }

func (p *FramePool) pool(size image.Point) *sync.Pool {
	p.mu.RLock()
	pool, ok := p.pools[size]
	p.mu.RUnlock()
	if ok {
		return pool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok = p.pools[size]; !ok {
		pool = &sync.Pool{
			New: func() interface{} {
				return image.NewRGBA(image.Rectangle{Max: size})
			},
		}
		p.pools[size] = pool
	}
	return pool
}

// Get returns a w x h buffer with all pixels transparent.
func (p *FramePool) Get(w, h int) *image.RGBA {
	img := p.pool(image.Pt(w, h)).Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// Put hands img back. Buffers with a non-zero origin are dropped.
func (p *FramePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.pool(img.Rect.Size()).Put(img)
}
