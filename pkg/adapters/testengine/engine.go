// Package testengine provides a deterministic synthetic decode engine.
// It produces numbered flat-color frames on a fixed grid, which makes it
// useful for demos, timing experiments and anything that needs a decoder
// without real media.
package testengine

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/user/montage/pkg/ports"
)

const defaultTotalFrames = 9000

// Engine implements ports.DecodeEngine with generated frames.
type Engine struct {
	mu          sync.Mutex
	cfg         ports.DecodeConfig
	width       int
	height      int
	totalFrames int
	open        int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSize sets the generated frame geometry.
func WithSize(width, height int) Option {
	return func(e *Engine) {
		e.width = width
		e.height = height
	}
}

// WithTotalFrames bounds the generated stream.
func WithTotalFrames(n int) Option {
	return func(e *Engine) {
		e.totalFrames = n
	}
}

// New creates a synthetic engine.
func New(opts ...Option) *Engine {
	e := &Engine{width: 64, height: 36, totalFrames: defaultTotalFrames}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Factory returns a DecodeEngineFactory producing engines with the given
// options.
func Factory(opts ...Option) ports.DecodeEngineFactory {
	return ports.DecodeEngineFactoryFunc(func() ports.DecodeEngine {
		return New(opts...)
	})
}

func (e *Engine) Configure(cfg ports.DecodeConfig) error {
	if cfg.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate %f", cfg.FrameRate)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	return nil
}

func (e *Engine) RequestStream(startMs int64) (ports.FrameStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("engine not configured")
	}
	durMs := int64(1000 / e.cfg.FrameRate)
	idx := 0
	if durMs > 0 {
		idx = int(startMs / durMs)
	}
	if idx < 0 {
		idx = 0
	}
	return &stream{engine: e, next: idx, durMs: durMs}, nil
}

// InFlight is always zero: frame generation is synchronous.
func (e *Engine) InFlight() int { return 0 }

func (e *Engine) OpenFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

func (e *Engine) Close() {}

var _ ports.DecodeEngine = (*Engine)(nil)

type stream struct {
	engine *Engine
	mu     sync.Mutex
	next   int
	durMs  int64
	closed bool
}

func (s *stream) Next() (ports.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.next >= s.engine.totalFrames {
		return nil, io.EOF
	}
	idx := s.next
	s.next++

	s.engine.mu.Lock()
	s.engine.open++
	s.engine.mu.Unlock()

	return &frame{
		engine: s.engine,
		img:    renderPattern(s.engine.width, s.engine.height, idx),
		ts:     int64(idx) * s.durMs,
		dur:    s.durMs,
	}, nil
}

func (s *stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// renderPattern fills the frame with a hue derived from the frame index and
// a moving marker column so consecutive frames are visually distinct.
func renderPattern(width, height, idx int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := color.RGBA{
		R: uint8(37 * idx),
		G: uint8(91 * idx),
		B: uint8(151 * idx),
		A: 255,
	}
	marker := idx % width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x == marker {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetRGBA(x, y, base)
			}
		}
	}
	return img
}

type frame struct {
	engine   *Engine
	img      *image.RGBA
	ts       int64
	dur      int64
	mu       sync.Mutex
	released bool
}

func (f *frame) Image() image.Image { return f.img }
func (f *frame) TimestampMs() int64 { return f.ts }
func (f *frame) DurationMs() int64  { return f.dur }

func (f *frame) Release() {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return
	}
	f.released = true
	f.mu.Unlock()

	f.engine.mu.Lock()
	f.engine.open--
	f.engine.mu.Unlock()
}

var _ ports.Frame = (*frame)(nil)
