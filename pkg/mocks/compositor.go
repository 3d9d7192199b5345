package mocks

import (
	"context"
	"image"
	"sync"

	"github.com/user/montage/pkg/ports"
)

// DrawCall records one draw operation within a composition pass.
type DrawCall struct {
	Kind        string // "video", "image", "text", "test"
	TrackSlot   int
	TimestampMs int64       // video frame timestamp, when Kind == "video"
	Frame       ports.Frame // the drawn frame, when Kind == "video"
	SourceID    string
	Text        string
	FrameNumber int64
}

// Pass records one Begin/draw/End cycle.
type Pass struct {
	Width, Height int
	Calls         []DrawCall
	WantPixels    bool
}

// Compositor is a mock implementation of ports.Compositor recording every
// composition pass for verification.
type Compositor struct {
	// EndFunc optionally overrides End (for gating or failure injection).
	EndFunc func(ctx context.Context, wantPixels bool) (*image.RGBA, error)

	mu      sync.Mutex
	current *Pass
	Passes  []Pass
}

// NewCompositor creates a new mock compositor.
func NewCompositor() *Compositor {
	return &Compositor{}
}

func (c *Compositor) Begin(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = &Pass{Width: width, Height: height}
}

func (c *Compositor) DrawVideo(trackSlot int, frame ports.Frame, params ports.RenderParams) {
	c.record(DrawCall{Kind: "video", TrackSlot: trackSlot, TimestampMs: frame.TimestampMs(), Frame: frame})
}

func (c *Compositor) DrawImage(trackSlot int, sourceID string, params ports.RenderParams) {
	c.record(DrawCall{Kind: "image", TrackSlot: trackSlot, SourceID: sourceID})
}

func (c *Compositor) DrawText(trackSlot int, params ports.RenderParams, text string) {
	c.record(DrawCall{Kind: "text", TrackSlot: trackSlot, Text: text})
}

func (c *Compositor) DrawTest(trackSlot int, frameNumber int64, params ports.RenderParams) {
	c.record(DrawCall{Kind: "test", TrackSlot: trackSlot, FrameNumber: frameNumber})
}

func (c *Compositor) record(call DrawCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Calls = append(c.current.Calls, call)
	}
}

func (c *Compositor) End(ctx context.Context, wantPixels bool) (*image.RGBA, error) {
	c.mu.Lock()
	if c.current != nil {
		c.current.WantPixels = wantPixels
		c.Passes = append(c.Passes, *c.current)
		c.current = nil
	}
	c.mu.Unlock()

	if c.EndFunc != nil {
		return c.EndFunc(ctx, wantPixels)
	}
	if wantPixels {
		return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
	}
	return nil, nil
}

// PassCount returns the number of completed passes.
func (c *Compositor) PassCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Passes)
}

// LastPass returns the most recent completed pass, or nil.
func (c *Compositor) LastPass() *Pass {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Passes) == 0 {
		return nil
	}
	p := c.Passes[len(c.Passes)-1]
	return &p
}

var _ ports.Compositor = (*Compositor)(nil)
