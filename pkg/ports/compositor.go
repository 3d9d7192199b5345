package ports

import (
	"context"
	"image"
)

// RenderParams are the per-clip drawing parameters handed to the compositor.
type RenderParams struct {
	X        float64 // horizontal offset in output pixels
	Y        float64 // vertical offset in output pixels
	Scale    float64 // uniform scale, 0 means 1.0
	Rotation float64 // rotation in degrees around the clip center
	Opacity  float64 // 0..1, 0 means 1.0
	Text     string  // text content for text clips
	Color    string  // hex color for text/test clips, e.g. "#ffffff"
	FontSize float64 // text size in pixels, 0 means default
}

// EffectiveScale returns the scale with the zero value mapped to 1.0.
func (p RenderParams) EffectiveScale() float64 {
	if p.Scale == 0 {
		return 1.0
	}
	return p.Scale
}

// EffectiveOpacity returns the opacity with the zero value mapped to 1.0.
func (p RenderParams) EffectiveOpacity() float64 {
	if p.Opacity == 0 {
		return 1.0
	}
	return p.Opacity
}

// Compositor is the render boundary. The scheduler issues at most one
// Begin/draw.../End cycle per output frame and must await End before
// releasing any frame passed to DrawVideo.
type Compositor interface {
	// Begin opens a composition pass for one output frame.
	Begin(width, height int)

	// DrawVideo draws a decoded frame for the clip occupying trackSlot.
	DrawVideo(trackSlot int, frame Frame, params RenderParams)

	// DrawImage draws a still image source registered under sourceID.
	DrawImage(trackSlot int, sourceID string, params RenderParams)

	// DrawText draws a text clip.
	DrawText(trackSlot int, params RenderParams, text string)

	// DrawTest draws a synthetic numbered test pattern.
	DrawTest(trackSlot int, frameNumber int64, params RenderParams)

	// End completes the pass. When wantPixels is true the composited
	// frame is returned as a pixel buffer for encoding; otherwise the
	// result goes to the preview surface and nil is returned.
	End(ctx context.Context, wantPixels bool) (*image.RGBA, error)
}
