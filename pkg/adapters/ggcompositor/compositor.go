// Package ggcompositor is a software compositor built on the gg drawing
// library. Still image sources are registered once by id; video frames
// arrive per pass from the decode sessions.
package ggcompositor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/montage/pkg/ports"
)

const defaultFontSize = 48

// Compositor implements ports.Compositor.
type Compositor struct {
	logger ports.Logger

	mu       sync.Mutex
	images   map[string]image.Image
	fontPath string

	dc     *gg.Context
	width  int
	height int
}

// New creates a compositor.
func New(lg ports.Logger) *Compositor {
	return &Compositor{
		logger: lg.WithComponent("compositor"),
		images: make(map[string]image.Image),
	}
}

// SetFontPath points text drawing at a TTF file. Without one the built-in
// bitmap face is used and font sizes are ignored.
func (c *Compositor) SetFontPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fontPath = path
}

// RegisterImage binds a still image to a source id for DrawImage.
func (c *Compositor) RegisterImage(sourceID string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[sourceID] = img
}

func (c *Compositor) Begin(width, height int) {
	c.width = width
	c.height = height
	c.dc = gg.NewContext(width, height)
	c.dc.SetColor(color.Black)
	c.dc.Clear()
}

func (c *Compositor) DrawVideo(trackSlot int, frame ports.Frame, params ports.RenderParams) {
	if c.dc == nil || frame == nil {
		return
	}
	c.drawScaled(frame.Image(), params)
}

func (c *Compositor) DrawImage(trackSlot int, sourceID string, params ports.RenderParams) {
	if c.dc == nil {
		return
	}
	c.mu.Lock()
	img, ok := c.images[sourceID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("No image registered for source %s", sourceID)
		return
	}
	c.drawScaled(img, params)
}

func (c *Compositor) DrawText(trackSlot int, params ports.RenderParams, text string) {
	if c.dc == nil || text == "" {
		return
	}
	c.mu.Lock()
	fontPath := c.fontPath
	c.mu.Unlock()
	if fontPath != "" {
		size := params.FontSize
		if size <= 0 {
			size = defaultFontSize
		}
		if err := c.dc.LoadFontFace(fontPath, size); err != nil {
			c.logger.Debug("Failed to load font %s: %v", fontPath, err)
		}
	}
	c.setColor(params.Color, "#ffffff")
	x := float64(c.width)/2 + params.X
	y := float64(c.height)/2 + params.Y
	c.dc.Push()
	if params.Rotation != 0 {
		c.dc.RotateAbout(gg.Radians(params.Rotation), x, y)
	}
	c.dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
	c.dc.Pop()
}

func (c *Compositor) DrawTest(trackSlot int, frameNumber int64, params ports.RenderParams) {
	if c.dc == nil {
		return
	}
	c.setColor(params.Color, "#204060")
	w := float64(c.width) * params.EffectiveScale()
	h := float64(c.height) * params.EffectiveScale()
	x := float64(c.width)/2 + params.X - w/2
	y := float64(c.height)/2 + params.Y - h/2
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.Fill()

	c.dc.SetColor(color.White)
	c.dc.DrawStringAnchored(fmt.Sprintf("%d", frameNumber), x+w/2, y+h/2, 0.5, 0.5)
}

func (c *Compositor) End(ctx context.Context, wantPixels bool) (*image.RGBA, error) {
	if c.dc == nil {
		return nil, fmt.Errorf("no composition pass open")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dc := c.dc
	c.dc = nil
	if !wantPixels {
		return nil, nil
	}

	src := dc.Image()
	out := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
	return out, nil
}

// drawScaled scales the element, applies opacity by attenuating the pixel
// buffer, then draws it centered at the canvas center plus the param
// offsets, rotated around its own center.
func (c *Compositor) drawScaled(img image.Image, params ports.RenderParams) {
	scale := params.EffectiveScale()
	bounds := img.Bounds()
	w := int(float64(bounds.Dx()) * scale)
	h := int(float64(bounds.Dy()) * scale)
	if w <= 0 || h <= 0 {
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)

	if opacity := params.EffectiveOpacity(); opacity < 1 {
		attenuate(scaled, opacity)
	}

	cx := float64(c.width)/2 + params.X
	cy := float64(c.height)/2 + params.Y
	c.dc.Push()
	if params.Rotation != 0 {
		c.dc.RotateAbout(gg.Radians(params.Rotation), cx, cy)
	}
	c.dc.DrawImage(scaled, int(cx-float64(w)/2), int(cy-float64(h)/2))
	c.dc.Pop()
}

func (c *Compositor) setColor(hex, fallback string) {
	if hex == "" {
		hex = fallback
	}
	c.dc.SetHexColor(hex)
}

// attenuate multiplies every channel of the premultiplied buffer by
// opacity.
func attenuate(img *image.RGBA, opacity float64) {
	if opacity < 0 {
		opacity = 0
	}
	for i := range img.Pix {
		img.Pix[i] = uint8(float64(img.Pix[i]) * opacity)
	}
}

var _ ports.Compositor = (*Compositor)(nil)
