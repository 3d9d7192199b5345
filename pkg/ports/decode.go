package ports

import "image"

// Frame is a decoded video frame with presentation timing.
// Frames borrow decoder-owned resources and must be released exactly once;
// releasing twice or never is a caller bug that the engine may surface
// through its open-frame accounting.
type Frame interface {
	// Image returns the decoded pixels.
	Image() image.Image

	// TimestampMs returns the presentation timestamp in milliseconds
	// relative to the start of the source.
	TimestampMs() int64

	// DurationMs returns the display duration in milliseconds.
	DurationMs() int64

	// Release returns the frame to the decode engine.
	Release()
}

// DecodeConfig carries everything a decode engine needs to bind to a source.
type DecodeConfig struct {
	SourceID  string
	Path      string  // container file path (empty when Data is set)
	Data      []byte  // in-memory container, preferred over Path when non-nil
	Codec     string  // codec identifier, e.g. "jpeg"
	FrameRate float64 // native frame rate of the source
}

// FrameStream is a positioned, pull-based sequence of decoded frames in
// presentation order.
type FrameStream interface {
	// Next returns the next decoded frame. It returns (nil, nil) when no
	// frame is ready yet and io.EOF when the stream is exhausted.
	// Frames are delivered in non-decreasing timestamp order.
	Next() (Frame, error)

	// Close tears the stream down and discards undelivered frames.
	Close()
}

// DecodeEngine abstracts an external decoder for one media source.
// Engines are scarce; the decoder pool bounds how many exist at once and
// reconfigures them when a session is reassigned to another clip.
type DecodeEngine interface {
	// Configure binds the engine to a source. It may be called again to
	// rebind a pooled engine to a different source.
	Configure(cfg DecodeConfig) error

	// RequestStream starts frame production positioned at startMs.
	RequestStream(startMs int64) (FrameStream, error)

	// InFlight reports the number of outstanding decode requests.
	// Sessions use this for backpressure and stop pulling above a threshold.
	InFlight() int

	// OpenFrames reports the number of delivered but unreleased frames.
	OpenFrames() int

	// Close releases all engine resources.
	Close()
}

// DecodeEngineFactory creates decode engines for the pool.
type DecodeEngineFactory interface {
	// NewEngine creates an unconfigured decode engine.
	NewEngine() DecodeEngine
}

// DecodeEngineFactoryFunc is a function adapter for DecodeEngineFactory.
type DecodeEngineFactoryFunc func() DecodeEngine

// NewEngine implements DecodeEngineFactory.
func (f DecodeEngineFactoryFunc) NewEngine() DecodeEngine {
	return f()
}
