package mocks

import (
	"image"
	"sync"

	"github.com/user/montage/pkg/ports"
)

// EncodeEngine is a mock implementation of ports.EncodeEngine.
type EncodeEngine struct {
	BeginFunc            func(width, height int, fps float64, sampleRate int, opts ports.EncodeOptions) error
	EncodeVideoFrameFunc func(img image.Image, timestampMs int64) error
	FinalizeFunc         func() (ports.EncodeResult, error)

	mu          sync.Mutex
	BeginCalled bool
	VideoCalls  []int64 // timestamps of encoded video frames
	AudioCalls  []int64 // timestamps of encoded audio blocks
	Finalized   bool
}

// NewEncodeEngine creates a new mock encode engine.
func NewEncodeEngine() *EncodeEngine {
	return &EncodeEngine{}
}

func (e *EncodeEngine) Begin(width, height int, fps float64, sampleRate int, opts ports.EncodeOptions) error {
	e.mu.Lock()
	e.BeginCalled = true
	e.mu.Unlock()
	if e.BeginFunc != nil {
		return e.BeginFunc(width, height, fps, sampleRate, opts)
	}
	return nil
}

func (e *EncodeEngine) EncodeVideoFrame(img image.Image, timestampMs int64) error {
	e.mu.Lock()
	e.VideoCalls = append(e.VideoCalls, timestampMs)
	e.mu.Unlock()
	if e.EncodeVideoFrameFunc != nil {
		return e.EncodeVideoFrameFunc(img, timestampMs)
	}
	return nil
}

func (e *EncodeEngine) EncodeAudioBlock(planar [][]float32, timestampMs int64) error {
	e.mu.Lock()
	e.AudioCalls = append(e.AudioCalls, timestampMs)
	e.mu.Unlock()
	return nil
}

func (e *EncodeEngine) Finalize() (ports.EncodeResult, error) {
	e.mu.Lock()
	e.Finalized = true
	n := len(e.VideoCalls)
	e.mu.Unlock()
	if e.FinalizeFunc != nil {
		return e.FinalizeFunc()
	}
	// Minimal MP4-ish bytes plus a size hint for assertions.
	return ports.EncodeResult{Video: []byte{0x00, 0x00, 0x00, byte(n)}}, nil
}

// VideoFrameCount returns the number of encoded video frames.
func (e *EncodeEngine) VideoFrameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.VideoCalls)
}

var _ ports.EncodeEngine = (*EncodeEngine)(nil)
