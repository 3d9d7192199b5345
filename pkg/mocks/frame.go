// Package mocks provides hand-written mock implementations of the ports
// interfaces for testing.
package mocks

import (
	"image"
	"sync"

	"github.com/user/montage/pkg/ports"
)

// Frame is a mock implementation of ports.Frame that counts releases.
type Frame struct {
	Ts  int64
	Dur int64
	Img image.Image

	mu        sync.Mutex
	released  int
	onRelease func()
}

// NewFrame creates a mock frame with the given timing.
func NewFrame(ts, dur int64) *Frame {
	return &Frame{Ts: ts, Dur: dur}
}

func (f *Frame) Image() image.Image { return f.Img }
func (f *Frame) TimestampMs() int64 { return f.Ts }
func (f *Frame) DurationMs() int64  { return f.Dur }

func (f *Frame) Release() {
	f.mu.Lock()
	f.released++
	cb := f.onRelease
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Released returns how many times Release was called.
func (f *Frame) Released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

var _ ports.Frame = (*Frame)(nil)
