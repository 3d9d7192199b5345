package mocks

import (
	"io"
	"sync"

	"github.com/user/montage/pkg/ports"
)

// DecodeEngine is a mock implementation of ports.DecodeEngine producing
// synthetic frames on a fixed grid. Frame timestamps are multiples of
// FrameDurMs starting at zero; TotalFrames bounds the stream.
type DecodeEngine struct {
	FrameDurMs  int64 // default 33
	TotalFrames int   // default 300

	// NotReadyAt maps a frame index to a number of Next calls that report
	// "not ready" before the frame is delivered. Used to exercise the
	// scheduler's retry path.
	NotReadyAt map[int]int

	ConfigureFunc func(cfg ports.DecodeConfig) error

	mu            sync.Mutex
	cfg           ports.DecodeConfig
	configured    int
	streams       int
	open          int
	closed        bool
	streamStarts  []int64
}

// NewDecodeEngine creates a mock engine with default frame timing.
func NewDecodeEngine() *DecodeEngine {
	return &DecodeEngine{FrameDurMs: 33, TotalFrames: 300}
}

func (e *DecodeEngine) Configure(cfg ports.DecodeConfig) error {
	e.mu.Lock()
	e.cfg = cfg
	e.configured++
	e.mu.Unlock()
	if e.ConfigureFunc != nil {
		return e.ConfigureFunc(cfg)
	}
	return nil
}

// Config returns the most recent configuration (for test verification).
func (e *DecodeEngine) Config() ports.DecodeConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// ConfigureCount returns how many times Configure was called.
func (e *DecodeEngine) ConfigureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configured
}

// StreamStarts returns the start positions of all requested streams.
func (e *DecodeEngine) StreamStarts() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int64, len(e.streamStarts))
	copy(out, e.streamStarts)
	return out
}

func (e *DecodeEngine) RequestStream(startMs int64) (ports.FrameStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streams++
	e.streamStarts = append(e.streamStarts, startMs)

	idx := 0
	if e.FrameDurMs > 0 {
		idx = int(startMs / e.FrameDurMs)
	}
	if idx < 0 {
		idx = 0
	}
	return &frameStream{engine: e, next: idx, pending: map[int]int{}}, nil
}

func (e *DecodeEngine) InFlight() int { return 0 }

func (e *DecodeEngine) OpenFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

func (e *DecodeEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

var _ ports.DecodeEngine = (*DecodeEngine)(nil)

type frameStream struct {
	engine  *DecodeEngine
	mu      sync.Mutex
	next    int
	pending map[int]int // not-ready countdowns already consumed
	closed  bool
}

func (s *frameStream) Next() (ports.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.next >= s.engine.TotalFrames {
		return nil, io.EOF
	}

	if want, ok := s.engine.NotReadyAt[s.next]; ok {
		if s.pending[s.next] < want {
			s.pending[s.next]++
			return nil, nil
		}
	}

	idx := s.next
	s.next++

	f := NewFrame(int64(idx)*s.engine.FrameDurMs, s.engine.FrameDurMs)
	s.engine.mu.Lock()
	s.engine.open++
	s.engine.mu.Unlock()
	f.onRelease = func() {
		s.engine.mu.Lock()
		s.engine.open--
		s.engine.mu.Unlock()
	}
	return f, nil
}

func (s *frameStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
