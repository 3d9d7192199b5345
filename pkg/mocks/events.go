package mocks

import (
	"sync"

	"github.com/user/montage/pkg/ports"
)

// EventSink is a mock implementation of ports.EventSink recording every
// event for verification.
type EventSink struct {
	mu         sync.Mutex
	Progress   []int
	Completes  []string
	ReadyCount int
	Thumbnails []string
}

// NewEventSink creates a new mock event sink.
func NewEventSink() *EventSink {
	return &EventSink{}
}

func (s *EventSink) ReadyToPlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadyCount++
}

func (s *EventSink) EncodeProgress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress = append(s.Progress, percent)
}

func (s *EventSink) EncodeComplete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completes = append(s.Completes, path)
}

func (s *EventSink) ThumbnailReady(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Thumbnails = append(s.Thumbnails, sourceID)
}

// Ready returns how many times ReadyToPlay fired.
func (s *EventSink) Ready() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReadyCount
}

// LastProgress returns the most recent progress value, or 0.
func (s *EventSink) LastProgress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Progress) == 0 {
		return 0
	}
	return s.Progress[len(s.Progress)-1]
}

// Failed reports whether a failure (-1) was signaled.
func (s *EventSink) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Progress {
		if p == -1 {
			return true
		}
	}
	return false
}

var _ ports.EventSink = (*EventSink)(nil)
