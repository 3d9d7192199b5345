// Package decode manages the scarce decoder resources behind the playback
// engine. A Pool bounds how many decode sessions exist at once and reuses
// the least recently used one when a new clip needs decoding. A Session
// wraps one external decode engine and maintains a small lookahead queue of
// decoded frames so the scheduler can ask for "the frame nearest time T"
// without waiting on the decoder.
package decode

import (
	"errors"
	"io"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/user/montage/pkg/ports"
)

// ErrFrameNotReady is returned by Run during an encode when no frame is
// available for the target time. Playback tolerates starvation by reusing
// the previous frame; an export cannot.
var ErrFrameNotReady = errors.New("frame not ready")

const (
	// prefetchFrames is the initial batch pulled when a stream starts.
	prefetchFrames = 4

	// lowWaterFrames triggers a refill once steady-state delivery began.
	lowWaterFrames = 2

	// maxQueueFrames bounds the lookahead queue length.
	maxQueueFrames = 5

	// maxQueueDurationMs bounds the lookahead queue by buffered duration.
	maxQueueDurationMs = 3000

	// maxInFlight is the engine backpressure threshold. The session stops
	// pulling while the engine reports this many outstanding requests.
	maxInFlight = 4
)

type sessionState int

const (
	stateIdle sessionState = iota
	statePlaying
)

// Session is a reusable per-clip decoding context. It is owned by the Pool
// and reassigned between clips; the Pool is the only creator.
//
// Frames returned by Run are borrowed: the session keeps ownership and
// releases each frame when it is superseded or the session pauses. Callers
// must finish using a frame before the next Run or Pause on the session.
type Session struct {
	mu     sync.Mutex
	engine ports.DecodeEngine
	logger ports.Logger

	clipID   string
	lastUsed time.Time
	used     bool

	state     sessionState
	stream    ports.FrameStream
	queue     []ports.Frame
	prev      ports.Frame
	eof       bool
	delivered bool

	// open mirrors the timestamps of frames pulled from the engine and not
	// yet released. Leak detection only, not load bearing.
	open mapset.Set[int64]
}

func newSession(engine ports.DecodeEngine, logger ports.Logger) *Session {
	return &Session{
		engine: engine,
		logger: logger.WithComponent("session"),
		open:   mapset.NewSet[int64](),
	}
}

// ClipID returns the id of the clip this session is assigned to.
func (s *Session) ClipID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipID
}

// Running reports whether the session is in the playing state.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == statePlaying
}

// OpenFrames returns the number of pulled but unreleased frames.
func (s *Session) OpenFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open.Cardinality()
}

// QueueLen returns the current lookahead queue length.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Play starts frame production positioned at startMs. It is a no-op when
// the session is already playing. An initial batch is prefetched so the
// first Run has frames to choose from.
func (s *Session) Play(startMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == statePlaying {
		return nil
	}

	s.resetLocked()

	stream, err := s.engine.RequestStream(startMs)
	if err != nil {
		s.logger.Warn("Failed to start frame stream for clip %s: %v", s.clipID, err)
		return err
	}
	s.stream = stream
	s.state = statePlaying

	s.fillLocked(prefetchFrames)
	return nil
}

// Run delivers the queued frame nearest to targetMs. The selection scans
// the timestamp-ordered queue from the front and stops at the first delta
// increase. When the previously delivered frame is still strictly closer
// (source rate below output rate) it is delivered again without consuming
// the queue. Entries before the chosen one are stale and released.
//
// With an empty queue, playback falls back to the previous frame while an
// encode gets ErrFrameNotReady. A nil frame with a nil error means nothing
// is available this tick.
func (s *Session) Run(targetMs int64, encoding bool) (ports.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != statePlaying {
		if encoding {
			return nil, ErrFrameNotReady
		}
		return nil, nil
	}
	s.used = true

	if s.delivered && len(s.queue) < lowWaterFrames {
		s.fillLocked(maxQueueFrames)
	} else if len(s.queue) == 0 {
		s.fillLocked(prefetchFrames)
	}

	best := -1
	var bestDelta int64
	for i, f := range s.queue {
		d := abs64(f.TimestampMs() - targetMs)
		if best >= 0 && d >= bestDelta {
			break
		}
		best = i
		bestDelta = d
	}

	if best < 0 {
		// End of stream with an empty queue means the previous frame is
		// the definitive nearest, even for an encode. Otherwise an empty
		// queue is transient starvation: tolerable in playback, fatal for
		// the current export frame.
		if s.prev != nil && (!encoding || s.eof) {
			return s.prev, nil
		}
		if encoding {
			return nil, ErrFrameNotReady
		}
		return nil, nil
	}

	if s.prev != nil && abs64(s.prev.TimestampMs()-targetMs) < bestDelta {
		return s.prev, nil
	}

	for i := 0; i < best; i++ {
		s.releaseLocked(s.queue[i])
	}
	if s.prev != nil {
		s.releaseLocked(s.prev)
	}
	s.prev = s.queue[best]
	s.queue = append(s.queue[:0], s.queue[best+1:]...)
	s.delivered = true
	return s.prev, nil
}

// Pause stops frame production and releases every held frame. No-op when
// the session is not playing.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != statePlaying {
		return
	}
	s.resetLocked()
	s.state = stateIdle
}

// fillLocked pulls frames from the stream up to target, honoring the queue
// caps and the engine's in-flight threshold. Decode errors are logged and
// end the pull for this tick.
func (s *Session) fillLocked(target int) {
	if s.stream == nil || s.eof {
		return
	}
	for len(s.queue) < target && len(s.queue) < maxQueueFrames {
		if s.queuedDurationLocked() >= maxQueueDurationMs {
			return
		}
		if s.engine.InFlight() >= maxInFlight {
			return
		}
		f, err := s.stream.Next()
		if err == io.EOF {
			s.eof = true
			return
		}
		if err != nil {
			s.logger.Warn("Decode error for clip %s: %v", s.clipID, err)
			return
		}
		if f == nil {
			return
		}
		s.open.Add(f.TimestampMs())
		s.queue = append(s.queue, f)
	}
}

func (s *Session) queuedDurationLocked() int64 {
	var total int64
	for _, f := range s.queue {
		total += f.DurationMs()
	}
	return total
}

func (s *Session) releaseLocked(f ports.Frame) {
	s.open.Remove(f.TimestampMs())
	f.Release()
}

func (s *Session) resetLocked() {
	for _, f := range s.queue {
		s.releaseLocked(f)
	}
	s.queue = s.queue[:0]
	if s.prev != nil {
		s.releaseLocked(s.prev)
		s.prev = nil
	}
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	s.eof = false
	s.delivered = false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
