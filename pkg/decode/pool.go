package decode

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/montage/pkg/ports"
)

// DefaultCapacity bounds simultaneous decode sessions. External decoders
// are expensive; exceeding the bound degrades many-clip playback through
// reuse rather than failure.
const DefaultCapacity = 4

// Pool bounds the number of live decode sessions and reassigns the least
// recently used one under pressure.
type Pool struct {
	mu       sync.Mutex
	factory  ports.DecodeEngineFactory
	logger   ports.Logger
	capacity int
	sessions []*Session
	now      func() time.Time
}

// NewPool creates a pool with the default capacity.
func NewPool(factory ports.DecodeEngineFactory, logger ports.Logger) *Pool {
	return &Pool{
		factory:  factory,
		logger:   logger.WithComponent("pool"),
		capacity: DefaultCapacity,
		now:      time.Now,
	}
}

// SetCapacity overrides the session bound. Panics on non-positive values.
func (p *Pool) SetCapacity(n int) {
	if n <= 0 {
		panic(fmt.Sprintf("invalid pool capacity %d", n))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacity = n
}

// Len returns the current number of sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Assign returns the session bound to clipID, creating one below capacity
// or evicting the least recently used session otherwise. Eviction pauses
// the victim, discarding its lookahead queue, and reconfigures its engine
// for the new source. The returned session has its last-used stamp and
// per-frame used flag refreshed.
func (p *Pool) Assign(clipID string, cfg ports.DecodeConfig) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.sessions {
		if s.ClipID() == clipID {
			p.touchLocked(s)
			return s, nil
		}
	}

	if len(p.sessions) < p.capacity {
		engine := p.factory.NewEngine()
		if err := engine.Configure(cfg); err != nil {
			engine.Close()
			return nil, fmt.Errorf("failed to configure decode engine for clip %s: %w", clipID, err)
		}
		s := newSession(engine, p.logger)
		s.clipID = clipID
		p.sessions = append(p.sessions, s)
		p.touchLocked(s)
		p.logger.Debug("Created decode session %d/%d for clip %s", len(p.sessions), p.capacity, clipID)
		return s, nil
	}

	victim := p.sessions[0]
	for _, s := range p.sessions[1:] {
		if s.lastUsed.Before(victim.lastUsed) {
			victim = s
		}
	}
	p.logger.Debug("Reassigning decode session from clip %s to clip %s", victim.ClipID(), clipID)
	victim.Pause()
	if err := victim.engine.Configure(cfg); err != nil {
		return nil, fmt.Errorf("failed to reconfigure decode engine for clip %s: %w", clipID, err)
	}
	victim.mu.Lock()
	victim.clipID = clipID
	victim.mu.Unlock()
	p.touchLocked(victim)
	return victim, nil
}

func (p *Pool) touchLocked(s *Session) {
	s.mu.Lock()
	s.lastUsed = p.now()
	s.used = true
	s.mu.Unlock()
}

// PauseAll pauses every running session. Called before seeks and encodes
// and on every scheduler stop path.
func (p *Pool) PauseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.Pause()
	}
}

// MarkAllUnused clears every session's per-frame used flag. The scheduler
// calls it before building an output frame; sessions touched during the
// build set the flag again.
func (p *Pool) MarkAllUnused() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.mu.Lock()
		s.used = false
		s.mu.Unlock()
	}
}

// PauseUnused pauses every session that was not touched since the last
// MarkAllUnused sweep. Idle clips relinquish decoders promptly this way
// instead of waiting for pool pressure.
func (p *Pool) PauseUnused() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.mu.Lock()
		used := s.used
		s.mu.Unlock()
		if !used {
			s.Pause()
		}
	}
}

// OpenFrames sums unreleased frames across all sessions.
func (p *Pool) OpenFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, s := range p.sessions {
		total += s.OpenFrames()
	}
	return total
}

// Close pauses and tears down every session.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.Pause()
		s.engine.Close()
	}
	p.sessions = nil
}
