// Package playback drives the preview and export loops. The Scheduler owns
// the playhead, translates timeline clips into per-tick composition passes,
// and mediates between the decoder pool and the compositor/encoder
// boundaries.
package playback

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/user/montage/pkg/decode"
	"github.com/user/montage/pkg/ports"
	"github.com/user/montage/pkg/timeline"
)

// State is the scheduler's exclusive high-level mode.
type State int

const (
	Stopped State = iota
	Seeking
	Playing
	Encoding
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Seeking:
		return "seeking"
	case Playing:
		return "playing"
	case Encoding:
		return "encoding"
	default:
		return "unknown"
	}
}

const (
	// warmupTicks are skipped at the start of playback so decode sessions
	// can fill their lookahead queues before the first draw.
	warmupTicks = 2

	// tickEpsilon smooths the accumulator comparison against timer jitter.
	tickEpsilon = 2 * time.Millisecond

	// primeWindowFrames is how far ahead upcoming clips get their decode
	// session started before they become active.
	primeWindowFrames = 5

	// encodeRetryLimit bounds per-frame retries on transient starvation
	// during an export.
	encodeRetryLimit = 30

	// encodeRetryDelay is the wait between export frame retries.
	encodeRetryDelay = 10 * time.Millisecond

	// progressInterval is the export progress cadence in frames.
	progressInterval = 30

	// audioSampleRate is the export audio sample rate.
	audioSampleRate = 44100

	// audioBlockMs is the offline audio render block size.
	audioBlockMs = 100
)

// Config carries the output geometry and rate of the scheduler.
type Config struct {
	Width   int
	Height  int
	FPS     float64 // output and timeline frame rate
	Quality int     // export quality, 1-100
}

func (c *Config) applyDefaults() {
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.Quality <= 0 {
		c.Quality = 85
	}
}

// Scheduler is the playback/seek/encode state machine. All state changes
// funnel through one mutex-guarded state enum; Seeking coalesces rapid
// repositioning, Playing and Encoding are mutually exclusive with it and
// with each other.
type Scheduler struct {
	cfg     Config
	pool    *decode.Pool
	comp    ports.Compositor
	encoder ports.EncodeEngine
	audio   ports.AudioRenderer
	fs      ports.FileSystem
	events  ports.EventSink
	logger  ports.Logger

	mu       sync.Mutex
	state    State
	clips    map[string]timeline.ClipUpdate
	playhead int64

	pendingSeek int64
	hasPending  bool
	settled     *sync.Cond // broadcast when a seek drains

	stopPlay  chan struct{}
	playDone  chan struct{}
	cancelEnc bool
}

// New creates a scheduler. The audio renderer may be nil; exports then
// carry no audio track.
func New(cfg Config, pool *decode.Pool, comp ports.Compositor, encoder ports.EncodeEngine, audio ports.AudioRenderer, fs ports.FileSystem, events ports.EventSink, lg ports.Logger) *Scheduler {
	cfg.applyDefaults()
	if events == nil {
		events = ports.NoopEvents{}
	}
	s := &Scheduler{
		cfg:     cfg,
		pool:    pool,
		comp:    comp,
		encoder: encoder,
		audio:   audio,
		fs:      fs,
		events:  events,
		logger:  lg.WithComponent("scheduler"),
		clips:   make(map[string]timeline.ClipUpdate),
	}
	s.settled = sync.NewCond(&s.mu)
	return s
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Playhead returns the current output frame position.
func (s *Scheduler) Playhead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead
}

// UpsertClip replaces the scheduler's projection of one clip. Deleted clips
// stay in the table as tombstones so an undo can resurrect them. While
// stopped, an upsert refreshes the preview at the update's playhead; the
// seek loop coalesces bursts of updates from a drag gesture into few
// rebuilds.
func (s *Scheduler) UpsertClip(u timeline.ClipUpdate) {
	s.mu.Lock()
	s.clips[u.ID] = u
	state := s.state
	s.mu.Unlock()

	if state == Stopped || state == Seeking {
		s.Seek(u.Playhead)
	}
}

// Seek repositions the preview to frame. Rapid calls coalesce: only the
// most recent target is built once the in-flight build completes. Ignored
// while playing or encoding.
func (s *Scheduler) Seek(frame int64) {
	s.mu.Lock()
	if s.state == Playing || s.state == Encoding {
		s.mu.Unlock()
		return
	}
	s.pendingSeek = frame
	s.hasPending = true
	if s.state == Seeking {
		s.mu.Unlock()
		return
	}
	s.state = Seeking
	s.mu.Unlock()

	go s.seekLoop()
}

// seekLoop builds frames until no newer target is pending. Latest wins:
// targets that arrive mid-build are folded into the next iteration.
func (s *Scheduler) seekLoop() {
	for {
		s.mu.Lock()
		if !s.hasPending {
			s.state = Stopped
			s.settled.Broadcast()
			s.mu.Unlock()
			s.events.ReadyToPlay()
			return
		}
		target := s.pendingSeek
		s.hasPending = false
		s.playhead = target
		s.mu.Unlock()

		if _, err := s.buildFrame(context.Background(), target, false, false); err != nil {
			s.logger.Warn("Seek build at frame %d failed: %v", target, err)
		}
	}
}

// Play starts real-time playback from frame. Sessions for clips active at
// the start position are primed first, then a fixed-rate accumulator loop
// advances the playhead at the configured output rate without drifting from
// wall-clock time.
func (s *Scheduler) Play(frame int64) error {
	s.mu.Lock()
	if s.state != Stopped {
		s.mu.Unlock()
		return fmt.Errorf("cannot play in state %s", s.state)
	}
	s.state = Playing
	s.playhead = frame
	s.stopPlay = make(chan struct{})
	s.playDone = make(chan struct{})
	s.mu.Unlock()

	s.primeSessions(frame)
	go s.playLoop(frame)
	return nil
}

// Pause stops playback and leaves every decode session paused.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if s.state != Playing {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopPlay, s.playDone
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	s.pool.PauseAll()
}

func (s *Scheduler) playLoop(startFrame int64) {
	defer close(s.playDone)

	period := time.Duration(float64(time.Second) / s.cfg.FPS)
	ticker := time.NewTicker(period / 4)
	defer ticker.Stop()

	frame := startFrame
	last := time.Now()
	var acc time.Duration
	tick := 0

	for {
		select {
		case <-s.stopPlay:
			return
		case now := <-ticker.C:
			acc += now.Sub(last)
			last = now
			if acc < period-tickEpsilon {
				continue
			}
			acc -= period
			if acc > 2*period {
				// Dropped far behind, shed the backlog instead of bursting.
				acc = 0
			}

			tick++
			if tick <= warmupTicks {
				continue
			}

			s.mu.Lock()
			s.playhead = frame
			s.mu.Unlock()

			if _, err := s.buildFrame(context.Background(), frame, false, false); err != nil {
				s.logger.Debug("Skipping tick at frame %d: %v", frame, err)
			}
			frame++
		}
	}
}

// primeSessions starts a decode session for every decodable clip active at
// frame, positioned at the clip's source-relative offset.
func (s *Scheduler) primeSessions(frame int64) {
	for _, c := range s.activeClips(frame) {
		if !c.Kind.Decodable() {
			continue
		}
		sess, err := s.pool.Assign(c.ID, c.Decode)
		if err != nil {
			s.logger.Warn("No decode session for clip %s: %v", c.ID, err)
			continue
		}
		if err := sess.Play(s.sourceMs(c, frame)); err != nil {
			s.logger.Warn("Failed to prime clip %s: %v", c.ID, err)
		}
	}
}

// activeClips returns live clips containing frame, stably sorted by track
// descending so higher track numbers composite on top.
func (s *Scheduler) activeClips(frame int64) []timeline.ClipUpdate {
	s.mu.Lock()
	out := make([]timeline.ClipUpdate, 0, len(s.clips))
	for _, c := range s.clips {
		if c.Deleted || !c.Kind.Visual() {
			continue
		}
		if frame >= c.Start && frame < c.Start+c.Duration {
			out = append(out, c)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Track != out[j].Track {
			return out[i].Track > out[j].Track
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// upcomingClips returns decodable clips that become active within the prime
// window after frame.
func (s *Scheduler) upcomingClips(frame int64) []timeline.ClipUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []timeline.ClipUpdate
	for _, c := range s.clips {
		if c.Deleted || !c.Kind.Decodable() {
			continue
		}
		if c.Start > frame && c.Start <= frame+primeWindowFrames {
			out = append(out, c)
		}
	}
	return out
}

// buildFrame produces one composite for frame. Decode sessions are assigned
// and their frames fetched before the composition pass opens: assigning
// mid-pass can evict a session whose delivered frame is already with the
// compositor, releasing it before End is awaited.
func (s *Scheduler) buildFrame(ctx context.Context, frame int64, encoding, wantPixels bool) (*image.RGBA, error) {
	s.pool.MarkAllUnused()
	active := s.activeClips(frame)

	frames := make([]ports.Frame, len(active))
	sessions := make([]*decode.Session, len(active))
	var buildErr error
	for i, c := range active {
		if !c.Kind.Decodable() {
			continue
		}
		sess, f, err := s.fetchFrame(c, frame, encoding)
		if err != nil {
			buildErr = err
			if encoding {
				break
			}
			continue
		}
		frames[i], sessions[i] = f, sess
	}
	// Under pool pressure a later assignment can steal an earlier clip's
	// session, releasing the frame it delivered. Drop stolen frames instead
	// of drawing freed pixels.
	for i, sess := range sessions {
		if sess == nil || frames[i] == nil || sess.ClipID() == active[i].ID {
			continue
		}
		frames[i] = nil
		if encoding && buildErr == nil {
			buildErr = decode.ErrFrameNotReady
		}
	}

	s.comp.Begin(s.cfg.Width, s.cfg.Height)
	for slot, c := range active {
		switch {
		case c.Kind.Decodable():
			if frames[slot] != nil {
				s.comp.DrawVideo(slot, frames[slot], c.Params)
			}
		case c.Kind == timeline.KindImage:
			s.comp.DrawImage(slot, c.SourceID, c.Params)
		case c.Kind == timeline.KindText || c.Kind == timeline.KindSubtitle:
			s.comp.DrawText(slot, c.Params, c.Params.Text)
		case c.Kind == timeline.KindTest:
			s.comp.DrawTest(slot, frame-c.Start+c.SourceOffset, c.Params)
		}
	}

	img, endErr := s.comp.End(ctx, wantPixels)

	for _, c := range s.upcomingClips(frame) {
		sess, err := s.pool.Assign(c.ID, c.Decode)
		if err != nil {
			continue
		}
		if err := sess.Play(s.sourceMs(c, c.Start)); err != nil {
			s.logger.Debug("Lookahead priming for clip %s failed: %v", c.ID, err)
		}
	}
	s.pool.PauseUnused()

	if buildErr != nil && encoding {
		return nil, buildErr
	}
	if endErr != nil {
		return nil, endErr
	}
	return img, nil
}

// fetchFrame pulls the nearest frame for one clip through its session.
func (s *Scheduler) fetchFrame(c timeline.ClipUpdate, frame int64, encoding bool) (*decode.Session, ports.Frame, error) {
	sess, err := s.pool.Assign(c.ID, c.Decode)
	if err != nil {
		return nil, nil, err
	}
	if !sess.Running() {
		if err := sess.Play(s.sourceMs(c, frame)); err != nil {
			return nil, nil, err
		}
	}
	f, err := sess.Run(s.sourceMs(c, frame), encoding)
	if err != nil {
		return nil, nil, err
	}
	return sess, f, nil
}

// sourceMs converts an output frame position to the clip's source-relative
// time in milliseconds.
func (s *Scheduler) sourceMs(c timeline.ClipUpdate, frame int64) int64 {
	srcFrame := frame - c.Start + c.SourceOffset
	if srcFrame < 0 {
		srcFrame = 0
	}
	return int64(math.Round(float64(srcFrame) * 1000 / s.cfg.FPS))
}

func (s *Scheduler) frameMs(frame int64) int64 {
	return int64(math.Round(float64(frame) * 1000 / s.cfg.FPS))
}
