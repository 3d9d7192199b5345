// Package mp4source implements a decode engine over fragmented MP4 files
// carrying JPEG-coded video samples. The container is demuxed once into a
// sample index at configure time; each requested stream decodes ahead of
// the consumer on its own goroutine into a bounded buffer.
package mp4source

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"sync"
	"sync/atomic"

	"github.com/user/montage/pkg/ports"
)

// prefetchDepth bounds how many decoded frames a stream buffers ahead.
const prefetchDepth = 4

type sample struct {
	data  []byte
	tsMs  int64
	durMs int64
}

// Engine implements ports.DecodeEngine for one MP4 source.
type Engine struct {
	fs     ports.FileSystem
	logger ports.Logger

	mu      sync.Mutex
	cfg     ports.DecodeConfig
	samples []sample
	open    int64

	inFlight int32
}

// New creates an engine reading containers through fs.
func New(fs ports.FileSystem, lg ports.Logger) *Engine {
	return &Engine{fs: fs, logger: lg.WithComponent("mp4source")}
}

// Factory returns a DecodeEngineFactory for the decoder pool.
func Factory(fs ports.FileSystem, lg ports.Logger) ports.DecodeEngineFactory {
	return ports.DecodeEngineFactoryFunc(func() ports.DecodeEngine {
		return New(fs, lg)
	})
}

// Configure demuxes the source container and builds the sample index.
// In-memory data takes precedence over the path.
func (e *Engine) Configure(cfg ports.DecodeConfig) error {
	if cfg.Codec != "" && cfg.Codec != "jpeg" {
		return fmt.Errorf("unsupported codec %q", cfg.Codec)
	}

	data := cfg.Data
	if data == nil {
		if cfg.Path == "" {
			return fmt.Errorf("source %s has neither data nor path", cfg.SourceID)
		}
		var err error
		data, err = e.fs.ReadFile(cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to read source %s: %w", cfg.SourceID, err)
		}
	}

	samples, err := demux(data)
	if err != nil {
		return fmt.Errorf("failed to demux source %s: %w", cfg.SourceID, err)
	}

	e.mu.Lock()
	e.cfg = cfg
	e.samples = samples
	e.mu.Unlock()
	e.logger.Debug("Indexed %d samples from source %s", len(samples), cfg.SourceID)
	return nil
}

// RequestStream starts decode-ahead at the sample containing startMs.
func (e *Engine) RequestStream(startMs int64) (ports.FrameStream, error) {
	e.mu.Lock()
	samples := e.samples
	e.mu.Unlock()
	if samples == nil {
		return nil, fmt.Errorf("engine not configured")
	}

	start := len(samples)
	for i, sm := range samples {
		if sm.tsMs+sm.durMs > startMs {
			start = i
			break
		}
	}

	s := &stream{
		engine: e,
		frames: make(chan *frame, prefetchDepth),
		stop:   make(chan struct{}),
	}
	go s.produce(samples[start:])
	return s, nil
}

// InFlight reports decodes currently in progress, the session backpressure
// signal.
func (e *Engine) InFlight() int {
	return int(atomic.LoadInt32(&e.inFlight))
}

func (e *Engine) OpenFrames() int {
	return int(atomic.LoadInt64(&e.open))
}

func (e *Engine) Close() {}

var _ ports.DecodeEngine = (*Engine)(nil)

type stream struct {
	engine *Engine
	frames chan *frame
	stop   chan struct{}
	once   sync.Once
}

// produce decodes samples ahead of the consumer. The bounded channel is the
// decode-ahead limit; a full buffer parks the producer.
func (s *stream) produce(samples []sample) {
	defer close(s.frames)
	for _, sm := range samples {
		select {
		case <-s.stop:
			return
		default:
		}

		atomic.AddInt32(&s.engine.inFlight, 1)
		img, err := jpeg.Decode(bytes.NewReader(sm.data))
		atomic.AddInt32(&s.engine.inFlight, -1)
		if err != nil {
			s.engine.logger.Warn("Failed to decode sample at %dms: %v", sm.tsMs, err)
			continue
		}

		f := &frame{engine: s.engine, img: img, ts: sm.tsMs, dur: sm.durMs}
		atomic.AddInt64(&s.engine.open, 1)
		select {
		case s.frames <- f:
		case <-s.stop:
			f.Release()
			return
		}
	}
}

func (s *stream) Next() (ports.Frame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	default:
		return nil, nil
	}
}

func (s *stream) Close() {
	s.once.Do(func() {
		close(s.stop)
		// Drain whatever the producer already buffered.
		for f := range s.frames {
			f.Release()
		}
	})
}
