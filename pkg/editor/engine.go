package editor

import (
	"fmt"

	"github.com/user/montage/pkg/adapters/mp4source"
	"github.com/user/montage/pkg/adapters/testengine"
	"github.com/user/montage/pkg/ports"
)

// dispatchEngine defers engine selection to Configure time, which is when
// the codec is known. The pool reconfigures pooled engines across sources,
// so one slot may switch between synthetic and container-backed decoding.
type dispatchEngine struct {
	fs     ports.FileSystem
	logger ports.Logger
	inner  ports.DecodeEngine
}

func newEngineFactory(fs ports.FileSystem, lg ports.Logger) ports.DecodeEngineFactory {
	return ports.DecodeEngineFactoryFunc(func() ports.DecodeEngine {
		return &dispatchEngine{fs: fs, logger: lg}
	})
}

func (d *dispatchEngine) Configure(cfg ports.DecodeConfig) error {
	if d.inner != nil {
		d.inner.Close()
		d.inner = nil
	}
	switch cfg.Codec {
	case "test":
		d.inner = testengine.New()
	case "jpeg":
		d.inner = mp4source.New(d.fs, d.logger)
	default:
		return fmt.Errorf("no decode engine for codec %q", cfg.Codec)
	}
	return d.inner.Configure(cfg)
}

func (d *dispatchEngine) RequestStream(startMs int64) (ports.FrameStream, error) {
	if d.inner == nil {
		return nil, fmt.Errorf("engine not configured")
	}
	return d.inner.RequestStream(startMs)
}

func (d *dispatchEngine) InFlight() int {
	if d.inner == nil {
		return 0
	}
	return d.inner.InFlight()
}

func (d *dispatchEngine) OpenFrames() int {
	if d.inner == nil {
		return 0
	}
	return d.inner.OpenFrames()
}

func (d *dispatchEngine) Close() {
	if d.inner != nil {
		d.inner.Close()
		d.inner = nil
	}
}

var _ ports.DecodeEngine = (*dispatchEngine)(nil)
