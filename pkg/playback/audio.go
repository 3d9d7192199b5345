package playback

import (
	"github.com/user/montage/pkg/ports"
)

// SilenceRenderer is an offline audio renderer producing stereo silence.
// It keeps the export's audio pass exercised end to end when no audio
// decoder is wired in; the block grid matches what a real renderer would
// produce.
type SilenceRenderer struct {
	SampleRate int // defaults to the scheduler's export rate
	Channels   int // defaults to 2
}

// RenderRange returns zeroed planar blocks covering [startMs, endMs).
func (r *SilenceRenderer) RenderRange(startMs, endMs, blockMs int64) ([]ports.AudioBlock, error) {
	rate := r.SampleRate
	if rate <= 0 {
		rate = audioSampleRate
	}
	channels := r.Channels
	if channels <= 0 {
		channels = 2
	}
	if blockMs <= 0 {
		blockMs = audioBlockMs
	}

	var blocks []ports.AudioBlock
	for ts := startMs; ts < endMs; ts += blockMs {
		ms := blockMs
		if ts+ms > endMs {
			ms = endMs - ts
		}
		samples := int(int64(rate) * ms / 1000)
		if samples == 0 {
			continue
		}
		planar := make([][]float32, channels)
		for ch := range planar {
			planar[ch] = make([]float32, samples)
		}
		blocks = append(blocks, ports.AudioBlock{Planar: planar, TimestampMs: ts})
	}
	return blocks, nil
}

var _ ports.AudioRenderer = (*SilenceRenderer)(nil)
