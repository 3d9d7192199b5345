package ports

import "image"

// EncodeOptions configures video encoding parameters.
type EncodeOptions struct {
	Quality int // codec quality knob, adapter-specific (JPEG: 1-100)
	Bitrate int // target bitrate in kbps, 0 lets the adapter decide
}

// EncodeResult is the finalized export output.
type EncodeResult struct {
	Video      []byte // container bytes for the video track
	Audio      []byte // optional sidecar audio bytes, nil when no audio
	DurationMs int64
}

// EncodeEngine abstracts an external encoder/muxer for one export run.
type EncodeEngine interface {
	// Begin initializes the engine for an export.
	Begin(width, height int, fps float64, sampleRate int, opts EncodeOptions) error

	// EncodeVideoFrame encodes one composited frame at the given timestamp.
	EncodeVideoFrame(img image.Image, timestampMs int64) error

	// EncodeAudioBlock encodes one block of planar float samples.
	EncodeAudioBlock(planar [][]float32, timestampMs int64) error

	// Finalize flushes the engine and returns the container bytes.
	Finalize() (EncodeResult, error)
}

// AudioRenderer produces mixed audio for a time range ahead of the video
// pass (the offline, non-real-time path used during export).
type AudioRenderer interface {
	// RenderRange mixes all audible clips between startMs and endMs into
	// planar float blocks of at most blockMs each.
	RenderRange(startMs, endMs int64, blockMs int64) ([]AudioBlock, error)
}

// AudioBlock is one rendered block of planar samples.
type AudioBlock struct {
	Planar      [][]float32
	TimestampMs int64
}
