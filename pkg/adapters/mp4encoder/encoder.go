// Package mp4encoder implements the export encoder. Video frames are
// JPEG-coded and muxed into a fragmented MP4; audio blocks are rendered to
// a PCM16 WAV sidecar carried in the result.
package mp4encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/user/montage/pkg/ports"
)

type encodedFrame struct {
	data []byte
	tsMs int64
}

// Encoder implements ports.EncodeEngine. Begin resets all state, so one
// encoder can serve successive exports.
type Encoder struct {
	logger ports.Logger

	width      int
	height     int
	fps        float64
	sampleRate int
	quality    int
	began      bool

	frames        []encodedFrame
	pcm           []byte
	audioChannels int
}

// New creates an encoder.
func New(lg ports.Logger) *Encoder {
	return &Encoder{logger: lg.WithComponent("mp4encoder")}
}

func (e *Encoder) Begin(width, height int, fps float64, sampleRate int, opts ports.EncodeOptions) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid output geometry %dx%d", width, height)
	}
	if fps <= 0 {
		return fmt.Errorf("invalid output rate %f", fps)
	}
	e.width = width
	e.height = height
	e.fps = fps
	e.sampleRate = sampleRate
	e.quality = opts.Quality
	if e.quality <= 0 || e.quality > 100 {
		e.quality = 85
	}
	e.frames = nil
	e.pcm = nil
	e.audioChannels = 0
	e.began = true
	return nil
}

func (e *Encoder) EncodeVideoFrame(img image.Image, timestampMs int64) error {
	if !e.began {
		return fmt.Errorf("encoder not started")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("failed to encode frame at %dms: %w", timestampMs, err)
	}
	e.frames = append(e.frames, encodedFrame{data: buf.Bytes(), tsMs: timestampMs})
	return nil
}

// EncodeAudioBlock appends one planar float block as interleaved PCM16.
// Blocks must arrive in timestamp order.
func (e *Encoder) EncodeAudioBlock(planar [][]float32, timestampMs int64) error {
	if !e.began {
		return fmt.Errorf("encoder not started")
	}
	if len(planar) == 0 {
		return nil
	}
	if e.audioChannels == 0 {
		e.audioChannels = len(planar)
	}
	if len(planar) != e.audioChannels {
		return fmt.Errorf("channel count changed mid-stream: %d then %d", e.audioChannels, len(planar))
	}

	samples := len(planar[0])
	for i := 0; i < samples; i++ {
		for ch := 0; ch < e.audioChannels; ch++ {
			v := planar[ch][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			s := int16(v * 32767)
			e.pcm = append(e.pcm, byte(s), byte(s>>8))
		}
	}
	return nil
}

func (e *Encoder) Finalize() (ports.EncodeResult, error) {
	if !e.began {
		return ports.EncodeResult{}, fmt.Errorf("encoder not started")
	}
	e.began = false

	video, err := e.buildMP4()
	if err != nil {
		return ports.EncodeResult{}, err
	}

	var audio []byte
	if len(e.pcm) > 0 {
		audio = buildWAV(e.pcm, e.sampleRate, e.audioChannels)
	}

	var durationMs int64
	if n := len(e.frames); n > 0 {
		durationMs = e.frames[n-1].tsMs + int64(1000/e.fps)
	}
	e.logger.Debug("Finalized export: %d frames, %d audio bytes", len(e.frames), len(audio))
	return ports.EncodeResult{Video: video, Audio: audio, DurationMs: durationMs}, nil
}

var _ ports.EncodeEngine = (*Encoder)(nil)

// buildWAV wraps interleaved PCM16 data in a RIFF header.
func buildWAV(pcm []byte, sampleRate, channels int) []byte {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if channels <= 0 {
		channels = 2
	}
	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	writeUint32(&buf, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeUint32(&buf, 16)
	writeUint16(&buf, 1) // PCM
	writeUint16(&buf, uint16(channels))
	writeUint32(&buf, uint32(sampleRate))
	writeUint32(&buf, uint32(byteRate))
	writeUint16(&buf, uint16(blockAlign))
	writeUint16(&buf, 16) // bits per sample
	buf.WriteString("data")
	writeUint32(&buf, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	buf.Write([]byte{byte(v), byte(v >> 8)})
}
