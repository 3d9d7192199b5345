package mp4encoder

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
)

// buildMP4 muxes the collected JPEG frames into a fragmented MP4 with a
// single video track. Every sample is a keyframe.
func (e *Encoder) buildMP4() ([]byte, error) {
	if len(e.frames) == 0 {
		return nil, fmt.Errorf("no frames to encode")
	}

	timescale := uint32(e.fps * 1000)
	trackID := uint32(1)

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "en")

	trak := init.Moov.Trak

	mjpg := mp4.CreateVisualSampleEntryBox("mjpg", uint16(e.width), uint16(e.height), nil)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mjpg)

	trak.Tkhd.Width = mp4.Fixed32(e.width << 16)
	trak.Tkhd.Height = mp4.Fixed32(e.height << 16)

	frag, err := mp4.CreateFragment(1, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to create fragment: %w", err)
	}

	defaultDur := uint32(float64(timescale) / e.fps)
	for i, frame := range e.frames {
		var dur uint32
		if i < len(e.frames)-1 {
			dur = uint32((e.frames[i+1].tsMs - frame.tsMs) * int64(timescale) / 1000)
		} else {
			dur = defaultDur
		}
		if dur == 0 {
			dur = defaultDur
		}

		decodeTime := uint64(frame.tsMs) * uint64(timescale) / 1000

		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: mp4.SyncSampleFlags,
				Size:  uint32(len(frame.data)),
				Dur:   dur,
			},
			DecodeTime: decodeTime,
			Data:       frame.data,
		})
	}

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode moov: %w", err)
	}
	if err := frag.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode fragment: %w", err)
	}
	return buf.Bytes(), nil
}
