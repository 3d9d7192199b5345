package mp4source

import (
	"bytes"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/montage/pkg/ports"
)

// demux parses a fragmented MP4 and returns the video track's samples with
// millisecond timing.
func demux(data []byte) ([]sample, error) {
	mp4File, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse container: %w", err)
	}
	if !mp4File.IsFragmented() {
		return nil, fmt.Errorf("progressive MP4 not supported, use fragmented MP4")
	}

	var videoTrackID uint32
	var trex *mp4.TrexBox
	var timescale uint32 = 1000

	if mp4File.Init != nil && mp4File.Init.Moov != nil {
		for _, trak := range mp4File.Init.Moov.Traks {
			if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
				videoTrackID = trak.Tkhd.TrackID
				if trak.Mdia.Mdhd != nil {
					timescale = trak.Mdia.Mdhd.Timescale
				}
				break
			}
		}
		if mp4File.Init.Moov.Mvex != nil {
			for _, t := range mp4File.Init.Moov.Mvex.Trexs {
				if t.TrackID == videoTrackID {
					trex = t
					break
				}
			}
		}
	}
	if videoTrackID == 0 {
		return nil, fmt.Errorf("no video track found")
	}

	var samples []sample
	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != videoTrackID {
					continue
				}

				var baseDecodeTime uint64
				if traf.Tfdt != nil {
					baseDecodeTime = traf.Tfdt.BaseMediaDecodeTime()
				}

				full, err := frag.GetFullSamples(trex)
				if err != nil {
					return nil, fmt.Errorf("failed to read samples: %w", err)
				}

				currentTime := baseDecodeTime
				for _, fs := range full {
					samples = append(samples, sample{
						data:  fs.Data,
						tsMs:  int64(currentTime * 1000 / uint64(timescale)),
						durMs: int64(uint64(fs.Dur) * 1000 / uint64(timescale)),
					})
					currentTime += uint64(fs.Dur)
				}
			}
		}
	}
	return samples, nil
}

type frame struct {
	engine   *Engine
	img      image.Image
	ts       int64
	dur      int64
	released int32
}

func (f *frame) Image() image.Image { return f.img }
func (f *frame) TimestampMs() int64 { return f.ts }
func (f *frame) DurationMs() int64  { return f.dur }

func (f *frame) Release() {
	if !atomic.CompareAndSwapInt32(&f.released, 0, 1) {
		return
	}
	atomic.AddInt64(&f.engine.open, -1)
}

var _ ports.Frame = (*frame)(nil)
