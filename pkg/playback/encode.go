package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/user/montage/pkg/decode"
	"github.com/user/montage/pkg/ports"
)

// ErrEncodeCancelled reports an export stopped by CancelEncode.
var ErrEncodeCancelled = errors.New("encode cancelled")

// Encode exports frames [startFrame, endFrame) to outPath. The traversal is
// deterministic and frame-by-frame, not wall-clock driven: every output
// frame is force-built, retrying transient starvation up to a bounded
// budget before the whole export fails. Audio is rendered offline before
// the video pass. Progress is reported through the event sink, -1 on
// failure. Decode sessions are left paused on every exit path.
//
// An in-flight seek is allowed to settle before the export starts; clip
// placement and scrubbing leave coalesced preview rebuilds behind that
// would otherwise reject an immediate export.
func (s *Scheduler) Encode(ctx context.Context, startFrame, endFrame int64, outPath string) error {
	s.mu.Lock()
	for s.state == Seeking {
		s.settled.Wait()
	}
	if s.state != Stopped {
		s.mu.Unlock()
		return fmt.Errorf("cannot encode in state %s", s.state)
	}
	if endFrame <= startFrame {
		s.mu.Unlock()
		return fmt.Errorf("empty export range [%d, %d)", startFrame, endFrame)
	}
	s.state = Encoding
	s.cancelEnc = false
	s.mu.Unlock()

	err := s.encode(ctx, startFrame, endFrame, outPath)

	s.pool.PauseAll()
	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()

	if err != nil {
		s.events.EncodeProgress(-1)
		s.logger.Error("Export failed: %v", err)
		return err
	}
	s.events.EncodeComplete(outPath)
	return nil
}

// CancelEncode stops a running export before its next frame.
func (s *Scheduler) CancelEncode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Encoding {
		s.cancelEnc = true
	}
}

func (s *Scheduler) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelEnc
}

func (s *Scheduler) encode(ctx context.Context, startFrame, endFrame int64, outPath string) error {
	total := endFrame - startFrame
	s.logger.Info("Rendering %d frames to %s", total, outPath)

	opts := ports.EncodeOptions{Quality: s.cfg.Quality}
	if err := s.encoder.Begin(s.cfg.Width, s.cfg.Height, s.cfg.FPS, audioSampleRate, opts); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	if err := s.encodeAudio(startFrame, endFrame); err != nil {
		return err
	}

	s.pool.PauseAll()
	for frame := startFrame; frame < endFrame; frame++ {
		if s.cancelled(ctx) {
			return ErrEncodeCancelled
		}

		img, err := s.buildEncodeFrame(ctx, frame)
		if err != nil {
			return fmt.Errorf("failed to build frame %d: %w", frame, err)
		}
		ts := s.frameMs(frame) - s.frameMs(startFrame)
		if err := s.encoder.EncodeVideoFrame(img, ts); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", frame, err)
		}

		done := frame - startFrame + 1
		if done%progressInterval == 0 {
			s.events.EncodeProgress(int(done * 100 / total))
		}
	}

	result, err := s.encoder.Finalize()
	if err != nil {
		return fmt.Errorf("failed to finalize export: %w", err)
	}
	if err := s.fs.WriteFile(outPath, result.Video); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if len(result.Audio) > 0 {
		sidecar := outPath + ".wav"
		if err := s.fs.WriteFile(sidecar, result.Audio); err != nil {
			return fmt.Errorf("failed to write audio sidecar: %w", err)
		}
		s.logger.Info("Audio track written as sidecar %s", sidecar)
	}
	s.logger.Info("Export completed: %d bytes", len(result.Video))
	s.events.EncodeProgress(100)
	return nil
}

// buildEncodeFrame retries transient frame starvation with a short delay
// before giving up on the export.
func (s *Scheduler) buildEncodeFrame(ctx context.Context, frame int64) (img *image.RGBA, err error) {
	for attempt := 0; attempt <= encodeRetryLimit; attempt++ {
		if attempt > 0 {
			time.Sleep(encodeRetryDelay)
			s.logger.Debug("Frame %d not ready, retrying", frame)
		}
		rgba, buildErr := s.buildFrame(ctx, frame, true, true)
		if buildErr == nil {
			return rgba, nil
		}
		if !errors.Is(buildErr, decode.ErrFrameNotReady) {
			return nil, buildErr
		}
		err = buildErr
	}
	return nil, fmt.Errorf("frame %d unavailable after %d attempts: %w", frame, encodeRetryLimit, err)
}

// encodeAudio renders the export range offline and feeds it to the encoder
// in fixed-size blocks.
func (s *Scheduler) encodeAudio(startFrame, endFrame int64) error {
	if s.audio == nil {
		return nil
	}
	startMs := s.frameMs(startFrame)
	endMs := s.frameMs(endFrame)
	blocks, err := s.audio.RenderRange(startMs, endMs, audioBlockMs)
	if err != nil {
		return fmt.Errorf("failed to render audio: %w", err)
	}
	for _, b := range blocks {
		if err := s.encoder.EncodeAudioBlock(b.Planar, b.TimestampMs-startMs); err != nil {
			return fmt.Errorf("failed to encode audio block at %dms: %w", b.TimestampMs, err)
		}
	}
	return nil
}
