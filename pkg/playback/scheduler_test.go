package playback

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/user/montage/pkg/adapters/logger"
	"github.com/user/montage/pkg/decode"
	"github.com/user/montage/pkg/mocks"
	"github.com/user/montage/pkg/ports"
	"github.com/user/montage/pkg/timeline"
)

type fixture struct {
	sched   *Scheduler
	pool    *decode.Pool
	comp    *mocks.Compositor
	encoder *mocks.EncodeEngine
	fs      *mocks.FileSystem
	events  *mocks.EventSink
	engines *[]*mocks.DecodeEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var engines []*mocks.DecodeEngine
	factory := ports.DecodeEngineFactoryFunc(func() ports.DecodeEngine {
		e := mocks.NewDecodeEngine()
		engines = append(engines, e)
		return e
	})
	lg := logger.NewNoop()
	f := &fixture{
		pool:    decode.NewPool(factory, lg),
		comp:    mocks.NewCompositor(),
		encoder: mocks.NewEncodeEngine(),
		fs:      mocks.NewFileSystem(),
		events:  mocks.NewEventSink(),
		engines: &engines,
	}
	f.sched = New(Config{Width: 320, Height: 240, FPS: 30}, f.pool, f.comp, f.encoder, &SilenceRenderer{}, f.fs, f.events, lg)
	return f
}

func testClip(id string, track int, start, duration int64) timeline.ClipUpdate {
	return timeline.ClipUpdate{
		ID:       id,
		SourceID: "src-" + id,
		Kind:     timeline.KindTest,
		Track:    track,
		Start:    start,
		Duration: duration,
	}
}

func videoClip(id string, track int, start, duration int64) timeline.ClipUpdate {
	return timeline.ClipUpdate{
		ID:        id,
		SourceID:  "src-" + id,
		Kind:      timeline.KindVideo,
		Track:     track,
		Start:     start,
		Duration:  duration,
		FrameRate: 30,
		Decode:    ports.DecodeConfig{SourceID: "src-" + id, Codec: "jpeg", FrameRate: 30},
	}
}

func (f *fixture) addClip(u timeline.ClipUpdate) {
	f.sched.mu.Lock()
	f.sched.clips[u.ID] = u
	f.sched.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSeekCoalescing(t *testing.T) {
	f := newFixture(t)
	f.addClip(testClip("a", 0, 0, 100))

	gate := make(chan struct{}, 2)
	f.comp.EndFunc = func(ctx context.Context, wantPixels bool) (*image.RGBA, error) {
		<-gate
		return nil, nil
	}

	f.sched.Seek(5)
	waitFor(t, "first build to start", func() bool { return f.comp.PassCount() == 1 })

	// These arrive while the first build is in flight; only the latest
	// survives.
	f.sched.Seek(12)
	f.sched.Seek(7)

	gate <- struct{}{}
	gate <- struct{}{}
	waitFor(t, "seek to settle", func() bool { return f.sched.State() == Stopped })

	if got := f.comp.PassCount(); got != 2 {
		t.Fatalf("expected 2 builds (first target and coalesced latest), got %d", got)
	}
	first := f.comp.Passes[0].Calls[0]
	last := f.comp.Passes[1].Calls[0]
	if first.FrameNumber != 5 {
		t.Errorf("first build at frame %d, want 5", first.FrameNumber)
	}
	if last.FrameNumber != 7 {
		t.Errorf("coalesced build at frame %d, want 7 (12 must be skipped)", last.FrameNumber)
	}
	if f.events.Ready() == 0 {
		t.Error("expected ReadyToPlay after the seek settled")
	}
	if got := f.sched.Playhead(); got != 7 {
		t.Errorf("playhead at %d, want 7", got)
	}
}

func TestSeekIgnoredWhileEncoding(t *testing.T) {
	f := newFixture(t)
	f.addClip(testClip("a", 0, 0, 100))
	f.sched.mu.Lock()
	f.sched.state = Encoding
	f.sched.mu.Unlock()

	f.sched.Seek(10)
	time.Sleep(20 * time.Millisecond)
	if got := f.comp.PassCount(); got != 0 {
		t.Errorf("seek must be ignored while encoding, got %d builds", got)
	}
}

func TestUpsertClipRefreshesPreview(t *testing.T) {
	f := newFixture(t)

	u := testClip("a", 0, 0, 100)
	u.Playhead = 42
	f.sched.UpsertClip(u)

	waitFor(t, "preview rebuild", func() bool { return f.comp.PassCount() >= 1 })
	waitFor(t, "seek to settle", func() bool { return f.sched.State() == Stopped })
	last := f.comp.LastPass()
	if len(last.Calls) != 1 || last.Calls[0].FrameNumber != 42 {
		t.Errorf("expected rebuild at the update's playhead, got %+v", last.Calls)
	}
}

func imageClip(id string, track int, start, duration int64) timeline.ClipUpdate {
	u := testClip(id, track, start, duration)
	u.Kind = timeline.KindImage
	return u
}

func TestActiveClipsDrawOrder(t *testing.T) {
	f := newFixture(t)
	f.addClip(imageClip("low", 0, 0, 100))
	f.addClip(imageClip("high", 2, 0, 100))
	f.addClip(imageClip("mid", 1, 0, 100))
	f.addClip(imageClip("later", 3, 50, 100))
	deleted := imageClip("deleted", 4, 0, 100)
	deleted.Deleted = true
	f.addClip(deleted)

	if _, err := f.sched.buildFrame(context.Background(), 10, false, false); err != nil {
		t.Fatalf("buildFrame failed: %v", err)
	}

	pass := f.comp.LastPass()
	if len(pass.Calls) != 3 {
		t.Fatalf("expected 3 draws, got %d", len(pass.Calls))
	}
	// Track descending: background tracks drawn first, low track numbers
	// composite on top.
	want := []string{"src-high", "src-mid", "src-low"}
	for i, call := range pass.Calls {
		if call.SourceID != want[i] {
			t.Errorf("draw %d is %s, want %s", i, call.SourceID, want[i])
		}
	}
}

func TestBuildFrameHoldsFramesUnderPoolPressure(t *testing.T) {
	f := newFixture(t)
	f.pool.SetCapacity(2)
	f.addClip(videoClip("a", 0, 0, 100))
	f.addClip(videoClip("b", 1, 0, 100))
	f.addClip(videoClip("c", 2, 0, 100))

	// Capture each drawn frame's release count while End is still running.
	var releasedAtEnd []int
	f.comp.EndFunc = func(ctx context.Context, wantPixels bool) (*image.RGBA, error) {
		for _, call := range f.comp.LastPass().Calls {
			if call.Kind == "video" {
				releasedAtEnd = append(releasedAtEnd, call.Frame.(*mocks.Frame).Released())
			}
		}
		return nil, nil
	}

	if _, err := f.sched.buildFrame(context.Background(), 10, false, false); err != nil {
		t.Fatalf("buildFrame failed: %v", err)
	}

	if len(releasedAtEnd) == 0 {
		t.Fatal("no video frames reached the compositor")
	}
	// Three clips compete for two sessions; the clip that loses its session
	// mid-build must be skipped, not drawn with a released frame.
	if len(releasedAtEnd) > 2 {
		t.Errorf("%d video draws with 2 sessions, want at most 2", len(releasedAtEnd))
	}
	for i, n := range releasedAtEnd {
		if n != 0 {
			t.Errorf("video draw %d used a frame released %d time(s) before the pass ended", i, n)
		}
	}
}

func TestPlaybackTicksAndPause(t *testing.T) {
	f := newFixture(t)
	f.addClip(videoClip("a", 0, 0, 300))

	if err := f.sched.Play(0); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := f.sched.Play(0); err == nil {
		t.Error("second Play must fail")
	}
	if f.sched.State() != Playing {
		t.Fatalf("state %s, want playing", f.sched.State())
	}

	waitFor(t, "playback builds", func() bool { return f.comp.PassCount() >= 3 })
	f.sched.Pause()

	if f.sched.State() != Stopped {
		t.Errorf("state %s after Pause, want stopped", f.sched.State())
	}
	if got := f.pool.OpenFrames(); got != 0 {
		t.Errorf("%d frames still open after Pause", got)
	}

	// Video frames were actually pulled through a decode session.
	found := false
	for _, p := range f.comp.Passes {
		for _, c := range p.Calls {
			if c.Kind == "video" {
				found = true
			}
		}
	}
	if !found {
		t.Error("no video frame reached the compositor during playback")
	}
}

func TestEncodeProducesEveryFrame(t *testing.T) {
	f := newFixture(t)
	f.addClip(videoClip("a", 0, 0, 300))

	if err := f.sched.Encode(context.Background(), 0, 60, "/out/export.mp4"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if got := f.encoder.VideoFrameCount(); got != 60 {
		t.Errorf("encoded %d frames, want 60", got)
	}
	if _, ok := f.fs.GetFile("/out/export.mp4"); !ok {
		t.Error("export file not written")
	}
	if len(f.events.Completes) != 1 || f.events.Completes[0] != "/out/export.mp4" {
		t.Errorf("completion events %v, want one for the export path", f.events.Completes)
	}
	if f.events.LastProgress() != 100 {
		t.Errorf("final progress %d, want 100", f.events.LastProgress())
	}
	if f.events.Failed() {
		t.Error("unexpected failure progress")
	}
	if f.sched.State() != Stopped {
		t.Errorf("state %s after encode, want stopped", f.sched.State())
	}
	if got := f.pool.OpenFrames(); got != 0 {
		t.Errorf("%d frames still open after encode", got)
	}
	if len(f.encoder.AudioCalls) == 0 {
		t.Error("audio pass did not run")
	}
}

func TestEncodeWaitsForSeekToSettle(t *testing.T) {
	f := newFixture(t)
	f.addClip(videoClip("a", 0, 0, 300))

	// Hold the preview build so the seek is still in flight when the
	// export is requested.
	gate := make(chan struct{})
	f.comp.EndFunc = func(ctx context.Context, wantPixels bool) (*image.RGBA, error) {
		if !wantPixels {
			<-gate
			return nil, nil
		}
		return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
	}

	f.sched.Seek(5)
	waitFor(t, "seek build to start", func() bool { return f.comp.PassCount() >= 1 })

	done := make(chan error, 1)
	go func() {
		done <- f.sched.Encode(context.Background(), 0, 30, "/out/settle.mp4")
	}()

	select {
	case err := <-done:
		t.Fatalf("encode finished while the seek was in flight: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got := f.encoder.VideoFrameCount(); got != 30 {
		t.Errorf("encoded %d frames, want 30", got)
	}
	if f.sched.State() != Stopped {
		t.Errorf("state %s after encode, want stopped", f.sched.State())
	}
}

func TestEncodeRetriesTransientStarvation(t *testing.T) {
	f := newFixture(t)
	f.addClip(videoClip("a", 0, 0, 300))

	// The first source frame stays unavailable for several pulls; the
	// export must retry instead of failing.
	f.sched.pool = decode.NewPool(ports.DecodeEngineFactoryFunc(func() ports.DecodeEngine {
		e := mocks.NewDecodeEngine()
		e.NotReadyAt = map[int]int{0: 5}
		return e
	}), logger.NewNoop())
	f.pool = f.sched.pool

	if err := f.sched.Encode(context.Background(), 0, 30, "/out/retry.mp4"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got := f.encoder.VideoFrameCount(); got != 30 {
		t.Errorf("encoded %d frames, want 30", got)
	}
	if f.events.Failed() {
		t.Error("unexpected failure progress")
	}
}

func TestEncodeFailsWhenRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.addClip(videoClip("a", 0, 0, 300))

	f.sched.pool = decode.NewPool(ports.DecodeEngineFactoryFunc(func() ports.DecodeEngine {
		e := mocks.NewDecodeEngine()
		e.NotReadyAt = map[int]int{0: 100000}
		return e
	}), logger.NewNoop())
	f.pool = f.sched.pool

	err := f.sched.Encode(context.Background(), 0, 30, "/out/fail.mp4")
	if err == nil {
		t.Fatal("expected the export to fail")
	}
	if !f.events.Failed() {
		t.Error("expected a -1 progress signal")
	}
	if _, ok := f.fs.GetFile("/out/fail.mp4"); ok {
		t.Error("failed export must not write a file")
	}
	if f.sched.State() != Stopped {
		t.Errorf("state %s after failed encode, want stopped", f.sched.State())
	}
}

func TestEncodeCancel(t *testing.T) {
	f := newFixture(t)
	f.addClip(videoClip("a", 0, 0, 3000))

	started := make(chan struct{})
	release := make(chan struct{})
	var once bool
	f.encoder.EncodeVideoFrameFunc = func(img image.Image, timestampMs int64) error {
		if !once {
			once = true
			close(started)
			<-release
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.sched.Encode(context.Background(), 0, 1000, "/out/cancel.mp4")
	}()

	<-started
	f.sched.CancelEncode()
	close(release)

	err := <-done
	if err != ErrEncodeCancelled {
		t.Fatalf("expected ErrEncodeCancelled, got %v", err)
	}
	if _, ok := f.fs.GetFile("/out/cancel.mp4"); ok {
		t.Error("cancelled export must not write a file")
	}
	if f.sched.State() != Stopped {
		t.Errorf("state %s after cancel, want stopped", f.sched.State())
	}
}

func TestEncodeRejectsBadRange(t *testing.T) {
	f := newFixture(t)
	if err := f.sched.Encode(context.Background(), 10, 10, "/out/x.mp4"); err == nil {
		t.Error("empty range must be rejected")
	}
}

func TestSilenceRendererBlockGrid(t *testing.T) {
	r := &SilenceRenderer{SampleRate: 1000, Channels: 2}
	blocks, err := r.RenderRange(0, 250, 100)
	if err != nil {
		t.Fatalf("RenderRange failed: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if got := len(blocks[0].Planar[0]); got != 100 {
		t.Errorf("block 0 has %d samples, want 100", got)
	}
	if got := len(blocks[2].Planar[0]); got != 50 {
		t.Errorf("tail block has %d samples, want 50", got)
	}
	if blocks[2].TimestampMs != 200 {
		t.Errorf("tail block at %dms, want 200", blocks[2].TimestampMs)
	}
}
