package timeline

import (
	"testing"

	"github.com/user/montage/pkg/adapters/logger"
)

func newTestTimeline() *Timeline {
	t := New(logger.NewNoop())
	t.AddSource(&Source{ID: "vid", Kind: KindVideo, DurationFrames: 600, FrameRate: 30})
	t.AddSource(&Source{ID: "img", Kind: KindImage, FrameRate: 30})
	t.AddSource(&Source{ID: "snd", Kind: KindAudio, DurationFrames: 600, FrameRate: 30})
	return t
}

func TestCreateClipDurationDefaults(t *testing.T) {
	tl := newTestTimeline()

	c := tl.CreateClip("vid", 0, 0, 0, 0)
	if c == nil {
		t.Fatal("CreateClip returned nil")
	}
	if c.Duration != 600 {
		t.Errorf("duration %d, want the source's natural 600", c.Duration)
	}

	// Open-ended sources fill the timeline from the start position.
	c2 := tl.CreateClip("img", 1, 100, 0, 0)
	if c2.Duration != tl.DurationFrames-100 {
		t.Errorf("open-ended duration %d, want %d", c2.Duration, tl.DurationFrames-100)
	}

	if c3 := tl.CreateClip("nope", 0, 0, 50, 0); c3 != nil {
		t.Error("unknown source must be rejected")
	}
}

func TestCreateClipTrimsOverlappedTail(t *testing.T) {
	tl := newTestTimeline()

	a := tl.CreateClip("vid", 0, 0, 100, 0)
	b := tl.CreateClip("vid", 0, 50, 80, 0)

	if a.Duration != 50 {
		t.Errorf("overlapped clip duration %d, want 50", a.Duration)
	}
	if b.Start != 50 || b.Duration != 80 {
		t.Errorf("new clip must be untouched, got [%d, %d)", b.Start, b.End())
	}
	if !a.JoinRight || !b.JoinLeft {
		t.Error("touching edges must set join flags")
	}
}

func TestCreateClipTrimsOverlappedHead(t *testing.T) {
	tl := newTestTimeline()

	a := tl.CreateClip("vid", 0, 100, 100, 10)
	tl.CreateClip("vid", 0, 50, 80, 0) // covers [50, 130)

	if a.Start != 130 || a.End() != 200 {
		t.Errorf("head-trimmed clip at [%d, %d), want [130, 200)", a.Start, a.End())
	}
	// The media stays aligned: the offset shifts by the trimmed amount.
	if a.SourceOffset != 40 {
		t.Errorf("source offset %d, want 40", a.SourceOffset)
	}
}

func TestCreateClipSplitsContainingSibling(t *testing.T) {
	tl := newTestTimeline()

	a := tl.CreateClip("vid", 0, 0, 200, 0)
	tl.CreateClip("vid", 0, 50, 50, 0) // inside a

	if a.Duration != 50 {
		t.Errorf("containing clip trimmed to %d, want 50", a.Duration)
	}
	live := tl.LiveClips()
	if len(live) != 3 {
		t.Fatalf("expected 3 live clips after the split, got %d", len(live))
	}
	tail := live[2]
	if tail.Start != 100 || tail.End() != 200 {
		t.Errorf("tail at [%d, %d), want [100, 200)", tail.Start, tail.End())
	}
	if tail.SourceOffset != 100 {
		t.Errorf("tail source offset %d, want 100", tail.SourceOffset)
	}
}

func TestCreateClipDeletesCoveredSibling(t *testing.T) {
	tl := newTestTimeline()

	a := tl.CreateClip("vid", 0, 50, 50, 0)
	tl.CreateClip("vid", 0, 0, 200, 0)

	if !a.Deleted {
		t.Error("fully covered sibling must be tombstoned")
	}
	if len(tl.LiveClips()) != 1 {
		t.Errorf("expected 1 live clip, got %d", len(tl.LiveClips()))
	}
}

func TestLiveClipsNeverOverlap(t *testing.T) {
	tl := newTestTimeline()

	placements := []struct{ start, duration int64 }{
		{0, 100}, {50, 80}, {10, 30}, {120, 40}, {0, 300}, {90, 15},
	}
	for _, p := range placements {
		tl.CreateClip("vid", 0, p.start, p.duration, 0)
	}

	live := tl.LiveClips()
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			a, b := live[i], live[j]
			if a.Start < b.End() && a.End() > b.Start {
				t.Errorf("clips %s [%d,%d) and %s [%d,%d) overlap",
					a.ID, a.Start, a.End(), b.ID, b.Start, b.End())
			}
		}
	}
}

func TestSplitClip(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 100, 0)

	tail := tl.SplitClip(c.ID, 40, 0)
	if tail == nil {
		t.Fatal("SplitClip returned nil")
	}
	if c.Duration != 40 {
		t.Errorf("head duration %d, want 40", c.Duration)
	}
	if tail.Start != 40 || tail.End() != 100 {
		t.Errorf("tail at [%d, %d), want [40, 100)", tail.Start, tail.End())
	}
	if tail.SourceOffset != 40 {
		t.Errorf("tail source offset %d, want 40", tail.SourceOffset)
	}
	if !c.JoinRight || !tail.JoinLeft {
		t.Error("zero-gap split must join the halves")
	}

	// Out-of-range cuts are rejected.
	if tl.SplitClip(c.ID, 0, 0) != nil {
		t.Error("cut at the clip start must be rejected")
	}
	if tl.SplitClip(c.ID, 40, 0) != nil {
		t.Error("cut at the clip end must be rejected")
	}
}

func TestSplitClipWithGap(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 100, 0)

	tail := tl.SplitClip(c.ID, 40, 10)
	if tail.Start != 50 || tail.End() != 100 {
		t.Errorf("tail at [%d, %d), want [50, 100)", tail.Start, tail.End())
	}
	if tail.SourceOffset != 50 {
		t.Errorf("tail source offset %d, want 50", tail.SourceOffset)
	}
	if c.JoinRight || tail.JoinLeft {
		t.Error("gapped split must not join")
	}
}

func TestSplitUndoRestoresOriginal(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 100, 0)
	tail := tl.SplitClip(c.ID, 40, 0)

	tl.Undo()
	if c.Duration != 100 {
		t.Errorf("head duration %d after undo, want 100", c.Duration)
	}
	if !tail.Deleted {
		t.Error("tail must be tombstoned after undo")
	}

	tl.Redo()
	if c.Duration != 40 {
		t.Errorf("head duration %d after redo, want 40", c.Duration)
	}
	if tail.Deleted {
		t.Error("tail must be live again after redo")
	}
}

func TestUndoCreateWithTrimIsAtomic(t *testing.T) {
	tl := newTestTimeline()
	a := tl.CreateClip("vid", 0, 0, 100, 0)
	b := tl.CreateClip("vid", 0, 50, 80, 0)

	// One undo reverts both the add and the sibling trim.
	tl.Undo()
	if a.Duration != 100 {
		t.Errorf("trimmed sibling duration %d after undo, want 100", a.Duration)
	}
	if !b.Deleted {
		t.Error("created clip must be gone after undo")
	}

	tl.Redo()
	if a.Duration != 50 || b.Deleted {
		t.Error("redo must re-apply the add and the trim together")
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	tl := newTestTimeline()

	a := tl.CreateClip("vid", 0, 0, 100, 0)
	b := tl.CreateClip("vid", 1, 30, 60, 5)
	tl.DeleteClip(a.ID)
	tl.SplitClip(b.ID, 50, 0)

	type state struct {
		start, duration, offset int64
		track                   int
		deleted                 bool
	}
	capture := func() []state {
		var out []state
		for _, c := range tl.Clips() {
			out = append(out, state{c.Start, c.Duration, c.SourceOffset, c.Track, c.Deleted})
		}
		return out
	}
	final := capture()

	steps := 0
	for tl.History().CanUndo() {
		tl.Undo()
		steps++
	}
	if steps != 4 {
		t.Errorf("expected 4 undo steps, got %d", steps)
	}
	for tl.History().CanRedo() {
		tl.Redo()
	}

	replayed := capture()
	if len(replayed) != len(final) {
		t.Fatalf("clip count changed: %d vs %d", len(replayed), len(final))
	}
	for i := range final {
		if final[i] != replayed[i] {
			t.Errorf("clip %d differs after round trip: %+v vs %+v", i, final[i], replayed[i])
		}
	}
}

func TestJoinsFollowDeletion(t *testing.T) {
	tl := newTestTimeline()
	a := tl.CreateClip("vid", 0, 0, 50, 0)
	b := tl.CreateClip("vid", 0, 50, 50, 0)
	c := tl.CreateClip("vid", 0, 120, 30, 0)

	if !a.JoinRight || !b.JoinLeft {
		t.Error("touching clips must join")
	}
	if b.JoinRight || c.JoinLeft {
		t.Error("gapped clips must not join")
	}

	tl.DeleteClip(b.ID)
	if a.JoinRight {
		t.Error("join must clear when the neighbor is deleted")
	}

	tl.Undo()
	if !a.JoinRight || !b.JoinLeft {
		t.Error("undo must restore the join")
	}
}

func TestSelectionAndLookup(t *testing.T) {
	tl := newTestTimeline()
	a := tl.CreateClip("vid", 0, 0, 100, 0)

	tl.Select(a.ID)
	if tl.Selected() != a {
		t.Error("selection lost")
	}
	tl.Select("missing")
	if tl.Selected() != nil {
		t.Error("unknown id must clear the selection")
	}

	if got := tl.ClipAt(0, 50); got != a {
		t.Error("ClipAt missed the occupying clip")
	}
	if got := tl.ClipAt(0, 100); got != nil {
		t.Error("clip interval end is exclusive")
	}
	if got := tl.ClipAt(1, 50); got != nil {
		t.Error("wrong track must not match")
	}

	tl.DeleteClip(a.ID)
	if tl.Selected() != nil {
		t.Error("deleting the selected clip must clear the selection")
	}
}

func TestUpdatesReachTheRenderBoundary(t *testing.T) {
	tl := newTestTimeline()

	var updates []ClipUpdate
	tl.SetUpdateFunc(func(u ClipUpdate) { updates = append(updates, u) })
	tl.Playhead = 7

	c := tl.CreateClip("vid", 2, 10, 100, 5)
	if len(updates) == 0 {
		t.Fatal("no update pushed")
	}
	u := updates[len(updates)-1]
	if u.ID != c.ID || u.Track != 2 || u.Start != 10 || u.Duration != 100 || u.SourceOffset != 5 {
		t.Errorf("projection mismatch: %+v", u)
	}
	if u.Kind != KindVideo || u.Playhead != 7 {
		t.Errorf("projection metadata mismatch: %+v", u)
	}
	if !tl.Dirty() {
		t.Error("mutation must mark the timeline dirty")
	}
	if tl.Dirty() {
		t.Error("Dirty must clear on read")
	}
}
