package timeline

import "testing"

// All gesture tests run at the default zoom of one pixel per frame, so
// pixel deltas read as frame deltas.

func TestMoveSnapsToPlayhead(t *testing.T) {
	tl := newTestTimeline()
	tl.Playhead = 100
	c := tl.CreateClip("vid", 0, 0, 50, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.MoveSelectedClip(95, 0)
	tl.EndGesture()

	if c.Start != 100 {
		t.Errorf("start %d, want snapped to playhead 100", c.Start)
	}
}

func TestMoveSnapsToSiblingEdge(t *testing.T) {
	tl := newTestTimeline()
	tl.CreateClip("vid", 0, 0, 100, 0)
	b := tl.CreateClip("vid", 0, 200, 50, 0)
	tl.Select(b.ID)

	tl.BeginGesture()
	tl.MoveSelectedClip(-95, 0) // candidate 105, within tolerance of 100
	tl.EndGesture()

	if b.Start != 100 {
		t.Errorf("start %d, want snapped to sibling edge 100", b.Start)
	}
	if !b.JoinLeft {
		t.Error("snapped zero-gap edge must join")
	}
}

func TestMoveClampsToTimelineBounds(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 100, 50, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.MoveSelectedClip(-500, 0)
	tl.EndGesture()
	if c.Start != 0 {
		t.Errorf("start %d, want clamped to 0", c.Start)
	}

	tl.BeginGesture()
	tl.MoveSelectedClip(5000, 0)
	tl.EndGesture()
	if c.End() != tl.DurationFrames {
		t.Errorf("end %d, want clamped to %d", c.End(), tl.DurationFrames)
	}
}

func TestMoveNeverOverlapsSiblings(t *testing.T) {
	tl := newTestTimeline()
	tl.CreateClip("vid", 0, 100, 100, 0)
	b := tl.CreateClip("vid", 0, 300, 50, 0)
	tl.Select(b.ID)

	tl.BeginGesture()
	tl.MoveSelectedClip(-170, 0) // candidate 130, inside the sibling
	tl.EndGesture()

	if b.Start < 200 {
		t.Errorf("start %d overlaps the sibling [100, 200)", b.Start)
	}
}

func TestMoveSwitchesTrackOnVerticalDrag(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 50, 0)
	tl.Select(c.ID)

	// Less than half a track band: no switch.
	tl.BeginGesture()
	tl.MoveSelectedClip(0, 20)
	tl.EndGesture()
	if c.Track != 0 {
		t.Errorf("track %d after a small drag, want 0", c.Track)
	}

	// A full band of travel moves one track down.
	tl.BeginGesture()
	tl.MoveSelectedClip(0, float64(DefaultTrackHeight))
	tl.EndGesture()
	if c.Track != 1 {
		t.Errorf("track %d after a full-band drag, want 1", c.Track)
	}
}

func TestMoveKeepsAudioOnItsTrack(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("snd", 3, 0, 50, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.MoveSelectedClip(0, float64(2*DefaultTrackHeight))
	tl.EndGesture()

	if c.Track != 3 {
		t.Errorf("track %d, audio clips must not switch tracks", c.Track)
	}
}

func TestMoveUndoRedo(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 200, 50, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.MoveSelectedClip(-80, 0)
	tl.EndGesture()
	if c.Start != 120 {
		t.Fatalf("start %d after move, want 120", c.Start)
	}

	tl.Undo()
	if c.Start != 200 {
		t.Errorf("start %d after undo, want 200", c.Start)
	}
	tl.Redo()
	if c.Start != 120 {
		t.Errorf("start %d after redo, want 120", c.Start)
	}
}

func TestResizeEndMinimumSize(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 100, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.ResizeSelectedClip(-97, false) // candidate end 3
	tl.EndGesture()

	if c.Duration != 10 {
		t.Errorf("duration %d, want the 10 frame minimum", c.Duration)
	}
}

func TestResizeEndClampsToSourceLength(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 500, 50) // source has 600 frames
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.ResizeSelectedClip(200, false) // candidate end 700, media ends at 550
	if !c.Invalid {
		t.Error("source-bound clamp must flag the clip invalid")
	}
	tl.EndGesture()

	if c.End() != 550 {
		t.Errorf("end %d, want clamped to 550", c.End())
	}
}

func TestResizeStartAdjustsOffset(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 100, 100, 30)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.ResizeSelectedClip(20, true)
	tl.EndGesture()

	if c.Start != 120 || c.Duration != 80 {
		t.Errorf("clip at [%d, %d), want [120, 200)", c.Start, c.End())
	}
	if c.SourceOffset != 50 {
		t.Errorf("source offset %d, want 50", c.SourceOffset)
	}
}

func TestResizeStartClampsAtZeroOffset(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 100, 100, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.ResizeSelectedClip(-50, true) // would need offset -50
	if !c.Invalid {
		t.Error("negative offset clamp must flag the clip invalid")
	}
	tl.EndGesture()

	if c.Start != 100 || c.SourceOffset != 0 {
		t.Errorf("clip start %d offset %d, want 100 and 0", c.Start, c.SourceOffset)
	}
}

func TestResizeEndStopsAtRightNeighbor(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 100, 0)
	tl.CreateClip("vid", 0, 150, 50, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.ResizeSelectedClip(200, false)
	tl.EndGesture()

	if c.End() != 150 {
		t.Errorf("end %d, want stopped at the neighbor's start 150", c.End())
	}
}

func TestResizeUndo(t *testing.T) {
	tl := newTestTimeline()
	c := tl.CreateClip("vid", 0, 0, 100, 0)
	tl.Select(c.ID)

	tl.BeginGesture()
	tl.ResizeSelectedClip(-40, false)
	tl.EndGesture()
	if c.Duration != 60 {
		t.Fatalf("duration %d after resize, want 60", c.Duration)
	}

	tl.Undo()
	if c.Duration != 100 {
		t.Errorf("duration %d after undo, want 100", c.Duration)
	}
}
