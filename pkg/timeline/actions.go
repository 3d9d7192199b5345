package timeline

import "github.com/user/montage/pkg/history"

// BeginGesture snapshots the selected clip for an interactive drag or
// resize. Subsequent Move/Resize calls compute their candidate geometry
// from this snapshot, so they are safe to call at pointer-event frequency.
func (t *Timeline) BeginGesture() {
	c := t.Selected()
	if c == nil {
		return
	}
	c.savedStart = c.Start
	c.savedDuration = c.Duration
	c.savedSourceOffset = c.SourceOffset
	c.savedTrack = c.Track
	c.Invalid = false
	t.hist.Begin()
}

// MoveSelectedClip applies a drag delta (in pixels) to the selected clip.
// Snapping and clamping follow a fixed order: playhead snap, sibling-edge
// snap, hard boundary clamps. A vertical drag beyond half a track band
// switches tracks for visual clip kinds.
func (t *Timeline) MoveSelectedClip(dxPx, dyPx float64) {
	c := t.Selected()
	if c == nil {
		return
	}

	start := c.savedStart + t.View.FramesFromPixels(dxPx)
	track := c.savedTrack
	if c.Source.Kind.Visual() {
		trackHeight := t.View.TrackHeight
		if trackHeight <= 0 {
			trackHeight = DefaultTrackHeight
		}
		shift := int(dyPx) / (trackHeight / 2)
		// Round toward the adjacent band only after half a band of travel.
		track += (shift + sign(shift)) / 2
		if track < 0 {
			track = 0
		}
	}

	tol := t.snapToleranceFrames()
	start = t.snapToPlayhead(start, c.Duration, tol)
	start = t.snapToSiblings(c, track, start, c.Duration, tol)

	// Hard clamps: timeline bounds, then neighboring occupied regions.
	if start < 0 {
		start = 0
	}
	if start+c.Duration > t.DurationFrames {
		start = t.DurationFrames - c.Duration
	}
	start = t.clampAgainstSiblings(c, track, start)

	oldTrack := c.Track
	c.Start = start
	c.Track = track
	t.recomputeJoins(oldTrack)
	if track != oldTrack {
		t.recomputeJoins(track)
	}
	t.notify(c)
}

// ResizeSelectedClip applies a drag delta (in pixels) to one edge of the
// selected clip. Clamps caused by the source media bounds set the Invalid
// flag, a visual-only warning.
func (t *Timeline) ResizeSelectedClip(dxPx float64, fromStart bool) {
	c := t.Selected()
	if c == nil {
		return
	}

	delta := t.View.FramesFromPixels(dxPx)
	tol := t.snapToleranceFrames()
	minFrames := t.minClipFrames()
	c.Invalid = false

	if fromStart {
		end := c.savedStart + c.savedDuration
		start := c.savedStart + delta

		start = t.snapEdge(c, start, tol)
		if start < 0 {
			start = 0
		}
		// The left neighbor's occupied region is a hard boundary.
		for _, s := range t.siblings(c, c.Track) {
			if s.End() <= end && s.End() > start {
				start = s.End()
			}
		}
		// Source bound: the offset may never go negative.
		if off := c.savedSourceOffset + (start - c.savedStart); off < 0 {
			start -= off
			c.Invalid = true
		}
		if end-start < minFrames {
			start = end - minFrames
		}
		c.Start = start
		c.Duration = end - start
		c.SourceOffset = c.savedSourceOffset + (start - c.savedStart)
	} else {
		end := c.savedStart + c.savedDuration + delta

		end = t.snapEdge(c, end, tol)
		if end > t.DurationFrames {
			end = t.DurationFrames
		}
		for _, s := range t.siblings(c, c.Track) {
			if s.Start >= c.Start && s.Start < end {
				end = s.Start
			}
		}
		// Source bound: the clip may not outrun the source media.
		if !c.Source.OpenEnded() {
			if maxEnd := c.Start + (c.Source.DurationFrames - c.SourceOffset); end > maxEnd {
				end = maxEnd
				c.Invalid = true
			}
		}
		if end-c.Start < minFrames {
			end = c.Start + minFrames
		}
		c.Duration = end - c.Start
	}

	t.recomputeJoins(c.Track)
	t.notify(c)
}

// EndGesture commits the in-progress gesture: it records the move/trim
// command, resolves overlaps the new geometry created, and finishes the
// history batch.
func (t *Timeline) EndGesture() {
	c := t.Selected()
	if c == nil || !t.hist.InBatch() {
		t.hist.Commit()
		return
	}

	before := history.Snapshot{
		Track:        c.savedTrack,
		Start:        c.savedStart,
		Duration:     c.savedDuration,
		SourceOffset: c.savedSourceOffset,
		Params:       c.Params,
	}
	after := c.snapshot()

	if before != after {
		op := history.OpMove
		if c.Duration != c.savedDuration || c.SourceOffset != c.savedSourceOffset {
			op = history.OpTrim
		}
		t.hist.Push(history.Command{Op: op, ClipID: c.ID, Before: before, After: after})
		t.TrimSiblingClips(c)
	}
	t.hist.Commit()
}

// TrimSiblingClips resolves overlaps between the clip and its same-track
// live siblings by exact interval algebra: full cover deletes the sibling,
// full containment splits it, partial overlap trims the overlapped edge.
// The clip itself is never modified.
func (t *Timeline) TrimSiblingClips(c *Clip) {
	if c == nil || c.Deleted {
		return
	}

	standalone := !t.hist.InBatch()
	if standalone {
		t.hist.Begin()
	}

	for _, s := range t.siblings(c, c.Track) {
		if s.Start >= c.End() || s.End() <= c.Start {
			continue
		}
		switch {
		case c.Start <= s.Start && c.End() >= s.End():
			// Fully covered: tombstone the sibling.
			t.deleteClip(s)

		case s.Start < c.Start && s.End() > c.End():
			// Clip sits fully inside the sibling: split it, leaving the
			// clip in the resulting gap.
			origEnd := s.End()
			before := s.snapshot()
			s.Duration = c.Start - s.Start
			t.hist.Push(history.Command{Op: history.OpTrim, ClipID: s.ID, Before: before, After: s.snapshot()})
			t.notify(s)

			tailOffset := s.SourceOffset + (c.End() - s.Start)
			t.addClip(s.Source, s.Track, c.End(), origEnd-c.End(), tailOffset, s.Params)

		case s.Start < c.Start:
			// Sibling's tail overlaps: trim its end back.
			before := s.snapshot()
			s.Duration = c.Start - s.Start
			t.hist.Push(history.Command{Op: history.OpTrim, ClipID: s.ID, Before: before, After: s.snapshot()})
			t.notify(s)

		default:
			// Sibling's head overlaps: trim its start forward, keeping the
			// media aligned by shifting the source offset.
			before := s.snapshot()
			shift := c.End() - s.Start
			s.Start += shift
			s.Duration -= shift
			s.SourceOffset += shift
			t.hist.Push(history.Command{Op: history.OpTrim, ClipID: s.ID, Before: before, After: s.snapshot()})
			t.notify(s)
		}
	}

	t.recomputeJoins(c.Track)

	if standalone {
		t.hist.Commit()
	}
}

// SplitClip shortens the clip to end at frame and creates a new clip at
// frame+gap carrying the remaining duration and a shifted source offset.
// Both changes are recorded in one batch so a single undo restores the
// original clip. Returns the new tail clip, or nil when the cut is outside
// the clip.
func (t *Timeline) SplitClip(id string, frame, gap int64) *Clip {
	c := t.Clip(id)
	if c == nil || c.Deleted {
		return nil
	}
	origEnd := c.End()
	if frame <= c.Start || frame >= origEnd || frame+gap >= origEnd {
		return nil
	}

	standalone := !t.hist.InBatch()
	if standalone {
		t.hist.Begin()
	}

	before := c.snapshot()
	c.Duration = frame - c.Start
	t.hist.Push(history.Command{Op: history.OpTrim, ClipID: c.ID, Before: before, After: c.snapshot()})
	t.notify(c)

	tailStart := frame + gap
	tail := t.addClip(c.Source, c.Track, tailStart, origEnd-tailStart,
		c.SourceOffset+(tailStart-c.Start), c.Params)

	t.recomputeJoins(c.Track)
	if standalone {
		t.hist.Commit()
	}
	return tail
}

// siblings returns the live same-track clips other than c. The slice is a
// copy so callers may mutate the clip collection while ranging over it.
func (t *Timeline) siblings(c *Clip, track int) []*Clip {
	sibs := make([]*Clip, 0, len(t.clips))
	for _, s := range t.clips {
		if s != c && !s.Deleted && s.Track == track {
			sibs = append(sibs, s)
		}
	}
	return sibs
}

func (t *Timeline) snapToleranceFrames() int64 {
	tol := t.View.FramesFromPixels(t.SnapTolerancePx)
	if tol < 1 {
		tol = 1
	}
	return tol
}

func (t *Timeline) minClipFrames() int64 {
	min := t.View.FramesFromPixels(t.MinClipPx)
	if min < 1 {
		min = 1
	}
	return min
}

// snapToPlayhead snaps either edge of a [start, start+duration) interval
// to the current playhead frame when within tolerance.
func (t *Timeline) snapToPlayhead(start, duration, tol int64) int64 {
	if abs64(start-t.Playhead) <= tol {
		return t.Playhead
	}
	if abs64(start+duration-t.Playhead) <= tol {
		return t.Playhead - duration
	}
	return start
}

// snapToSiblings snaps the interval to the nearest same-track sibling edge
// within tolerance.
func (t *Timeline) snapToSiblings(c *Clip, track int, start, duration, tol int64) int64 {
	best := tol + 1
	snapped := start
	for _, s := range t.siblings(c, track) {
		if d := abs64(start - s.End()); d < best {
			best = d
			snapped = s.End()
		}
		if d := abs64(start + duration - s.Start); d < best {
			best = d
			snapped = s.Start - duration
		}
	}
	return snapped
}

// snapEdge snaps a single edge position to the playhead or the nearest
// sibling edge within tolerance, playhead first.
func (t *Timeline) snapEdge(c *Clip, edge, tol int64) int64 {
	if abs64(edge-t.Playhead) <= tol {
		return t.Playhead
	}
	best := tol + 1
	snapped := edge
	for _, s := range t.siblings(c, c.Track) {
		if d := abs64(edge - s.Start); d < best {
			best = d
			snapped = s.Start
		}
		if d := abs64(edge - s.End()); d < best {
			best = d
			snapped = s.End()
		}
	}
	return snapped
}

// clampAgainstSiblings pushes a moved interval out of any occupied region
// so same-track clips never overlap after a move.
func (t *Timeline) clampAgainstSiblings(c *Clip, track int, start int64) int64 {
	for i := 0; i < len(t.clips); i++ {
		moved := false
		for _, s := range t.siblings(c, track) {
			if start < s.End() && start+c.Duration > s.Start {
				if start+c.Duration/2 < s.Start+s.Duration/2 {
					start = s.Start - c.Duration
				} else {
					start = s.End()
				}
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	if start < 0 {
		start = 0
	}
	if start+c.Duration > t.DurationFrames {
		start = t.DurationFrames - c.Duration
	}
	return start
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
