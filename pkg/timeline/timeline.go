package timeline

import (
	"fmt"
	"math"

	"github.com/user/montage/pkg/history"
	"github.com/user/montage/pkg/ports"
)

// Default edit tolerances, in pixels. They are converted to frames through
// the current zoom so snapping feels constant on screen.
const (
	DefaultSnapTolerancePx = 8
	DefaultMinClipPx       = 10
	DefaultDurationFrames  = 1800
	DefaultTrackHeight     = 48
)

// Timeline is the ordered collection of all clips plus the view and
// selection state of the editing session. It is mutated only through clip
// actions; every action updates join flags and pushes the changed clips to
// the render boundary through the update callback.
type Timeline struct {
	clips   []*Clip
	sources map[string]*Source

	Playhead       int64
	View           ViewState
	DurationFrames int64

	SnapTolerancePx float64
	MinClipPx       float64

	selected string
	dirty    bool

	hist     *history.History
	onUpdate func(ClipUpdate)
	logger   ports.Logger

	nextID int
}

// New creates an empty timeline with default view state.
func New(logger ports.Logger) *Timeline {
	return &Timeline{
		sources:        make(map[string]*Source),
		DurationFrames: DefaultDurationFrames,
		View: ViewState{
			PixelsPerFrame: 1,
			TrackHeight:    DefaultTrackHeight,
		},
		SnapTolerancePx: DefaultSnapTolerancePx,
		MinClipPx:       DefaultMinClipPx,
		hist:            history.New(),
		logger:          logger.WithComponent("timeline"),
	}
}

// SetUpdateFunc registers the clip update channel to the scheduler.
func (t *Timeline) SetUpdateFunc(fn func(ClipUpdate)) {
	t.onUpdate = fn
}

// AddSource registers an imported source. Sources are immutable afterwards.
func (t *Timeline) AddSource(src *Source) {
	t.sources[src.ID] = src
}

// Source returns a source by id, or nil when unknown.
func (t *Timeline) Source(id string) *Source {
	return t.sources[id]
}

// Clip returns a clip by id, or nil when unknown. Missing ids are not an
// error: the UI may race a delete and re-derive its state.
func (t *Timeline) Clip(id string) *Clip {
	for _, c := range t.clips {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Clips returns all clips including tombstones, in insertion order.
func (t *Timeline) Clips() []*Clip {
	return t.clips
}

// LiveClips returns all non-deleted clips, in insertion order.
func (t *Timeline) LiveClips() []*Clip {
	live := make([]*Clip, 0, len(t.clips))
	for _, c := range t.clips {
		if !c.Deleted {
			live = append(live, c)
		}
	}
	return live
}

// Select marks a clip as selected. An unknown id clears the selection.
func (t *Timeline) Select(id string) {
	if id != "" && t.Clip(id) == nil {
		id = ""
	}
	t.selected = id
	t.dirty = true
}

// Selected returns the selected clip, or nil.
func (t *Timeline) Selected() *Clip {
	if t.selected == "" {
		return nil
	}
	return t.Clip(t.selected)
}

// Dirty reports whether the view must redraw, clearing the flag.
func (t *Timeline) Dirty() bool {
	d := t.dirty
	t.dirty = false
	return d
}

// History exposes undo/redo availability to the UI.
func (t *Timeline) History() *history.History {
	return t.hist
}

// ClipAt returns the non-deleted clip occupying (track, frame), or nil.
func (t *Timeline) ClipAt(track int, frame int64) *Clip {
	for _, c := range t.clips {
		if !c.Deleted && c.Track == track && c.Contains(frame) {
			return c
		}
	}
	return nil
}

// HoverAt updates hover flags from a cursor position. Track identity is a
// fixed vertical pixel-band mapping; the horizontal position maps through
// the current zoom and offset.
func (t *Timeline) HoverAt(xPx, yPx int) *Clip {
	trackHeight := t.View.TrackHeight
	if trackHeight <= 0 {
		trackHeight = DefaultTrackHeight
	}
	track := yPx / trackHeight
	frame := t.View.OffsetFrames + t.View.FramesFromPixels(float64(xPx))

	var hovered *Clip
	for _, c := range t.clips {
		c.Hovered = false
		if hovered == nil && !c.Deleted && c.Track == track && c.Contains(frame) {
			c.Hovered = true
			hovered = c
		}
	}
	if hovered != nil {
		t.dirty = true
	}
	return hovered
}

// CreateClip appends a new clip for the source. A zero duration defaults to
// the source's natural duration. Overlaps with same-track siblings are
// resolved by trimming the siblings, never by rejecting the new clip.
func (t *Timeline) CreateClip(sourceID string, track int, start, duration, sourceOffset int64) *Clip {
	src := t.sources[sourceID]
	if src == nil {
		t.logger.Warn("Ignoring clip for unknown source %s", sourceID)
		return nil
	}
	if duration <= 0 {
		duration = src.DurationFrames
	}
	if duration <= 0 {
		duration = t.DurationFrames - start
	}
	if duration <= 0 {
		return nil
	}

	standalone := !t.hist.InBatch()
	if standalone {
		t.hist.Begin()
	}

	c := t.addClip(src, track, start, duration, sourceOffset, ports.RenderParams{})
	t.TrimSiblingClips(c)

	if standalone {
		t.hist.Commit()
	}
	return c
}

// addClip appends a clip and records the add inside the current batch.
func (t *Timeline) addClip(src *Source, track int, start, duration, sourceOffset int64, params ports.RenderParams) *Clip {
	t.nextID++
	c := &Clip{
		ID:           fmt.Sprintf("clip-%d", t.nextID),
		Source:       src,
		Track:        track,
		Start:        start,
		Duration:     duration,
		SourceOffset: sourceOffset,
		Params:       params,
	}
	t.clips = append(t.clips, c)

	after := c.snapshot()
	before := after
	before.Deleted = true
	t.hist.Push(history.Command{Op: history.OpAdd, ClipID: c.ID, Before: before, After: after})

	t.recomputeJoins(track)
	t.notify(c)
	return c
}

// DeleteClip tombstones a clip. The data remains so undo can resurrect it.
func (t *Timeline) DeleteClip(id string) {
	c := t.Clip(id)
	if c == nil || c.Deleted {
		return
	}

	standalone := !t.hist.InBatch()
	if standalone {
		t.hist.Begin()
	}
	t.deleteClip(c)
	if standalone {
		t.hist.Commit()
	}
}

func (t *Timeline) deleteClip(c *Clip) {
	before := c.snapshot()
	c.Deleted = true
	c.JoinLeft = false
	c.JoinRight = false
	if t.selected == c.ID {
		t.selected = ""
	}
	t.hist.Push(history.Command{Op: history.OpDelete, ClipID: c.ID, Before: before, After: c.snapshot()})

	t.recomputeJoins(c.Track)
	t.notify(c)
}

// SetClipParams replaces a clip's render parameters as one undo step.
func (t *Timeline) SetClipParams(id string, params ports.RenderParams) {
	c := t.Clip(id)
	if c == nil || c.Deleted {
		return
	}
	before := c.snapshot()
	c.Params = params
	standalone := !t.hist.InBatch()
	if standalone {
		t.hist.Begin()
	}
	t.hist.Push(history.Command{Op: history.OpParams, ClipID: c.ID, Before: before, After: c.snapshot()})
	if standalone {
		t.hist.Commit()
	}
	t.notify(c)
}

// Undo rolls back the most recent batch, restoring prior field values on
// the live clip set, then notifies the render boundary and recomputes
// adjacency for every touched clip.
func (t *Timeline) Undo() {
	t.applyBatch(t.hist.Undo(), false)
}

// Redo is the mirror of Undo, applying forward values.
func (t *Timeline) Redo() {
	t.applyBatch(t.hist.Redo(), true)
}

func (t *Timeline) applyBatch(batch []history.Command, forward bool) {
	if len(batch) == 0 {
		return
	}
	touched := make(map[int]bool)
	for _, cmd := range batch {
		c := t.Clip(cmd.ClipID)
		if c == nil {
			continue
		}
		touched[c.Track] = true
		if forward {
			c.applySnapshot(cmd.After)
		} else {
			c.applySnapshot(cmd.Before)
		}
		touched[c.Track] = true
		if c.Deleted && t.selected == c.ID {
			t.selected = ""
		}
		t.notify(c)
	}
	for track := range touched {
		t.recomputeJoins(track)
	}
}

// recomputeJoins refreshes join flags for every live clip on a track.
// A join is set only on an exactly touching (zero-gap) edge.
func (t *Timeline) recomputeJoins(track int) {
	for _, c := range t.clips {
		if c.Track != track {
			continue
		}
		t.setClipJoins(c)
	}
}

// setClipJoins finds the nearest left and right same-track live siblings
// and sets the join flags when the edges touch exactly.
func (t *Timeline) setClipJoins(c *Clip) {
	c.JoinLeft = false
	c.JoinRight = false
	if c.Deleted {
		return
	}

	leftGap := int64(math.MaxInt64)
	rightGap := int64(math.MaxInt64)
	for _, s := range t.clips {
		if s == c || s.Deleted || s.Track != c.Track {
			continue
		}
		if s.End() <= c.Start {
			if gap := c.Start - s.End(); gap < leftGap {
				leftGap = gap
			}
		}
		if s.Start >= c.End() {
			if gap := s.Start - c.End(); gap < rightGap {
				rightGap = gap
			}
		}
	}
	c.JoinLeft = leftGap == 0
	c.JoinRight = rightGap == 0
}

// notify marks the timeline dirty and pushes the clip projection to the
// render boundary.
func (t *Timeline) notify(c *Clip) {
	t.dirty = true
	if t.onUpdate != nil {
		t.onUpdate(c.update(t.Playhead))
	}
}
