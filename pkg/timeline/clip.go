// Package timeline maintains the spatial and temporal consistency of clips
// on tracks: placement, overlap resolution, adjacency and undo/redo.
package timeline

import (
	"github.com/user/montage/pkg/history"
	"github.com/user/montage/pkg/ports"
)

// MediaKind classifies an imported source.
type MediaKind int

const (
	KindVideo MediaKind = iota
	KindAudio
	KindImage
	KindText
	KindSubtitle
	KindTest // synthetic numbered pattern, used by demos and tests
)

// String returns the string representation of the media kind.
func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	case KindText:
		return "text"
	case KindSubtitle:
		return "subtitle"
	case KindTest:
		return "test"
	default:
		return "unknown"
	}
}

// Visual reports whether clips of this kind are drawn by the compositor.
func (k MediaKind) Visual() bool {
	switch k {
	case KindVideo, KindImage, KindText, KindSubtitle, KindTest:
		return true
	default:
		return false
	}
}

// Decodable reports whether clips of this kind pull frames through a
// decode session.
func (k MediaKind) Decodable() bool {
	return k == KindVideo
}

// Source is an imported media asset. Sources are created once at import and
// are immutable afterwards; any number of clips may reference one source and
// sources are never deleted during a session.
type Source struct {
	ID             string
	Kind           MediaKind
	DurationFrames int64 // 0 for open-ended kinds (image, text)
	FrameRate      float64
	Decode         ports.DecodeConfig
}

// OpenEnded reports whether the source has no natural duration.
func (s *Source) OpenEnded() bool {
	return s.DurationFrames == 0
}

// Clip is a placement of a Source on a track over a frame interval
// [Start, Start+Duration). Clips are tombstoned rather than removed so that
// undo can resurrect them.
type Clip struct {
	ID           string
	Source       *Source
	Track        int
	Start        int64 // timeline frame, inclusive
	Duration     int64 // frames, > 0 outside an active gesture
	SourceOffset int64 // frame offset into the source
	Params       ports.RenderParams

	Deleted bool // tombstone
	Invalid bool // set when a clamp hit the source media bounds
	Hovered bool

	// Join flags are a rendering hint: true when this clip's edge exactly
	// touches a same-track neighbor's edge.
	JoinLeft  bool
	JoinRight bool

	// Gesture snapshot, taken at BeginGesture. Drag deltas are applied
	// against these, never against the live values.
	savedStart        int64
	savedDuration     int64
	savedSourceOffset int64
	savedTrack        int
}

// End returns the exclusive end frame of the clip.
func (c *Clip) End() int64 {
	return c.Start + c.Duration
}

// Contains reports whether the clip's interval contains the frame.
func (c *Clip) Contains(frame int64) bool {
	return frame >= c.Start && frame < c.End()
}

func (c *Clip) snapshot() history.Snapshot {
	return history.Snapshot{
		Track:        c.Track,
		Start:        c.Start,
		Duration:     c.Duration,
		SourceOffset: c.SourceOffset,
		Deleted:      c.Deleted,
		Params:       c.Params,
	}
}

func (c *Clip) applySnapshot(s history.Snapshot) {
	c.Track = s.Track
	c.Start = s.Start
	c.Duration = s.Duration
	c.SourceOffset = s.SourceOffset
	c.Deleted = s.Deleted
	c.Params = s.Params
}

// ViewState maps between pixels and frames for the current zoom level.
type ViewState struct {
	PixelsPerFrame float64
	OffsetFrames   int64 // leftmost visible frame
	TrackHeight    int   // vertical pixel band per track
}

// FramesFromPixels converts a horizontal pixel distance to whole frames.
func (v ViewState) FramesFromPixels(px float64) int64 {
	ppf := v.PixelsPerFrame
	if ppf <= 0 {
		ppf = 1
	}
	f := px / ppf
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// ClipUpdate is the full projection of one clip pushed to the playback
// scheduler after every mutation. The scheduler treats it as an
// upsert-by-id into its active clip table.
type ClipUpdate struct {
	ID           string
	SourceID     string
	Kind         MediaKind
	Track        int
	Start        int64
	Duration     int64
	SourceOffset int64
	FrameRate    float64
	Decode       ports.DecodeConfig
	Params       ports.RenderParams
	Deleted      bool
	Playhead     int64
}

func (c *Clip) update(playhead int64) ClipUpdate {
	return ClipUpdate{
		ID:           c.ID,
		SourceID:     c.Source.ID,
		Kind:         c.Source.Kind,
		Track:        c.Track,
		Start:        c.Start,
		Duration:     c.Duration,
		SourceOffset: c.SourceOffset,
		FrameRate:    c.Source.FrameRate,
		Decode:       c.Source.Decode,
		Params:       c.Params,
		Deleted:      c.Deleted,
		Playhead:     playhead,
	}
}
