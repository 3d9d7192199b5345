// Package editor wires a project into a running edit session. Editor is
// the explicit session root: it owns the timeline, the decoder pool and
// the scheduler, and there is no ambient shared state between sessions.
package editor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/user/montage/pkg/adapters/ggcompositor"
	"github.com/user/montage/pkg/adapters/mp4encoder"
	"github.com/user/montage/pkg/decode"
	"github.com/user/montage/pkg/playback"
	"github.com/user/montage/pkg/ports"
	"github.com/user/montage/pkg/project"
	"github.com/user/montage/pkg/timeline"
)

// Editor is one editing session over a loaded project.
type Editor struct {
	logger ports.Logger
	fs     ports.FileSystem
	proj   project.Project

	tl    *timeline.Timeline
	pool  *decode.Pool
	sched *playback.Scheduler
	comp  *ggcompositor.Compositor
}

// New builds a session from a project. Sources are imported, clips are
// placed and the clip-update callback is wired so every timeline mutation
// reaches the scheduler.
func New(p project.Project, fs ports.FileSystem, events ports.EventSink, lg ports.Logger) (*Editor, error) {
	if events == nil {
		events = ports.NoopEvents{}
	}

	comp := ggcompositor.New(lg)
	encoder := mp4encoder.New(lg)
	pool := decode.NewPool(newEngineFactory(fs, lg), lg)
	sched := playback.New(playback.Config{
		Width:   p.Canvas.Width,
		Height:  p.Canvas.Height,
		FPS:     p.Canvas.FPS,
		Quality: p.Export.Quality,
	}, pool, comp, encoder, &playback.SilenceRenderer{}, fs, events, lg)

	e := &Editor{
		logger: lg.WithComponent("editor"),
		fs:     fs,
		proj:   p,
		tl:     timeline.New(lg),
		pool:   pool,
		sched:  sched,
		comp:   comp,
	}
	e.tl.SetUpdateFunc(sched.UpsertClip)

	for _, sc := range p.Sources {
		if err := e.importSource(sc, events); err != nil {
			return nil, err
		}
	}
	for i, cc := range p.Clips {
		if err := e.placeClip(i, cc); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Editor) importSource(sc project.SourceConfig, events ports.EventSink) error {
	kind, err := parseKind(sc.Kind)
	if err != nil {
		return fmt.Errorf("source %s: %w", sc.ID, err)
	}

	frameRate := sc.FrameRate
	if frameRate <= 0 {
		frameRate = e.proj.Canvas.FPS
	}

	src := &timeline.Source{
		ID:             sc.ID,
		Kind:           kind,
		DurationFrames: sc.DurationFrames,
		FrameRate:      frameRate,
		Decode: ports.DecodeConfig{
			SourceID:  sc.ID,
			Path:      sc.Path,
			Codec:     codecFor(kind),
			FrameRate: frameRate,
		},
	}
	e.tl.AddSource(src)

	if kind == timeline.KindImage {
		data, err := e.fs.ReadFile(sc.Path)
		if err != nil {
			return fmt.Errorf("failed to read image source %s: %w", sc.ID, err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to decode image source %s: %w", sc.ID, err)
		}
		e.comp.RegisterImage(sc.ID, img)
		events.ThumbnailReady(sc.ID)
	}

	e.logger.Debug("Imported %s source %s", kind, sc.ID)
	return nil
}

func (e *Editor) placeClip(idx int, cc project.ClipConfig) error {
	c := e.tl.CreateClip(cc.Source, cc.Track, cc.Start, cc.Duration, cc.SourceOffset)
	if c == nil {
		return fmt.Errorf("clip %d could not be placed", idx)
	}
	params := ports.RenderParams{
		X:        cc.X,
		Y:        cc.Y,
		Scale:    cc.Scale,
		Rotation: cc.Rotation,
		Opacity:  cc.Opacity,
		Text:     cc.Text,
		Color:    cc.Color,
		FontSize: cc.FontSize,
	}
	if params != (ports.RenderParams{}) {
		e.tl.SetClipParams(c.ID, params)
	}
	return nil
}

// Timeline exposes the clip model for interactive edits.
func (e *Editor) Timeline() *timeline.Timeline { return e.tl }

// Scheduler exposes the playback control surface.
func (e *Editor) Scheduler() *playback.Scheduler { return e.sched }

// Compositor exposes the render boundary, mainly for font configuration.
func (e *Editor) Compositor() *ggcompositor.Compositor { return e.comp }

// Play starts playback at frame.
func (e *Editor) Play(frame int64) error { return e.sched.Play(frame) }

// Pause stops playback.
func (e *Editor) Pause() { e.sched.Pause() }

// Seek repositions the preview.
func (e *Editor) Seek(frame int64) { e.sched.Seek(frame) }

// Undo reverts the most recent edit batch.
func (e *Editor) Undo() { e.tl.Undo() }

// Redo re-applies the most recently undone batch.
func (e *Editor) Redo() { e.tl.Redo() }

// Export encodes the project's export range to its configured output.
func (e *Editor) Export(ctx context.Context) error {
	start, end := e.exportRange()
	return e.sched.Encode(ctx, start, end, e.proj.Export.Output)
}

// CancelExport stops a running export.
func (e *Editor) CancelExport() { e.sched.CancelEncode() }

// exportRange resolves the configured range; an end of zero means the end
// of the last clip.
func (e *Editor) exportRange() (int64, int64) {
	start := e.proj.Export.StartFrame
	end := e.proj.Export.EndFrame
	if end == 0 {
		for _, c := range e.tl.LiveClips() {
			if c.End() > end {
				end = c.End()
			}
		}
	}
	return start, end
}

// Close tears the session down.
func (e *Editor) Close() {
	e.sched.Pause()
	e.pool.Close()
}

func parseKind(s string) (timeline.MediaKind, error) {
	switch s {
	case "video":
		return timeline.KindVideo, nil
	case "audio":
		return timeline.KindAudio, nil
	case "image":
		return timeline.KindImage, nil
	case "text":
		return timeline.KindText, nil
	case "subtitle":
		return timeline.KindSubtitle, nil
	case "test":
		return timeline.KindTest, nil
	default:
		return 0, fmt.Errorf("unknown media kind %q", s)
	}
}

func codecFor(kind timeline.MediaKind) string {
	switch kind {
	case timeline.KindTest:
		return "test"
	case timeline.KindVideo:
		return "jpeg"
	default:
		return ""
	}
}
