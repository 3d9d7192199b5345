package ports

// EventSink is the progress/result channel from the scheduler to its caller.
// Implementations must be cheap and non-blocking; they are invoked from the
// scheduler's control goroutine.
type EventSink interface {
	// ReadyToPlay signals that decode sessions are primed after a seek.
	ReadyToPlay()

	// EncodeProgress reports export progress in percent, or -1 on failure.
	EncodeProgress(percent int)

	// EncodeComplete reports a finished export and its output path.
	EncodeComplete(path string)

	// ThumbnailReady signals that a source thumbnail became available.
	ThumbnailReady(sourceID string)
}

// NoopEvents is an EventSink that discards everything.
type NoopEvents struct{}

func (NoopEvents) ReadyToPlay()                   {}
func (NoopEvents) EncodeProgress(percent int)     {}
func (NoopEvents) EncodeComplete(path string)     {}
func (NoopEvents) ThumbnailReady(sourceID string) {}

var _ EventSink = NoopEvents{}
