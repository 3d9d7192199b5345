// Package history implements command-based undo/redo over timeline edits.
//
// Edits are grouped into batches: one user gesture (a drag, a split, a
// delete) commits exactly one batch, and undo/redo always applies a whole
// batch. Commands carry plain-value snapshots of clip state so that later
// mutation of the live clips can never corrupt recorded history.
package history

import "github.com/user/montage/pkg/ports"

// Op tags the kind of edit a command records.
type Op int

const (
	OpAdd Op = iota
	OpDelete
	OpMove
	OpTrim
	OpParams
)

// String returns the string representation of the op.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpMove:
		return "move"
	case OpTrim:
		return "trim"
	case OpParams:
		return "params"
	default:
		return "unknown"
	}
}

// Snapshot is a plain-value copy of the mutable fields of a clip.
type Snapshot struct {
	Track        int
	Start        int64
	Duration     int64
	SourceOffset int64
	Deleted      bool
	Params       ports.RenderParams
}

// Command records one edit with enough state to invert itself.
type Command struct {
	Op     Op
	ClipID string
	Before Snapshot
	After  Snapshot
}

// History holds the undo and redo stacks.
type History struct {
	undo    [][]Command
	redo    [][]Command
	pending []Command
	open    bool
}

// New creates an empty History.
func New() *History {
	return &History{}
}

// Begin starts a fresh batch and invalidates any redo state, since new
// edits make the recorded future unreachable.
func (h *History) Begin() {
	h.pending = h.pending[:0]
	h.open = true
	h.redo = nil
}

// InBatch reports whether a batch is currently being recorded.
func (h *History) InBatch() bool {
	return h.open
}

// Push appends a command to the in-progress batch. Multi-step edits (a
// move cascading into sibling trims) push several commands into one batch.
// Push without Begin is a no-op.
func (h *History) Push(c Command) {
	if !h.open {
		return
	}
	h.pending = append(h.pending, c)
}

// Commit commits the in-progress batch onto the undo stack. Empty batches
// are dropped so aborted gestures leave no undo step behind.
func (h *History) Commit() {
	if !h.open {
		return
	}
	h.open = false
	if len(h.pending) == 0 {
		return
	}
	batch := make([]Command, len(h.pending))
	copy(batch, h.pending)
	h.pending = h.pending[:0]
	h.undo = append(h.undo, batch)
	h.redo = nil
}

// CanUndo reports whether an undo step is available.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether a redo step is available.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Undo pops the most recent batch, moves it to the redo stack and returns
// its commands in reverse order. The caller applies each command's Before
// snapshot. Returns nil when there is nothing to undo.
func (h *History) Undo() []Command {
	if len(h.undo) == 0 {
		return nil
	}
	batch := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, batch)

	reversed := make([]Command, len(batch))
	for i, c := range batch {
		reversed[len(batch)-1-i] = c
	}
	return reversed
}

// Redo is the mirror of Undo: it returns the batch in forward order and
// the caller applies each command's After snapshot.
func (h *History) Redo() []Command {
	if len(h.redo) == 0 {
		return nil
	}
	batch := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, batch)

	forward := make([]Command, len(batch))
	copy(forward, batch)
	return forward
}
