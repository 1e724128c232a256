// Package history implements the bounded undo/redo ledger of whole-state
// snapshots. The ledger exclusively owns every snapshot pushed into it:
// entries are deep-cloned on the way in and handed back as-is on pop, so a
// later in-place edit to live state can never rewrite recorded history.
package history

import (
	"github.com/michaelladouceur1/joistor/internal/value"
)

// DefaultCapacity is the per-stack entry limit when none is configured.
const DefaultCapacity = 20

// Snapshot is a deep, independent copy of the entire state tree at one
// instant, keyed by field name.
type Snapshot map[string]value.Value

// CloneSnapshot deep-copies a state tree into an independent snapshot.
func CloneSnapshot(state map[string]value.Value) Snapshot {
	out := make(Snapshot, len(state))
	for name, v := range state {
		out[name] = value.Clone(v)
	}
	return out
}

// Ledger holds the undo and redo stacks. Both are bounded by the same
// capacity; pushing onto a full stack evicts the oldest entry (FIFO), so
// the most recent history is always retained.
type Ledger struct {
	capacity int
	undo     []Snapshot
	redo     []Snapshot
}

// NewLedger creates a ledger with the given per-stack capacity.
// Non-positive capacities fall back to DefaultCapacity.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{capacity: capacity}
}

// Cap returns the per-stack capacity.
func (l *Ledger) Cap() int { return l.capacity }

// UndoLen returns the number of undo entries.
func (l *Ledger) UndoLen() int { return len(l.undo) }

// RedoLen returns the number of redo entries.
func (l *Ledger) RedoLen() int { return len(l.redo) }

// PushUndo records a snapshot of state onto the undo stack,
// evicting the oldest entry at capacity.
func (l *Ledger) PushUndo(state map[string]value.Value) {
	l.undo = push(l.undo, CloneSnapshot(state), l.capacity)
}

// PushRedo records a snapshot of state onto the redo stack,
// evicting the oldest entry at capacity.
func (l *Ledger) PushRedo(state map[string]value.Value) {
	l.redo = push(l.redo, CloneSnapshot(state), l.capacity)
}

// PopUndo removes and returns the most recent undo entry.
// Returns false when the stack is empty.
func (l *Ledger) PopUndo() (Snapshot, bool) {
	var s Snapshot
	l.undo, s = pop(l.undo)
	return s, s != nil
}

// PopRedo removes and returns the most recent redo entry.
// Returns false when the stack is empty.
func (l *Ledger) PopRedo() (Snapshot, bool) {
	var s Snapshot
	l.redo, s = pop(l.redo)
	return s, s != nil
}

// PeekUndo returns the most recent undo entry without removing it.
func (l *Ledger) PeekUndo() (Snapshot, bool) {
	if len(l.undo) == 0 {
		return nil, false
	}
	return l.undo[len(l.undo)-1], true
}

// PeekRedo returns the most recent redo entry without removing it.
func (l *Ledger) PeekRedo() (Snapshot, bool) {
	if len(l.redo) == 0 {
		return nil, false
	}
	return l.redo[len(l.redo)-1], true
}

// ClearRedo discards the entire redo stack. A committed forward mutation
// after an undo invalidates the redo branch; history stays linear.
func (l *Ledger) ClearRedo() {
	l.redo = nil
}

// UndoEntries returns the undo stack oldest-first as deep copies.
// Intended for inspection; callers cannot alias ledger-owned snapshots.
func (l *Ledger) UndoEntries() []Snapshot {
	out := make([]Snapshot, len(l.undo))
	for i, s := range l.undo {
		out[i] = CloneSnapshot(s)
	}
	return out
}

func push(stack []Snapshot, s Snapshot, capacity int) []Snapshot {
	stack = append(stack, s)
	if len(stack) > capacity {
		// Evict oldest. Copy down so the backing array does not pin
		// evicted snapshots.
		copy(stack, stack[1:])
		stack[len(stack)-1] = nil
		stack = stack[:len(stack)-1]
	}
	return stack
}

func pop(stack []Snapshot) ([]Snapshot, Snapshot) {
	if len(stack) == 0 {
		return stack, nil
	}
	s := stack[len(stack)-1]
	stack[len(stack)-1] = nil
	return stack[:len(stack)-1], s
}
