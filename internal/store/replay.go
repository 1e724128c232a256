package store

import (
	"github.com/michaelladouceur1/joistor/internal/history"
	"github.com/michaelladouceur1/joistor/internal/value"
)

// Undo rolls the state tree back to the most recent undo ledger entry.
// The current state is pushed onto the redo ledger first, then replaced
// wholesale by the popped snapshot. Replay bypasses validation and
// publishes no change events. Calling Undo with an empty ledger is a no-op.
//
// History replay assumes no register/unregister happened between the
// captured snapshot and now; a field-set mismatch aborts before any state
// is touched.
func (s *Store) Undo() error {
	snap, ok := s.ledger.PeekUndo()
	if !ok {
		return nil
	}
	if err := s.checkFieldSet(snap); err != nil {
		return err
	}

	snap, _ = s.ledger.PopUndo()
	s.ledger.PushRedo(s.state)
	s.adopt(snap)
	return nil
}

// Redo is the mirror of Undo: it re-applies the most recent redo ledger
// entry, pushing the current state onto the undo ledger.
func (s *Store) Redo() error {
	snap, ok := s.ledger.PeekRedo()
	if !ok {
		return nil
	}
	if err := s.checkFieldSet(snap); err != nil {
		return err
	}

	snap, _ = s.ledger.PopRedo()
	s.ledger.PushUndo(s.state)
	s.adopt(snap)
	return nil
}

// adopt installs a popped snapshot as live state. The ledger relinquished
// ownership on pop, so no further copying is needed.
func (s *Store) adopt(snap history.Snapshot) {
	next := make(value.Object, len(snap))
	for name, v := range snap {
		next[name] = v
	}
	s.state = next
}

// checkFieldSet verifies that restoring snap would not change the set of
// registered field names. A mismatch is an internal-consistency fault:
// the operation must abort rather than partially apply.
func (s *Store) checkFieldSet(snap history.Snapshot) error {
	mismatch := len(snap) != len(s.state)
	if !mismatch {
		for name := range snap {
			if _, ok := s.state[name]; !ok {
				mismatch = true
				break
			}
		}
	}
	if !mismatch {
		return nil
	}
	err := &Error{Code: CodeHistoryMismatch,
		Message: "history snapshot field set differs from registered fields"}
	s.surface(err)
	return err
}
