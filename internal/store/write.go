package store

import (
	"github.com/michaelladouceur1/joistor/internal/history"
	"github.com/michaelladouceur1/joistor/internal/notify"
	"github.com/michaelladouceur1/joistor/internal/value"
)

// mode selects how a write interacts with validation and history.
// It is threaded through the commit routine explicitly; there is no
// ambient "currently replaying" state.
type mode int

const (
	// modeNormal validates, records history, and notifies.
	modeNormal mode = iota

	// modeReplay writes directly: no validation, no history entry, no
	// change event. Entered only by history replay and by the initial
	// default assignment during Register.
	modeReplay
)

type op int

const (
	opSet op = iota
	opDelete
)

// Set writes v at the dot-separated path. The write is intercepted
// identically at every depth: the path's first segment names the owning
// field, the whole field value is re-validated after the speculative
// write, and the mutation is committed or reverted in place.
func (s *Store) Set(path string, v value.Value) error {
	p, err := value.ParsePath(path)
	if err != nil {
		bad := &Error{Code: CodeBadPath, Path: path, Message: err.Error(), Detail: err}
		s.surface(bad)
		return bad
	}
	return s.apply(modeNormal, opSet, p, v)
}

// Delete removes the value at the dot-separated path, subject to the same
// validate-or-revert machinery as Set. Deleting a location that does not
// exist is a no-op. A whole field cannot be deleted this way; use
// Unregister.
func (s *Store) Delete(path string) error {
	p, err := value.ParsePath(path)
	if err != nil {
		bad := &Error{Code: CodeBadPath, Path: path, Message: err.Error(), Detail: err}
		s.surface(bad)
		return bad
	}
	if len(p) == 1 {
		bad := &Error{Code: CodeBadPath, Field: p.Field(), Path: path,
			Message: "cannot delete a whole field; use Unregister"}
		s.surface(bad)
		return bad
	}
	return s.apply(modeNormal, opDelete, p, nil)
}

// apply is the single validation-and-commit routine every mutation funnels
// through, keyed by the path's first segment regardless of nesting depth.
func (s *Store) apply(m mode, o op, path value.Path, v value.Value) error {
	field := path.Field()

	// Existence check precedes everything; the gateway is never consulted
	// for an unregistered field.
	rule, registered := s.schema[field]
	if !registered {
		err := &Error{Code: CodeUnknownField, Field: field, Path: path.String(),
			Message: "field not registered"}
		s.surface(err)
		return err
	}

	if m == modeReplay {
		_, _, err := value.Put(s.state, path, v)
		return err
	}

	if !rule.Defined() {
		err := &Error{Code: CodeMissingRule, Field: field, Path: path.String(),
			Message: "no validation rule compiled for field"}
		s.surface(err)
		return err
	}

	// Pre-mutation whole-state snapshot, captured before the speculative
	// write so a commit records exactly the state being left behind.
	pre := history.CloneSnapshot(s.state)

	var (
		prev    value.Value
		existed bool
		err     error
	)
	switch o {
	case opSet:
		prev, existed, err = value.Put(s.state, path, v)
	case opDelete:
		prev, existed, err = value.Remove(s.state, path)
		if err == nil && !existed {
			// Nothing was removed; state is untouched.
			return nil
		}
	}
	if err != nil {
		bad := &Error{Code: CodeBadPath, Field: field, Path: path.String(),
			Message: err.Error(), Detail: err}
		s.surface(bad)
		return bad
	}

	normalized, verr := s.gateway.Validate(rule, s.state[field])
	if verr != nil {
		s.revert(o, path, prev, existed)
		rej := &Error{Code: CodeValidationRejected, Field: field, Path: path.String(),
			Message: "mutation rejected by rule", Detail: verr}
		s.surface(rej)
		return rej
	}

	// Commit: the normalized whole-field value becomes live, the
	// pre-mutation snapshot enters the undo ledger, and any redo branch
	// is invalidated.
	s.state[field] = normalized
	s.ledger.PushUndo(pre)
	s.ledger.ClearRedo()

	committed, _ := value.Lookup(s.state, path)
	s.notifier.PublishChange(notify.Change{
		Field:      field,
		Path:       path,
		Value:      committed,
		FieldValue: s.state[field],
	})
	return nil
}

// revert undoes a speculative write at exactly the touched location:
// the previous value is restored if one existed, otherwise the location
// introduced by the write is removed.
func (s *Store) revert(o op, path value.Path, prev value.Value, existed bool) {
	switch {
	case existed:
		// Covers both a replaced set and a delete; Put restores either way.
		_, _, _ = value.Put(s.state, path, prev)
	case o == opSet:
		_, _, _ = value.Remove(s.state, path)
	}
}
