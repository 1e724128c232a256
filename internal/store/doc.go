// Package store implements the reactive, schema-validated state container.
//
// A Store owns a tree of named top-level fields. Each field is registered
// with a CUE validation rule and a default value; afterwards every write,
// at any depth inside that field's value, funnels through one
// validate-and-commit routine attributed to the owning field.
//
// Each mutation attempt moves through a fixed sequence:
//
//	pending -> validate -> accepted -> commit (history push, notify) -> done
//	                    -> rejected -> revert in place -> done
//
// Validation always re-checks the entire current value of the owning field,
// so a nested edit can be rejected because an unrelated part of the field
// is invalid. Accepted mutations push a pre-mutation snapshot of the whole
// state onto the undo ledger, clear the redo ledger, and publish exactly
// one change event. Rejected mutations restore the touched location and
// leave everything else untouched.
//
// Undo and redo replay previously accepted snapshots: they swap the whole
// field set atomically, bypass validation, record no new history, and
// publish no change events.
//
// The store is single-threaded and synchronous. Callbacks run re-entrantly
// within the triggering call; a callback that writes back into the store
// enters the mutation machinery recursively, which is supported because
// commit state is passed as parameters, never kept ambient.
package store
