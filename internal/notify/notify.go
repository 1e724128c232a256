// Package notify holds the subscriber registries for change, error,
// register and unregister callbacks. Dispatch is synchronous and follows
// registration order; subscribers persist for the lifetime of the registry.
package notify

import (
	"github.com/michaelladouceur1/joistor/internal/value"
)

// Change describes one committed mutation. FieldValue is the whole value
// of the owning field after the commit; Path and Value pinpoint the
// touched location. A delete carries a nil Value.
type Change struct {
	Field      string
	Path       value.Path
	Value      value.Value
	FieldValue value.Value
}

// ChangeFunc receives committed mutations for a subscribed field.
type ChangeFunc func(Change)

// ErrorFunc receives rejected mutations along with a snapshot of the state
// as it stood when the error surfaced.
type ErrorFunc func(err error, state map[string]value.Value)

// FieldFunc receives field lifecycle events.
type FieldFunc func(name string)

// Registry fans events out to subscribers. It performs no synchronization;
// the store is single-threaded and callbacks run re-entrantly within the
// triggering call.
type Registry struct {
	change     map[string][]ChangeFunc
	errs       []ErrorFunc
	registered []FieldFunc
	removed    []FieldFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{change: make(map[string][]ChangeFunc)}
}

// OnChange subscribes fn to committed mutations of the named field.
// Multiple subscribers are invoked in registration order.
func (r *Registry) OnChange(field string, fn ChangeFunc) {
	r.change[field] = append(r.change[field], fn)
}

// OnError subscribes fn to surfaced errors.
func (r *Registry) OnError(fn ErrorFunc) {
	r.errs = append(r.errs, fn)
}

// OnRegister subscribes fn to field registration events.
func (r *Registry) OnRegister(fn FieldFunc) {
	r.registered = append(r.registered, fn)
}

// OnUnregister subscribes fn to field unregistration events.
func (r *Registry) OnUnregister(fn FieldFunc) {
	r.removed = append(r.removed, fn)
}

// PublishChange delivers a committed mutation to the field's subscribers.
// Called exactly once per commit, never for rejected writes and never
// during history replay.
func (r *Registry) PublishChange(c Change) {
	for _, fn := range r.change[c.Field] {
		fn(c)
	}
}

// PublishError delivers err and the current state snapshot to error
// subscribers.
func (r *Registry) PublishError(err error, state map[string]value.Value) {
	for _, fn := range r.errs {
		fn(err, state)
	}
}

// PublishRegister announces a newly registered field.
func (r *Registry) PublishRegister(name string) {
	for _, fn := range r.registered {
		fn(name)
	}
}

// PublishUnregister announces a removed field.
func (r *Registry) PublishUnregister(name string) {
	for _, fn := range r.removed {
		fn(name)
	}
}

// ChangeSubscribers reports how many change subscribers the field has.
func (r *Registry) ChangeSubscribers(field string) int {
	return len(r.change[field])
}
