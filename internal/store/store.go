package store

import (
	"fmt"
	"log"
	"slices"

	"github.com/michaelladouceur1/joistor/internal/history"
	"github.com/michaelladouceur1/joistor/internal/notify"
	"github.com/michaelladouceur1/joistor/internal/rules"
	"github.com/michaelladouceur1/joistor/internal/value"
)

// Logger is the minimal logging collaborator the store writes rejected
// validations to when error logging is enabled.
type Logger interface {
	Printf(format string, args ...any)
}

// Options configures a Store.
type Options struct {
	// HistoryBuffer is the maximum number of entries per undo/redo ledger.
	// Non-positive values fall back to history.DefaultCapacity.
	HistoryBuffer int

	// Strict disables coercion in the validation gateway: candidate values
	// must already match the rule's expected representation.
	Strict bool

	// ErrorLog controls whether rejected validations are written to the
	// Logger. Purely a side channel; errors still reach OnError callbacks.
	ErrorLog bool

	// Logger receives error log output. Defaults to the standard logger.
	Logger Logger
}

// DefaultOptions returns the baseline configuration: history buffer of 20,
// lenient validation, error logging enabled.
func DefaultOptions() Options {
	return Options{
		HistoryBuffer: history.DefaultCapacity,
		ErrorLog:      true,
	}
}

// Store is the state container facade. It owns the state tree, the schema
// map, the undo/redo ledgers, and the subscriber registries; no two Store
// instances share anything.
type Store struct {
	opts     Options
	gateway  *rules.Gateway
	schema   map[string]rules.Rule
	state    value.Object
	ledger   *history.Ledger
	notifier *notify.Registry
}

// New creates a Store with the given options. Use DefaultOptions as the
// starting point.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Store{
		opts:     opts,
		gateway:  rules.NewGateway(opts.Strict),
		schema:   make(map[string]rules.Rule),
		state:    make(value.Object),
		ledger:   history.NewLedger(opts.HistoryBuffer),
		notifier: notify.NewRegistry(),
	}
}

// Register creates a field: the schema source is compiled into a rule, the
// default value is validated against it once, and the accepted (normalized)
// default becomes the field's initial value. The initial assignment is a
// replay-mode write: it consumes no history capacity and fires no change
// event. Registered callbacks are invoked last.
func (s *Store) Register(name, schema string, def value.Value) error {
	if name == "" {
		return &Error{Code: CodeUnknownField, Message: "empty field name"}
	}
	if _, exists := s.schema[name]; exists {
		return &Error{Code: CodeDuplicateField, Field: name, Message: "field already registered"}
	}

	rule, err := s.gateway.Compile(name, schema)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	normalized, err := s.gateway.Validate(rule, def)
	if err != nil {
		rej := &Error{
			Code:    CodeValidationRejected,
			Field:   name,
			Message: "default value rejected by rule",
			Detail:  err,
		}
		s.surface(rej)
		return rej
	}

	// Rule first, then the value, so the two collections only ever
	// disagree inside this call. The default goes in as a replay-mode
	// write: already validated, no history entry, no change event.
	s.schema[name] = rule
	if err := s.apply(modeReplay, opSet, value.Path{value.FieldSegment(name)}, normalized); err != nil {
		delete(s.schema, name)
		return err
	}

	s.notifier.PublishRegister(name)
	return nil
}

// Unregister removes a field's rule and value together. The removal is not
// recorded in history: an unregistered field is not recoverable via undo.
func (s *Store) Unregister(name string) error {
	if _, exists := s.schema[name]; !exists {
		err := &Error{Code: CodeUnknownField, Field: name, Message: "field not registered"}
		s.surface(err)
		return err
	}
	delete(s.schema, name)
	delete(s.state, name)

	s.notifier.PublishUnregister(name)
	return nil
}

// Has reports whether a field is registered.
func (s *Store) Has(name string) bool {
	_, ok := s.schema[name]
	return ok
}

// Fields returns the registered field names in sorted order.
func (s *Store) Fields() []string {
	names := make([]string, 0, len(s.schema))
	for name := range s.schema {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Rule returns the compiled rule for a field.
func (s *Store) Rule(name string) (rules.Rule, bool) {
	r, ok := s.schema[name]
	return r, ok
}

// Get resolves a dot-separated path against the live state tree.
// The returned value is a view into store-owned data, never a copy.
func (s *Store) Get(path string) (value.Value, bool) {
	p, err := value.ParsePath(path)
	if err != nil {
		return nil, false
	}
	return value.Lookup(s.state, p)
}

// Snapshot returns a deep, independent copy of the entire state tree.
func (s *Store) Snapshot() map[string]value.Value {
	return history.CloneSnapshot(s.state)
}

// UndoLen returns the number of undo ledger entries.
func (s *Store) UndoLen() int { return s.ledger.UndoLen() }

// RedoLen returns the number of redo ledger entries.
func (s *Store) RedoLen() int { return s.ledger.RedoLen() }

// History returns deep copies of the undo ledger entries, oldest first.
func (s *Store) History() []history.Snapshot { return s.ledger.UndoEntries() }

// OnChange subscribes fn to committed mutations of the named field.
func (s *Store) OnChange(field string, fn notify.ChangeFunc) {
	s.notifier.OnChange(field, fn)
}

// OnError subscribes fn to surfaced errors.
func (s *Store) OnError(fn notify.ErrorFunc) {
	s.notifier.OnError(fn)
}

// OnRegister subscribes fn to field registrations.
func (s *Store) OnRegister(fn notify.FieldFunc) {
	s.notifier.OnRegister(fn)
}

// OnUnregister subscribes fn to field removals.
func (s *Store) OnUnregister(fn notify.FieldFunc) {
	s.notifier.OnUnregister(fn)
}

// surface delivers an error to subscribers and the error log.
func (s *Store) surface(err error) {
	s.notifier.PublishError(err, s.Snapshot())
	if s.opts.ErrorLog {
		s.opts.Logger.Printf("joistor: %v", err)
	}
}
