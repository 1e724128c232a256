package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelladouceur1/joistor/internal/notify"
	"github.com/michaelladouceur1/joistor/internal/rules"
	"github.com/michaelladouceur1/joistor/internal/value"
)

const systemSchema = `{id: int, name: string}`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	opts := DefaultOptions()
	opts.ErrorLog = false
	return New(opts)
}

func registerSystem(t *testing.T, st *Store) {
	t.Helper()
	def := value.Object{"id": value.Int(0), "name": value.String("")}
	require.NoError(t, st.Register("system", systemSchema, def))
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	require.True(t, st.Has("system"))
	_, ok := st.Get("system")
	require.True(t, ok)

	require.NoError(t, st.Unregister("system"))

	assert.False(t, st.Has("system"))
	_, ok = st.Get("system")
	assert.False(t, ok)
	assert.Empty(t, st.Fields())
}

func TestRegisterRejectsInvalidDefault(t *testing.T) {
	st := newTestStore(t)
	def := value.Object{"id": value.String("nope"), "name": value.Int(3)}

	err := st.Register("system", `{id: int, name: string}`, def)
	require.Error(t, err)
	assert.True(t, IsValidationRejected(err))
	assert.False(t, st.Has("system"))
}

func TestRegisterDuplicate(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	err := st.Register("system", systemSchema, value.Object{"id": value.Int(0), "name": value.String("")})
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeDuplicateField, se.Code)
}

func TestRegisterFillsDefaults(t *testing.T) {
	st := newTestStore(t)
	schema := `{id: int | *0, name: string | *"anon"}`

	require.NoError(t, st.Register("user", schema, value.Object{}))

	got, ok := st.Get("user")
	require.True(t, ok)
	want := value.Object{"id": value.Int(0), "name": value.String("anon")}
	assert.True(t, value.Equal(want, got), "got %v", got)
}

func TestValidityGating(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	before, _ := st.Get("system")
	before = value.Clone(before)

	err := st.Set("system", value.Object{"id": value.String("bad"), "name": value.String("")})
	require.Error(t, err)
	assert.True(t, IsValidationRejected(err))

	after, _ := st.Get("system")
	assert.True(t, value.Equal(before, after), "rejected write must leave the field unchanged")
	assert.Equal(t, 0, st.UndoLen())
}

func TestNestedRejectReverts(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)
	require.NoError(t, st.Set("system", value.Object{"id": value.Int(1), "name": value.String("test")}))

	err := st.Set("system.id", value.String("bad"))
	require.Error(t, err)
	require.True(t, IsValidationRejected(err))

	got, _ := st.Get("system.id")
	assert.True(t, value.Equal(value.Int(1), got))
}

func TestNestedRejectRemovesIntroducedLocation(t *testing.T) {
	st := newTestStore(t)
	// Closed struct: an extra key anywhere in the field makes it invalid.
	require.NoError(t, st.Register("cfg", `close({host: string})`,
		value.Object{"host": value.String("localhost")}))

	err := st.Set("cfg.port", value.Int(8080))
	require.Error(t, err)
	require.True(t, IsValidationRejected(err))

	_, ok := st.Get("cfg.port")
	assert.False(t, ok, "introduced location must be removed on reject")
	host, _ := st.Get("cfg.host")
	assert.True(t, value.Equal(value.String("localhost"), host))
}

func TestHistoryMonotonicity(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	for i := 1; i <= 5; i++ {
		require.NoError(t, st.Set("system.id", value.Int(int64(i))))
		assert.Equal(t, i, st.UndoLen())
		assert.Equal(t, 0, st.RedoLen())
	}

	require.NoError(t, st.Undo())
	require.Equal(t, 1, st.RedoLen())

	// A fresh forward mutation invalidates the redo branch.
	require.NoError(t, st.Set("system.id", value.Int(99)))
	assert.Equal(t, 0, st.RedoLen())
}

func TestUndoRedoInverseLaw(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	for i := 1; i <= 4; i++ {
		require.NoError(t, st.Set("system.id", value.Int(int64(i))))
	}
	want := st.Snapshot()

	for k := 1; k <= 3; k++ {
		require.NoError(t, st.Undo())
	}
	for k := 1; k <= 3; k++ {
		require.NoError(t, st.Redo())
	}

	got := st.Snapshot()
	require.Len(t, got, len(want))
	for name, v := range want {
		assert.True(t, value.Equal(v, got[name]), "field %s diverged", name)
	}
}

func TestDepthTransparency(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Register("user", `{id: int, name: string}`,
		value.Object{"id": value.Int(0), "name": value.String("")}))

	var events []notify.Change
	st.OnChange("user", func(c notify.Change) { events = append(events, c) })

	require.NoError(t, st.Set("user", value.Object{"id": value.Int(10), "name": value.String("Sarah")}))
	require.NoError(t, st.Set("user.name", value.String("Bert")))

	require.Len(t, events, 2)
	assert.Equal(t, "user", events[0].Field)
	assert.Equal(t, "user", events[0].Path.String())
	assert.Equal(t, "user", events[1].Field)
	assert.Equal(t, "user.name", events[1].Path.String())
	assert.True(t, value.Equal(value.String("Bert"), events[1].Value))

	got, _ := st.Get("user.name")
	assert.True(t, value.Equal(value.String("Bert"), got))
}

func TestCapacityEviction(t *testing.T) {
	opts := DefaultOptions()
	opts.HistoryBuffer = 2
	opts.ErrorLog = false
	st := New(opts)
	registerSystem(t, st)

	// Three accepted writes with capacity 2: the snapshot of the initial
	// state is evicted, snapshots of states 1 and 2 remain.
	for i := 1; i <= 3; i++ {
		require.NoError(t, st.Set("system.id", value.Int(int64(i))))
	}
	require.Equal(t, 2, st.UndoLen())

	entries := st.History()
	assert.True(t, value.Equal(value.Int(1), entries[0]["system"].(value.Object)["id"]))
	assert.True(t, value.Equal(value.Int(2), entries[1]["system"].(value.Object)["id"]))
}

func TestScenario(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	require.NoError(t, st.Set("system", value.Object{"id": value.Int(1), "name": value.String("test")}))
	require.Equal(t, 1, st.UndoLen())

	err := st.Set("system", value.Object{"id": value.String("bad"), "name": value.String("")})
	require.Error(t, err)
	got, _ := st.Get("system")
	assert.True(t, value.Equal(value.Object{"id": value.Int(1), "name": value.String("test")}, got))
	assert.Equal(t, 1, st.UndoLen())

	require.NoError(t, st.Undo())
	got, _ = st.Get("system")
	assert.True(t, value.Equal(value.Object{"id": value.Int(0), "name": value.String("")}, got))
	assert.Equal(t, 0, st.UndoLen())
	assert.Equal(t, 1, st.RedoLen())

	require.NoError(t, st.Redo())
	got, _ = st.Get("system")
	assert.True(t, value.Equal(value.Object{"id": value.Int(1), "name": value.String("test")}, got))
	assert.Equal(t, 1, st.UndoLen())
	assert.Equal(t, 0, st.RedoLen())
}

func TestUndoRedoEmptyAreNoOps(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	require.NoError(t, st.Undo())
	require.NoError(t, st.Redo())

	got, _ := st.Get("system")
	assert.True(t, value.Equal(value.Object{"id": value.Int(0), "name": value.String("")}, got))
}

func TestReplayPublishesNoChanges(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	var events int
	st.OnChange("system", func(notify.Change) { events++ })

	require.NoError(t, st.Set("system.id", value.Int(7)))
	require.Equal(t, 1, events)

	require.NoError(t, st.Undo())
	require.NoError(t, st.Redo())
	assert.Equal(t, 1, events, "replay must not redeliver change events")
}

func TestUnknownField(t *testing.T) {
	st := newTestStore(t)

	var surfaced []error
	st.OnError(func(err error, _ map[string]value.Value) { surfaced = append(surfaced, err) })

	err := st.Set("ghost", value.Int(1))
	require.Error(t, err)
	assert.True(t, IsUnknownField(err))
	require.Len(t, surfaced, 1)
	assert.True(t, IsUnknownField(surfaced[0]))

	err = st.Unregister("ghost")
	require.Error(t, err)
	assert.True(t, IsUnknownField(err))
}

func TestMissingRule(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	// Simulate a field whose rule was never compiled.
	st.schema["system"] = rules.Rule{}

	err := st.Set("system.id", value.Int(3))
	require.Error(t, err)
	assert.True(t, IsMissingRule(err))

	got, _ := st.Get("system.id")
	assert.True(t, value.Equal(value.Int(0), got), "missing-rule write must not apply")
}

func TestHistoryFieldSetMismatch(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)
	require.NoError(t, st.Set("system.id", value.Int(1)))

	require.NoError(t, st.Register("extra", `{on: bool}`, value.Object{"on": value.Bool(true)}))

	err := st.Undo()
	require.Error(t, err)
	assert.True(t, IsHistoryMismatch(err))

	// Aborted: nothing partially applied.
	got, _ := st.Get("system.id")
	assert.True(t, value.Equal(value.Int(1), got))
	assert.Equal(t, 1, st.UndoLen())
	assert.Equal(t, 0, st.RedoLen())
}

func TestSnapshotsAreIndependent(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)
	require.NoError(t, st.Set("system", value.Object{"id": value.Int(1), "name": value.String("a")}))

	// Mutate live state after the push; the recorded snapshot must not move.
	require.NoError(t, st.Set("system.name", value.String("b")))

	entries := st.History()
	first := entries[0]["system"].(value.Object)
	assert.True(t, value.Equal(value.Int(0), first["id"]))
	assert.True(t, value.Equal(value.String(""), first["name"]))
}

func TestLenientCoercion(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	require.NoError(t, st.Set("system.id", value.String("42")))

	got, _ := st.Get("system.id")
	assert.True(t, value.Equal(value.Int(42), got), "lenient mode coerces numeric strings")
}

func TestStrictModeRejectsCoercibleValue(t *testing.T) {
	opts := DefaultOptions()
	opts.Strict = true
	opts.ErrorLog = false
	st := New(opts)
	registerSystem(t, st)

	err := st.Set("system.id", value.String("42"))
	require.Error(t, err)
	assert.True(t, IsValidationRejected(err))
}

func TestDeleteRevertsOnReject(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)
	require.NoError(t, st.Set("system", value.Object{"id": value.Int(1), "name": value.String("x")}))

	// Removing a required key fails whole-field validation; the delete is
	// reverted at exactly the touched location.
	err := st.Delete("system.name")
	require.Error(t, err)
	require.True(t, IsValidationRejected(err))

	got, ok := st.Get("system.name")
	require.True(t, ok)
	assert.True(t, value.Equal(value.String("x"), got))
}

func TestDeleteOptionalKeyCommits(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Register("cfg", `{host: string, port?: int}`,
		value.Object{"host": value.String("h"), "port": value.Int(80)}))

	require.NoError(t, st.Delete("cfg.port"))

	_, ok := st.Get("cfg.port")
	assert.False(t, ok)
	assert.Equal(t, 1, st.UndoLen())
}

func TestDeleteMissingLocationIsNoOp(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Register("cfg", `{host: string, port?: int}`,
		value.Object{"host": value.String("h")}))

	require.NoError(t, st.Delete("cfg.port"))
	assert.Equal(t, 0, st.UndoLen())
}

func TestCursorFunnelsThroughCommit(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	cur, err := st.At("system")
	require.NoError(t, err)
	idCur, err := cur.At("id")
	require.NoError(t, err)
	require.Equal(t, "system", idCur.Field())

	require.NoError(t, idCur.Set(value.Int(5)))
	got, ok := idCur.Get()
	require.True(t, ok)
	assert.True(t, value.Equal(value.Int(5), got))
	assert.Equal(t, 1, st.UndoLen())

	err = idCur.Set(value.Bool(true))
	require.Error(t, err)
	assert.True(t, IsValidationRejected(err))
	got, _ = idCur.Get()
	assert.True(t, value.Equal(value.Int(5), got))
}

func TestReentrantCallback(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)
	require.NoError(t, st.Register("audit", `{writes: int}`, value.Object{"writes": value.Int(0)}))

	st.OnChange("system", func(notify.Change) {
		n, _ := st.Get("audit.writes")
		_ = st.Set("audit.writes", value.Int(int64(n.(value.Int))+1))
	})

	require.NoError(t, st.Set("system.id", value.Int(1)))
	require.NoError(t, st.Set("system.id", value.Int(2)))

	got, _ := st.Get("audit.writes")
	assert.True(t, value.Equal(value.Int(2), got))
}

func TestOnRegisterOnUnregister(t *testing.T) {
	st := newTestStore(t)

	var log []string
	st.OnRegister(func(name string) { log = append(log, "+"+name) })
	st.OnUnregister(func(name string) { log = append(log, "-"+name) })

	registerSystem(t, st)
	require.NoError(t, st.Unregister("system"))

	assert.Equal(t, []string{"+system", "-system"}, log)
}

func TestChangeOrderFollowsSubscription(t *testing.T) {
	st := newTestStore(t)
	registerSystem(t, st)

	var order []int
	st.OnChange("system", func(notify.Change) { order = append(order, 1) })
	st.OnChange("system", func(notify.Change) { order = append(order, 2) })

	require.NoError(t, st.Set("system.id", value.Int(1)))
	assert.Equal(t, []int{1, 2}, order)
}
