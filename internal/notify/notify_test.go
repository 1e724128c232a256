package notify

import (
	"errors"
	"testing"

	"github.com/michaelladouceur1/joistor/internal/value"
)

func TestChangeSubscribersCalledInOrder(t *testing.T) {
	r := NewRegistry()

	var order []int
	r.OnChange("user", func(Change) { order = append(order, 1) })
	r.OnChange("user", func(Change) { order = append(order, 2) })
	r.OnChange("other", func(Change) { order = append(order, 99) })

	r.PublishChange(Change{Field: "user", Value: value.Int(1)})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestPublishChangeNoSubscribers(t *testing.T) {
	r := NewRegistry()
	// Must not panic.
	r.PublishChange(Change{Field: "ghost"})
}

func TestPublishError(t *testing.T) {
	r := NewRegistry()

	var got error
	var state map[string]value.Value
	r.OnError(func(err error, s map[string]value.Value) { got, state = err, s })

	want := errors.New("rejected")
	r.PublishError(want, map[string]value.Value{"f": value.Int(1)})

	if got != want {
		t.Errorf("err = %v, want %v", got, want)
	}
	if len(state) != 1 {
		t.Errorf("state = %v", state)
	}
}

func TestFieldLifecycleCallbacks(t *testing.T) {
	r := NewRegistry()

	var log []string
	r.OnRegister(func(name string) { log = append(log, "+"+name) })
	r.OnUnregister(func(name string) { log = append(log, "-"+name) })

	r.PublishRegister("a")
	r.PublishUnregister("a")

	if len(log) != 2 || log[0] != "+a" || log[1] != "-a" {
		t.Errorf("log = %v", log)
	}
}

func TestChangeSubscribersCount(t *testing.T) {
	r := NewRegistry()
	r.OnChange("f", func(Change) {})
	r.OnChange("f", func(Change) {})

	if n := r.ChangeSubscribers("f"); n != 2 {
		t.Errorf("ChangeSubscribers() = %d, want 2", n)
	}
	if n := r.ChangeSubscribers("g"); n != 0 {
		t.Errorf("ChangeSubscribers(g) = %d, want 0", n)
	}
}
