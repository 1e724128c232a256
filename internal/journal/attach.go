package journal

import (
	"context"

	"github.com/michaelladouceur1/joistor/internal/notify"
	"github.com/michaelladouceur1/joistor/internal/store"
	"github.com/michaelladouceur1/joistor/internal/value"
)

// Recorder journals a store's committed mutations under one session.
// Replayed (undo/redo) states are not journaled: the store publishes no
// change events during replay, so the journal is a log of forward edits.
type Recorder struct {
	journal *Journal
	session string
	seq     int64
	errs    []error
}

// Attach subscribes a recorder to every currently registered field and to
// fields registered later. Journal write failures during dispatch are
// collected and reported by Err; they never disturb the store.
func Attach(ctx context.Context, j *Journal, st *store.Store) (*Recorder, error) {
	session, err := j.BeginSession(ctx)
	if err != nil {
		return nil, err
	}
	r := &Recorder{journal: j, session: session}

	subscribe := func(field string) {
		st.OnChange(field, func(c notify.Change) {
			r.record(ctx, c)
		})
	}
	for _, field := range st.Fields() {
		subscribe(field)
	}
	st.OnRegister(subscribe)

	return r, nil
}

// Session returns the recorder's session token.
func (r *Recorder) Session() string { return r.session }

// Err returns the first journal write failure seen during dispatch.
func (r *Recorder) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[0]
}

func (r *Recorder) record(ctx context.Context, c notify.Change) {
	committed := c.Value
	if committed == nil {
		committed = value.Null{}
	}
	data, err := value.MarshalCanonical(committed)
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}

	r.seq++
	rec := ChangeRecord{
		SessionID: r.session,
		Seq:       r.seq,
		Field:     c.Field,
		Path:      c.Path.String(),
		Value:     string(data),
	}
	if err := r.journal.RecordChange(ctx, rec); err != nil {
		r.errs = append(r.errs, err)
	}
}

// Checkpoint stores the store's current whole state as a snapshot at the
// recorder's current sequence position.
func (r *Recorder) Checkpoint(ctx context.Context, st *store.Store) error {
	state := value.Object(st.Snapshot())
	data, err := value.MarshalCanonical(state)
	if err != nil {
		return err
	}
	return r.journal.SaveSnapshot(ctx, r.session, r.seq, string(data))
}
