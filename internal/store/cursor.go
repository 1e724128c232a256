package store

import (
	"github.com/michaelladouceur1/joistor/internal/value"
)

// Cursor is a bound accessor: a store plus an explicit path. Every set or
// delete through a cursor funnels into the same validation-and-commit
// routine as Store.Set, attributed to the path's top-level field. Cursors
// replace lazily created per-depth wrappers; the path is explicit.
type Cursor struct {
	st   *Store
	path value.Path
}

// At returns a cursor bound to the given dot-separated path.
func (s *Store) At(path string) (Cursor, error) {
	p, err := value.ParsePath(path)
	if err != nil {
		return Cursor{}, &Error{Code: CodeBadPath, Path: path, Message: err.Error(), Detail: err}
	}
	return Cursor{st: s, path: p}, nil
}

// At extends the cursor's path by further segments.
func (c Cursor) At(sub string) (Cursor, error) {
	p, err := value.ParsePath(sub)
	if err != nil {
		return Cursor{}, &Error{Code: CodeBadPath, Path: sub, Message: err.Error(), Detail: err}
	}
	extended := make(value.Path, 0, len(c.path)+len(p))
	extended = append(extended, c.path...)
	extended = append(extended, p...)
	return Cursor{st: c.st, path: extended}, nil
}

// Path returns the cursor's bound path.
func (c Cursor) Path() value.Path { return c.path }

// Field returns the top-level field the cursor's writes are attributed to.
func (c Cursor) Field() string { return c.path.Field() }

// Get resolves the cursor's location in the live state tree.
// The result is a view into store-owned data.
func (c Cursor) Get() (value.Value, bool) {
	return value.Lookup(c.st.state, c.path)
}

// Set writes v at the cursor's location.
func (c Cursor) Set(v value.Value) error {
	return c.st.apply(modeNormal, opSet, c.path, v)
}

// Delete removes the value at the cursor's location.
func (c Cursor) Delete() error {
	if len(c.path) == 1 {
		bad := &Error{Code: CodeBadPath, Field: c.path.Field(), Path: c.path.String(),
			Message: "cannot delete a whole field; use Unregister"}
		c.st.surface(bad)
		return bad
	}
	return c.st.apply(modeNormal, opDelete, c.path, nil)
}
