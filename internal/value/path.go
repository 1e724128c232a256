package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path. The raw text is kept alongside the parsed
// index so that a numeric segment can still address an object key: the
// container decides at resolution time whether the segment is a key or an
// array index.
type Segment struct {
	raw     string
	index   int
	numeric bool
}

// Key returns the segment as an object key.
func (s Segment) Key() string { return s.raw }

// Index returns the segment as an array index and whether it is numeric.
func (s Segment) Index() (int, bool) { return s.index, s.numeric }

func (s Segment) String() string { return s.raw }

// Path addresses a location inside a state tree. The first segment is
// always the owning top-level field name; subsequent segments descend into
// that field's value. Paths are explicit and resolved eagerly - there is no
// lazy wrapping of intermediate containers.
type Path []Segment

// PathError reports a path that cannot be parsed or resolved.
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: %s", e.Path, e.Message)
}

// FieldSegment builds the path segment for a top-level field name.
func FieldSegment(name string) Segment {
	seg := Segment{raw: name}
	if idx, err := strconv.Atoi(name); err == nil && idx >= 0 {
		seg.index = idx
		seg.numeric = true
	}
	return seg
}

// ParsePath parses a dot-separated path such as "user.roles.0".
// Empty paths and empty segments are rejected.
func ParsePath(path string) (Path, error) {
	if path == "" {
		return nil, &PathError{Path: path, Message: "empty path"}
	}
	parts := strings.Split(path, ".")
	segs := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, &PathError{Path: path, Message: "empty segment"}
		}
		seg := Segment{raw: part}
		if idx, err := strconv.Atoi(part); err == nil && idx >= 0 {
			seg.index = idx
			seg.numeric = true
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// MustParsePath is ParsePath that panics on malformed input.
func MustParsePath(path string) Path {
	p, err := ParsePath(path)
	if err != nil {
		panic(err)
	}
	return p
}

// Field returns the owning top-level field name (the first segment).
func (p Path) Field() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].raw
}

// Rest returns the path below the top-level field.
func (p Path) Rest() Path {
	if len(p) == 0 {
		return nil
	}
	return p[1:]
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.raw
	}
	return strings.Join(parts, ".")
}

// Lookup resolves path inside root and returns the value at that location.
func Lookup(root Object, path Path) (Value, bool) {
	var current Value = root
	for _, seg := range path {
		switch c := current.(type) {
		case Object:
			child, ok := c[seg.Key()]
			if !ok {
				return nil, false
			}
			current = child
		case Array:
			idx, numeric := seg.Index()
			if !numeric || idx >= len(c) {
				return nil, false
			}
			current = c[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Put writes v at path inside root, mutating containers in place. It
// returns the previous value at the location and whether one existed, so a
// rejected mutation can be reverted at exactly that location.
//
// Intermediate containers must already exist; a write never creates missing
// ancestors. An array write may target an existing index or the index one
// past the end (append).
func Put(root Object, path Path, v Value) (prev Value, existed bool, err error) {
	if len(path) == 0 {
		return nil, false, &PathError{Path: "", Message: "empty path"}
	}
	_, prev, existed, err = putIn(root, path, path, v)
	return prev, existed, err
}

func putIn(container Value, full, segs Path, v Value) (updated, prev Value, existed bool, err error) {
	seg := segs[0]
	switch c := container.(type) {
	case Object:
		if len(segs) == 1 {
			prev, existed = c[seg.Key()]
			c[seg.Key()] = v
			return c, prev, existed, nil
		}
		child, ok := c[seg.Key()]
		if !ok {
			return nil, nil, false, &PathError{Path: full.String(), Message: fmt.Sprintf("missing intermediate %q", seg)}
		}
		newChild, prev, existed, err := putIn(child, full, segs[1:], v)
		if err != nil {
			return nil, nil, false, err
		}
		c[seg.Key()] = newChild
		return c, prev, existed, nil

	case Array:
		idx, numeric := seg.Index()
		if !numeric {
			return nil, nil, false, &PathError{Path: full.String(), Message: fmt.Sprintf("segment %q is not an array index", seg)}
		}
		if len(segs) == 1 {
			switch {
			case idx < len(c):
				prev = c[idx]
				c[idx] = v
				return c, prev, true, nil
			case idx == len(c):
				return append(c, v), nil, false, nil
			default:
				return nil, nil, false, &PathError{Path: full.String(), Message: fmt.Sprintf("index %d out of range (len %d)", idx, len(c))}
			}
		}
		if idx >= len(c) {
			return nil, nil, false, &PathError{Path: full.String(), Message: fmt.Sprintf("index %d out of range (len %d)", idx, len(c))}
		}
		newChild, prev, existed, err := putIn(c[idx], full, segs[1:], v)
		if err != nil {
			return nil, nil, false, err
		}
		c[idx] = newChild
		return c, prev, existed, nil

	default:
		return nil, nil, false, &PathError{Path: full.String(), Message: fmt.Sprintf("cannot descend into %T at %q", container, seg)}
	}
}

// Remove deletes the value at path inside root. It returns the removed
// value and whether one existed; removing a missing location is a no-op.
// Array removal splices the element out, shifting later elements down.
func Remove(root Object, path Path) (prev Value, existed bool, err error) {
	if len(path) == 0 {
		return nil, false, &PathError{Path: "", Message: "empty path"}
	}
	_, prev, existed, err = removeIn(root, path, path)
	return prev, existed, err
}

func removeIn(container Value, full, segs Path) (updated, prev Value, existed bool, err error) {
	seg := segs[0]
	switch c := container.(type) {
	case Object:
		if len(segs) == 1 {
			prev, existed = c[seg.Key()]
			delete(c, seg.Key())
			return c, prev, existed, nil
		}
		child, ok := c[seg.Key()]
		if !ok {
			return c, nil, false, nil
		}
		newChild, prev, existed, err := removeIn(child, full, segs[1:])
		if err != nil {
			return nil, nil, false, err
		}
		c[seg.Key()] = newChild
		return c, prev, existed, nil

	case Array:
		idx, numeric := seg.Index()
		if !numeric {
			return nil, nil, false, &PathError{Path: full.String(), Message: fmt.Sprintf("segment %q is not an array index", seg)}
		}
		if idx >= len(c) {
			return c, nil, false, nil
		}
		if len(segs) == 1 {
			prev = c[idx]
			return append(c[:idx], c[idx+1:]...), prev, true, nil
		}
		newChild, prev, existed, err := removeIn(c[idx], full, segs[1:])
		if err != nil {
			return nil, nil, false, err
		}
		c[idx] = newChild
		return c, prev, existed, nil

	default:
		return nil, nil, false, &PathError{Path: full.String(), Message: fmt.Sprintf("cannot descend into %T at %q", container, seg)}
	}
}
