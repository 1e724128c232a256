package rules

import (
	"math"
	"strconv"

	"cuelang.org/go/cue"

	"github.com/michaelladouceur1/joistor/internal/value"
)

// coerce nudges candidate scalars toward the kinds the schema expects.
// It never mutates its input and never fails: anything that cannot be
// coerced is returned unchanged and left for unification to reject.
// Containers recurse using the schema's per-field and per-element
// constraints, mirroring how kinds are read off a schema elsewhere
// (IncompleteKind covers non-concrete constraints like "int & >0").
func coerce(schema cue.Value, v value.Value) value.Value {
	kind := schema.IncompleteKind()

	switch val := v.(type) {
	case value.String:
		return coerceString(kind, val)
	case value.Int:
		if kind&cue.IntKind == 0 && kind&cue.StringKind != 0 {
			return value.String(strconv.FormatInt(int64(val), 10))
		}
		return v
	case value.Float:
		return coerceFloat(kind, val)
	case value.Bool:
		if kind&cue.BoolKind == 0 && kind&cue.StringKind != 0 {
			return value.String(strconv.FormatBool(bool(val)))
		}
		return v
	case value.Object:
		if kind&cue.StructKind == 0 {
			return v
		}
		out := make(value.Object, len(val))
		for k, elem := range val {
			fieldSchema := schema.LookupPath(cue.MakePath(cue.Str(k)))
			if fieldSchema.Exists() {
				out[k] = coerce(fieldSchema, elem)
			} else {
				out[k] = elem
			}
		}
		return out
	case value.Array:
		if kind&cue.ListKind == 0 {
			return v
		}
		elemSchema := schema.LookupPath(cue.MakePath(cue.AnyIndex))
		if !elemSchema.Exists() {
			return v
		}
		out := make(value.Array, len(val))
		for i, elem := range val {
			out[i] = coerce(elemSchema, elem)
		}
		return out
	default:
		return v
	}
}

func coerceString(kind cue.Kind, val value.String) value.Value {
	if kind&cue.StringKind != 0 {
		return val
	}
	s := string(val)
	if kind&cue.IntKind != 0 {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.Int(i)
		}
	}
	if kind&(cue.FloatKind|cue.NumberKind) != 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return value.Float(f)
		}
	}
	if kind&cue.BoolKind != 0 {
		if b, err := strconv.ParseBool(s); err == nil {
			return value.Bool(b)
		}
	}
	return val
}

func coerceFloat(kind cue.Kind, val value.Float) value.Value {
	f := float64(val)
	if kind&cue.FloatKind != 0 || kind&cue.NumberKind != 0 {
		return val
	}
	if kind&cue.IntKind != 0 && f == math.Trunc(f) {
		return value.Int(int64(f))
	}
	if kind&cue.StringKind != 0 {
		return value.String(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return val
}
