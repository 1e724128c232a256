// Package manifest loads declarative field definitions from YAML: each
// entry names a field, its CUE schema source, and its default value.
// A manifest is glue around the store's Register call, nothing more.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/michaelladouceur1/joistor/internal/store"
	"github.com/michaelladouceur1/joistor/internal/value"
)

// Field declares one registerable field.
type Field struct {
	// Name is the unique top-level field name.
	Name string `yaml:"name"`

	// Schema is CUE source for the field's validation rule.
	Schema string `yaml:"schema"`

	// Default is the field's initial value. It must satisfy Schema.
	Default any `yaml:"default"`
}

// Manifest is a set of field declarations.
type Manifest struct {
	Fields []Field `yaml:"fields"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes manifest YAML and checks its shape: every field needs a
// unique name and a schema.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Fields) == 0 {
		return nil, fmt.Errorf("parse manifest: no fields declared")
	}

	seen := make(map[string]bool, len(m.Fields))
	for i, f := range m.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("parse manifest: fields[%d] has no name", i)
		}
		if f.Schema == "" {
			return nil, fmt.Errorf("parse manifest: field %q has no schema", f.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("parse manifest: duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return &m, nil
}

// Apply registers every declared field on the store, in declaration order.
// The first failing registration aborts and is returned.
func (m *Manifest) Apply(st *store.Store) error {
	for _, f := range m.Fields {
		def, err := FromYAML(f.Default)
		if err != nil {
			return fmt.Errorf("field %q default: %w", f.Name, err)
		}
		if err := st.Register(f.Name, f.Schema, def); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

// FromYAML converts a decoded YAML value into a store value.
func FromYAML(v any) (value.Value, error) {
	return value.FromGo(normalizeYAML(v))
}

// normalizeYAML rewrites yaml.v3's map[string]any trees, converting the
// map[any]any containers older documents can produce.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalizeYAML(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	default:
		return v
	}
}
