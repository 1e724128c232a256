// Package rules wraps the CUE engine behind the narrow validation
// capability the store needs: compile a schema once, then check candidate
// field values against it and hand back the normalized result.
package rules

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/michaelladouceur1/joistor/internal/value"
)

// Rule is a compiled validation rule bound to a field at registration.
// The zero Rule is undefined; the store uses Defined to tell a missing
// rule apart from a failing one.
type Rule struct {
	name   string
	expr   cue.Value
	source string
}

// Defined reports whether the rule holds a compiled schema.
func (r Rule) Defined() bool { return r.source != "" }

// Name returns the field name the rule was compiled for.
func (r Rule) Name() string { return r.name }

// Source returns the CUE source the rule was compiled from.
func (r Rule) Source() string { return r.source }

// Gateway validates candidate field values against compiled rules.
// In strict mode the candidate must already match the rule's expected
// representation; in lenient mode scalars are coerced toward the rule's
// kinds (numeric string to number, number to string, and so on) before
// unification.
type Gateway struct {
	ctx    *cue.Context
	strict bool
}

// NewGateway creates a gateway. strict disables coercion.
func NewGateway(strict bool) *Gateway {
	return &Gateway{ctx: cuecontext.New(), strict: strict}
}

// Strict reports whether coercion is disabled.
func (g *Gateway) Strict() bool { return g.strict }

// Compile compiles CUE schema source into a Rule for the named field.
func (g *Gateway) Compile(name, source string) (Rule, error) {
	if source == "" {
		return Rule{}, &CompileError{Field: name, Message: "empty schema source"}
	}
	expr := g.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := expr.Err(); err != nil {
		return Rule{}, compileError(name, err)
	}
	return Rule{name: name, expr: expr, source: source}, nil
}

// Validate checks candidate against the rule and returns the normalized
// value (coercions applied, CUE defaults filled). A failing candidate
// returns a *RuleError carrying the engine's error detail; the input is
// never mutated.
func (g *Gateway) Validate(r Rule, candidate value.Value) (value.Value, error) {
	if !r.Defined() {
		return nil, &RuleError{Field: r.name, Details: []string{"no rule compiled"}}
	}

	cand := candidate
	if !g.strict {
		cand = coerce(r.expr, cand)
	}

	data, err := value.Marshal(cand)
	if err != nil {
		return nil, &RuleError{Field: r.name, Details: []string{err.Error()}}
	}
	expr, err := cuejson.Extract(r.name, data)
	if err != nil {
		return nil, ruleError(r.name, err)
	}
	candVal := g.ctx.BuildExpr(expr)
	if err := candVal.Err(); err != nil {
		return nil, ruleError(r.name, err)
	}

	unified := r.expr.Unify(candVal)
	if err := unified.Err(); err != nil {
		return nil, ruleError(r.name, err)
	}
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return nil, ruleError(r.name, err)
	}

	normalized, err := decode(unified)
	if err != nil {
		return nil, ruleError(r.name, err)
	}
	return normalized, nil
}

// decode turns a concrete CUE value back into a value tree.
func decode(v cue.Value) (value.Value, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return value.Unmarshal(data)
}

// CompileError reports a schema that failed to compile.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: schema %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("schema %s: %s", e.Field, e.Message)
}

// RuleError reports a candidate value rejected by its rule.
// Details holds the engine's individual error messages.
type RuleError struct {
	Field   string
	Details []string
}

func (e *RuleError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("field %s: validation failed", e.Field)
	}
	if len(e.Details) == 1 {
		return fmt.Sprintf("field %s: %s", e.Field, e.Details[0])
	}
	return fmt.Sprintf("field %s: %s (and %d more)", e.Field, e.Details[0], len(e.Details)-1)
}

// compileError extracts position info from CUE compile errors.
func compileError(field string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: field, Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Field: field, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// ruleError collects every message from a CUE validation error.
// CUE errors are trees; Errors flattens them so callers see each failing
// constraint, not just the first.
func ruleError(field string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &RuleError{Field: field, Details: []string{err.Error()}}
	}
	details := make([]string, 0, len(errs))
	for _, e := range errs {
		details = append(details, e.Error())
	}
	return &RuleError{Field: field, Details: details}
}
