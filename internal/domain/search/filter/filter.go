package filter

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

// Op is a filter comparison operator.
type Op string

// Supported operators.
const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLte Op = "<="
	OpGt  Op = ">"
	OpLt  Op = "<"
	OpIn  Op = "in"
)

// IsValid reports whether op is a known operator.
func (op Op) IsValid() bool {
	switch op {
	case OpEq, OpGte, OpLte, OpGt, OpLt, OpIn:
		return true
	}
	return false
}

// Filter is a single metadata condition: key op value.
// For OpIn the right-hand side is a list, otherwise a scalar.
type Filter struct {
	key    string
	op     Op
	value  string
	values []string
}

// New validates and creates a Filter. For OpIn, value is a comma-separated list.
func New(key string, op Op, value string) (Filter, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Filter{}, fmt.Errorf("%w: filter key is required", domain.ErrInvalidFilterExpression)
	}
	if !op.IsValid() {
		return Filter{}, fmt.Errorf("%w: unknown operator %q", domain.ErrInvalidFilterExpression, op)
	}

	if op == OpIn {
		var values []string
		for _, v := range strings.Split(value, ",") {
			if v = unquote(strings.TrimSpace(v)); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return Filter{}, fmt.Errorf("%w: empty value list for key %q", domain.ErrInvalidFilterExpression, key)
		}
		return Filter{key: key, op: op, values: values}, nil
	}

	value = unquote(strings.TrimSpace(value))
	if value == "" {
		return Filter{}, fmt.Errorf("%w: value is required for key %q", domain.ErrInvalidFilterExpression, key)
	}
	return Filter{key: key, op: op, value: value}, nil
}

// Key returns the metadata key.
func (f Filter) Key() string { return f.key }

// Op returns the operator.
func (f Filter) Op() Op { return f.op }

// Value returns the scalar right-hand side (empty for OpIn).
func (f Filter) Value() string { return f.value }

// Values returns the list right-hand side of an OpIn filter.
func (f Filter) Values() []string { return f.values }

func (f Filter) String() string {
	if f.op == OpIn {
		return f.key + " in " + strings.Join(f.values, ",")
	}
	return f.key + string(f.op) + f.value
}

// Set is a conjunction of filters. An empty Set admits everything.
type Set []Filter

// Match reports whether meta satisfies every filter in the set.
func (s Set) Match(meta map[string]any) bool {
	for _, f := range s {
		if !f.Match(meta) {
			return false
		}
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
