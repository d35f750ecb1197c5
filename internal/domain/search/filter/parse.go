package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

// DefaultFlag is the argument-list flag that introduces a filter expression.
const DefaultFlag = "--filter"

// exprRe matches key<op>value. "in" needs surrounding whitespace so keys like "origin" stay intact.
var exprRe = regexp.MustCompile(`^\s*([^\s=<>]+?)\s*(>=|<=|=|>|<|\s+in\s+)\s*(.+?)\s*$`)

// Parse parses a single key<op>value expression.
func Parse(expr string) (Filter, error) {
	m := exprRe.FindStringSubmatch(expr)
	if m == nil {
		return Filter{}, fmt.Errorf("%w: %q", domain.ErrInvalidFilterExpression, expr)
	}
	f, err := New(m[1], Op(strings.TrimSpace(m[2])), m[3])
	if err != nil {
		return Filter{}, fmt.Errorf("parse %q: %w", expr, err)
	}
	return f, nil
}

// ParseAll parses every expression, dropping malformed ones.
// The returned errors are diagnostics for the dropped expressions; the batch never fails as a whole.
func ParseAll(exprs []string) (Set, []error) {
	var (
		set   Set
		diags []error
	)
	for _, e := range exprs {
		f, err := Parse(e)
		if err != nil {
			diags = append(diags, err)
			continue
		}
		set = append(set, f)
	}
	return set, diags
}

// ParseArgs extracts filters from a flag-like argument list. Both the
// two-token form (flag expr) and the single-token form (flag=expr) are
// accepted; tokens unrelated to flag are ignored.
func ParseArgs(args []string, flag string) (Set, []error) {
	if flag == "" {
		flag = DefaultFlag
	}

	var exprs []string
	var diags []error
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == flag:
			if i+1 >= len(args) {
				diags = append(diags, fmt.Errorf("%w: %s without expression", domain.ErrInvalidFilterExpression, flag))
				continue
			}
			i++
			exprs = append(exprs, args[i])
		case strings.HasPrefix(arg, flag+"="):
			exprs = append(exprs, strings.TrimPrefix(arg, flag+"="))
		}
	}

	set, parseDiags := ParseAll(exprs)
	return set, append(diags, parseDiags...)
}
