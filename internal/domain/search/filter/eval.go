package filter

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
)

// Match evaluates the filter against chunk metadata. A missing key or an
// uncomparable value excludes the chunk.
func (f Filter) Match(meta map[string]any) bool {
	actual, ok := meta[f.key]
	if !ok {
		return false
	}

	switch f.op {
	case OpEq:
		s, ok := stringify(actual)
		return ok && s == f.value
	case OpIn:
		s, ok := stringify(actual)
		return ok && slices.Contains(f.values, s)
	case OpGte, OpLte, OpGt, OpLt:
		return f.compare(actual)
	}
	return false
}

// compare tries a numeric comparison first and falls back to dates.
func (f Filter) compare(actual any) bool {
	if a, ok := toNumber(actual); ok {
		if b, err := strconv.ParseFloat(f.value, 64); err == nil && finite(b) {
			return ordered(cmpFloat(a, b), f.op)
		}
	}

	s, ok := stringify(actual)
	if !ok {
		return false
	}
	ta, err := parseDate(s)
	if err != nil {
		return false
	}
	tb, err := parseDate(f.value)
	if err != nil {
		return false
	}
	return ordered(ta.Compare(tb), f.op)
}

func ordered(c int, op Op) bool {
	switch op {
	case OpGte:
		return c >= 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpLt:
		return c < 0
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toNumber(v any) (float64, bool) {
	switch v.(type) {
	case bool, []any, []string, map[string]any, nil:
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

// finite rejects NaN and infinities, which compare as equal or unbounded to everything.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func parseDate(s string) (time.Time, error) {
	return dateparse.ParseIn(strings.TrimSpace(s), time.UTC)
}

// stringify renders a metadata value for string comparison. Arrays are joined with commas.
func stringify(v any) (string, bool) {
	switch tv := v.(type) {
	case []string:
		return strings.Join(tv, ","), true
	case []any:
		parts := make([]string, len(tv))
		for i, item := range tv {
			s, ok := stringify(item)
			if !ok {
				return "", false
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), true
	case time.Time:
		return tv.Format(time.RFC3339), true
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}
