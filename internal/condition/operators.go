package condition

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// toFloat64 coerces a numeric value to float64. Numeric strings coerce too,
// since comparison values frequently arrive as text from authoring forms.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// looseEqual is coercive equality: numeric values compare by value, bools by
// value, and everything else falls back to string form. "5" equals 5.
func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			return lb == rb
		}
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

// numericCompare applies gt/lt/gte/lte. Non-numeric operands evaluate to
// false rather than erroring.
func numericCompare(op rule.Operator, left, right any) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return false
	}
	switch op {
	case rule.OpGreaterThan:
		return lf > rf
	case rule.OpLessThan:
		return lf < rf
	case rule.OpGreaterEqual:
		return lf >= rf
	case rule.OpLessEqual:
		return lf <= rf
	}
	return false
}

// stringCompare applies contains/starts_with/ends_with. Both operands must be
// strings; anything else evaluates to false.
func stringCompare(op rule.Operator, left, right any) bool {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return false
	}
	switch op {
	case rule.OpContains:
		return strings.Contains(ls, rs)
	case rule.OpStartsWith:
		return strings.HasPrefix(ls, rs)
	case rule.OpEndsWith:
		return strings.HasSuffix(ls, rs)
	}
	return false
}

// membership applies in/not_in. The comparison value must be array-like;
// anything else evaluates to false (for not_in too: a malformed list never
// matches rather than matching everything).
func membership(op rule.Operator, left, right any) bool {
	items, ok := toSlice(right)
	if !ok {
		return false
	}
	found := false
	for _, item := range items {
		if looseEqual(left, item) {
			found = true
			break
		}
	}
	if op == rule.OpNotIn {
		return !found
	}
	return found
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}
