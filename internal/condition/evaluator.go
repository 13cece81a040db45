// Package condition evaluates a rule's ordered condition set to a boolean.
// Each condition resolves to true/false in isolation; the results then
// compose into a boolean expression honoring the conditions' group markers,
// AND/OR connectors and standard precedence.
package condition

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/fieldpath"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// Snapshotted is the capability an entity implements to expose its pre-change
// state, required by the changed and was_previously operators.
type Snapshotted interface {
	// FieldChanged reports whether the named field differs from its value
	// before the current change.
	FieldChanged(name string) bool
	// PreviousField returns the field's value before the current change.
	PreviousField(name string) (any, bool)
}

// Trace records one condition's outcome for audit records.
type Trace struct {
	ConditionID string        `json:"condition_id,omitempty"`
	FieldPath   string        `json:"field_path"`
	Operator    rule.Operator `json:"operator"`
	Actual      any           `json:"actual,omitempty"`
	Expected    any           `json:"expected,omitempty"`
	Result      bool          `json:"result"`
}

// Evaluate reduces the condition set to a single boolean. An empty set is
// vacuously true: the rule always fires.
func Evaluate(conds []rule.Condition, data []any, ctx *event.Context) bool {
	result, _ := EvaluateWithTrace(conds, data, ctx)
	return result
}

// EvaluateWithTrace is Evaluate plus a per-condition trace for auditing.
//
// When the composed expression cannot be parsed (malformed grouping), the
// evaluator falls back to true. Failing open keeps a misconfigured rule
// firing instead of silently disabling it; the fallback is logged so the
// misconfiguration is visible.
func EvaluateWithTrace(conds []rule.Condition, data []any, ctx *event.Context) (bool, []Trace) {
	if len(conds) == 0 {
		return true, nil
	}

	sorted := sortConditions(conds)
	traces := make([]Trace, 0, len(sorted))
	tokens := make([]token, 0, len(sorted)*2)

	for i, c := range sorted {
		actual, _ := resolveField(c.FieldPath, data, ctx)
		result := evalOne(c, actual, data, ctx)
		traces = append(traces, Trace{
			ConditionID: c.ID,
			FieldPath:   c.FieldPath,
			Operator:    c.Operator,
			Actual:      actual,
			Expected:    c.Value,
			Result:      result,
		})

		for g := 0; g < c.GroupOpen; g++ {
			tokens = append(tokens, token{kind: tokLParen})
		}
		tokens = append(tokens, token{kind: tokLiteral, value: result})
		for g := 0; g < c.GroupClose; g++ {
			tokens = append(tokens, token{kind: tokRParen})
		}
		if i < len(sorted)-1 {
			if c.Logical == rule.LogicalOr {
				tokens = append(tokens, token{kind: tokOr})
			} else {
				tokens = append(tokens, token{kind: tokAnd})
			}
		}
	}
	tokens = append(tokens, token{kind: tokEOF})

	expr, err := parseTokens(tokens)
	if err != nil {
		logrus.Warnf("condition expression malformed (%v); falling back to true", err)
		return true, traces
	}
	return expr.Eval(), traces
}

func sortConditions(conds []rule.Condition) []rule.Condition {
	r := rule.Rule{Conditions: conds}
	return r.SortedConditions()
}

// evalOne evaluates a single condition in isolation.
func evalOne(c rule.Condition, actual any, data []any, ctx *event.Context) bool {
	switch c.Operator {
	case rule.OpChanged:
		snap, field, ok := snapshotFor(c.FieldPath, data)
		return ok && snap.FieldChanged(field)
	case rule.OpWasPreviously:
		snap, field, ok := snapshotFor(c.FieldPath, data)
		if !ok {
			return false
		}
		prev, _ := snap.PreviousField(field)
		return looseEqual(prev, c.Value)
	}

	expected := resolveComparison(c, data, ctx)

	switch c.Operator {
	case rule.OpEquals:
		return looseEqual(actual, expected)
	case rule.OpNotEquals:
		return !looseEqual(actual, expected)
	case rule.OpGreaterThan, rule.OpLessThan, rule.OpGreaterEqual, rule.OpLessEqual:
		return numericCompare(c.Operator, actual, expected)
	case rule.OpContains, rule.OpStartsWith, rule.OpEndsWith:
		return stringCompare(c.Operator, actual, expected)
	case rule.OpIn, rule.OpNotIn:
		return membership(c.Operator, actual, expected)
	}
	logrus.Warnf("unknown condition operator %q; evaluating to false", c.Operator)
	return false
}

// resolveField resolves a field path against each data item in order, then
// against the event context.
func resolveField(path string, data []any, ctx *event.Context) (any, bool) {
	if v, ok := fieldpath.ResolveFirst(path, data); ok {
		return v, true
	}
	return ctx.Resolve(strings.Split(path, "."))
}

// resolveComparison produces the right-hand operand according to the
// condition's value kind.
func resolveComparison(c rule.Condition, data []any, ctx *event.Context) any {
	switch c.ValueKind {
	case rule.ValueDynamic:
		path, ok := c.Value.(string)
		if !ok {
			return nil
		}
		v, _ := resolveField(path, data, ctx)
		return v
	case rule.ValuePeerField:
		path, ok := c.Value.(string)
		if !ok {
			return nil
		}
		// Resolve against the entity that answered the condition's own
		// field path, so both sides read the same record.
		if peer, found := peerSource(c.FieldPath, data); found {
			v, _ := fieldpath.Resolve(path, peer)
			return v
		}
		return nil
	default:
		return c.Value
	}
}

// peerSource returns the first data item that resolves the given path.
func peerSource(path string, data []any) (any, bool) {
	for _, src := range data {
		if _, ok := fieldpath.Resolve(path, src); ok {
			return src, true
		}
	}
	return nil, false
}

// snapshotFor finds the first data item exposing a pre-change snapshot.
// The condition's field path addresses the snapshotted entity directly, so
// the full path is the field name.
func snapshotFor(path string, data []any) (Snapshotted, string, bool) {
	for _, src := range data {
		if snap, ok := src.(Snapshotted); ok {
			return snap, path, true
		}
	}
	return nil, "", false
}
