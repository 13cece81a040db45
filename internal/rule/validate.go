package rule

import "fmt"

// requiresValue is false for the snapshot operators: changed never compares
// against a value, and was_previously tolerates a missing one at authoring
// time (the prior value is then compared loosely against nil).
func requiresValue(op Operator) bool {
	return op != OpChanged && op != OpWasPreviously
}

func knownTriggerType(t TriggerType) bool {
	for _, tt := range TriggerTypes {
		if t == tt {
			return true
		}
	}
	return false
}

func knownOperator(op Operator) bool {
	for _, o := range Operators {
		if op == o {
			return true
		}
	}
	return false
}

// Validate checks a rule for configuration errors. It returns every problem
// found rather than stopping at the first, so authoring surfaces can report
// them all at once.
func Validate(r *Rule) []string {
	var errs []string

	if r.Name == "" {
		errs = append(errs, "rule: name is required")
	}
	if !knownTriggerType(r.TriggerType) {
		errs = append(errs, fmt.Sprintf("rule %s: unknown trigger type %q", r.Name, r.TriggerType))
	}

	open, closed := 0, 0
	for i, c := range r.Conditions {
		loc := fmt.Sprintf("rule %s: conditions[%d]", r.Name, i)
		if c.FieldPath == "" {
			errs = append(errs, loc+": field_path is required")
		}
		if !knownOperator(c.Operator) {
			errs = append(errs, fmt.Sprintf("%s: unknown operator %q", loc, c.Operator))
		}
		if requiresValue(c.Operator) && c.Value == nil && (c.ValueKind == "" || c.ValueKind == ValueStatic) {
			errs = append(errs, fmt.Sprintf("%s: operator %q requires a comparison value", loc, c.Operator))
		}
		if c.Logical != "" && c.Logical != LogicalAnd && c.Logical != LogicalOr {
			errs = append(errs, fmt.Sprintf("%s: logical_operator must be AND or OR, got %q", loc, c.Logical))
		}
		if c.GroupOpen < 0 || c.GroupClose < 0 {
			errs = append(errs, loc+": group markers must be non-negative")
		}
		open += c.GroupOpen
		closed += c.GroupClose
	}
	if open != closed {
		errs = append(errs, fmt.Sprintf("rule %s: unbalanced condition groups (%d opened, %d closed)", r.Name, open, closed))
	}

	for i, a := range r.Actions {
		if a.Type == "" {
			errs = append(errs, fmt.Sprintf("rule %s: actions[%d]: action_type is required", r.Name, i))
		}
	}

	return errs
}
