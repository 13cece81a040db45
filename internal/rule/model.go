// Package rule defines the records the engine evaluates: a rule is a named
// trigger plus an ordered condition set and an ordered action set. Rules are
// authored elsewhere and read-only to the engine.
package rule

import (
	"sort"
	"time"
)

// TriggerType enumerates how a rule is matched to incoming events.
type TriggerType string

const (
	// TriggerEntityLifecycle fires on entity create/update/delete events.
	TriggerEntityLifecycle TriggerType = "entity_lifecycle"
	// TriggerRawDataChange fires on row-level data changes (table + operation).
	TriggerRawDataChange TriggerType = "raw_data_change"
	// TriggerScheduled fires when a named schedule ticks.
	TriggerScheduled TriggerType = "scheduled"
	// TriggerCustomSignal fires on an application-registered signal.
	TriggerCustomSignal TriggerType = "custom_signal"
)

// TriggerTypes lists all known trigger types, used by validation.
var TriggerTypes = []TriggerType{
	TriggerEntityLifecycle,
	TriggerRawDataChange,
	TriggerScheduled,
	TriggerCustomSignal,
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals        Operator = "equals"
	OpNotEquals     Operator = "not_equals"
	OpGreaterThan   Operator = "gt"
	OpLessThan      Operator = "lt"
	OpGreaterEqual  Operator = "gte"
	OpLessEqual     Operator = "lte"
	OpContains      Operator = "contains"
	OpStartsWith    Operator = "starts_with"
	OpEndsWith      Operator = "ends_with"
	OpIn            Operator = "in"
	OpNotIn         Operator = "not_in"
	OpChanged       Operator = "changed"
	OpWasPreviously Operator = "was_previously"
)

// Operators lists all known operators, used by validation.
var Operators = []Operator{
	OpEquals, OpNotEquals,
	OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual,
	OpContains, OpStartsWith, OpEndsWith,
	OpIn, OpNotIn,
	OpChanged, OpWasPreviously,
}

// ValueKind says how a condition's comparison value is produced.
type ValueKind string

const (
	// ValueStatic compares against a decoded literal.
	ValueStatic ValueKind = "static"
	// ValueDynamic resolves the comparison value as a field path against the
	// event data at evaluation time.
	ValueDynamic ValueKind = "dynamic"
	// ValuePeerField resolves the comparison value as a field path on the
	// same entity the condition's field path addresses.
	ValuePeerField ValueKind = "peer_field"
)

// Logical connects a condition to the one that follows it.
type Logical string

const (
	LogicalAnd Logical = "AND"
	LogicalOr  Logical = "OR"
)

// Condition is one boolean test against resolved event data.
type Condition struct {
	ID        string    `json:"id" yaml:"id"`
	FieldPath string    `json:"field_path" yaml:"field_path"`
	Operator  Operator  `json:"operator" yaml:"operator"`
	Value     any       `json:"value,omitempty" yaml:"value,omitempty"`
	ValueKind ValueKind `json:"value_kind,omitempty" yaml:"value_kind,omitempty"`
	// Logical joins this condition to the NEXT one; ignored on the last.
	Logical Logical `json:"logical_operator,omitempty" yaml:"logical_operator,omitempty"`
	// GroupOpen/GroupClose count parentheses opened before / closed after
	// this condition. Counts (not flags) so groups can nest.
	GroupOpen  int `json:"group_open,omitempty" yaml:"group_open,omitempty"`
	GroupClose int `json:"group_close,omitempty" yaml:"group_close,omitempty"`
	Priority   int `json:"priority,omitempty" yaml:"priority,omitempty"`
	SortOrder  int `json:"sort_order,omitempty" yaml:"sort_order,omitempty"`
}

// Action is one side-effecting operation executed when a rule fires.
type Action struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"action_type" yaml:"action_type"`
	Config map[string]any `json:"action_config,omitempty" yaml:"action_config,omitempty"`
	Active bool           `json:"is_active" yaml:"is_active"`
	// Critical actions abort the remaining batch when the engine is
	// configured to stop on critical failure.
	Critical  bool `json:"critical,omitempty" yaml:"critical,omitempty"`
	Priority  int  `json:"priority,omitempty" yaml:"priority,omitempty"`
	SortOrder int  `json:"sort_order,omitempty" yaml:"sort_order,omitempty"`
}

// Rule ties a trigger to a condition set and an action set.
type Rule struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	TriggerType   TriggerType    `json:"trigger_type" yaml:"trigger_type"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty" yaml:"trigger_config,omitempty"`
	Active        bool           `json:"is_active" yaml:"is_active"`
	// Priority orders rule evaluation; higher fires first.
	Priority   int         `json:"priority,omitempty" yaml:"priority,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions    []Action    `json:"actions,omitempty" yaml:"actions,omitempty"`
	CreatedAt  time.Time   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// SortedConditions returns the conditions in evaluation order: priority desc,
// then sort order asc as the tie-break. A single stable sort keeps the
// priority ordering intact.
func (r *Rule) SortedConditions() []Condition {
	out := make([]Condition, len(r.Conditions))
	copy(out, r.Conditions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

// ActionBatches groups active actions into execution batches by priority
// (higher batch first), each batch ordered by sort order. Critical-failure
// handling operates at batch boundaries.
func (r *Rule) ActionBatches() [][]Action {
	byPriority := make(map[int][]Action)
	var priorities []int
	for _, a := range r.Actions {
		if !a.Active {
			continue
		}
		if _, seen := byPriority[a.Priority]; !seen {
			priorities = append(priorities, a.Priority)
		}
		byPriority[a.Priority] = append(byPriority[a.Priority], a)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))

	batches := make([][]Action, 0, len(priorities))
	for _, p := range priorities {
		batch := byPriority[p]
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].SortOrder < batch[j].SortOrder
		})
		batches = append(batches, batch)
	}
	return batches
}

// SortByPriority orders rules for evaluation, highest priority first.
func SortByPriority(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
