package rule

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InterchangeVersion is the rule interchange format version this package
// reads and writes. Import accepts any 2.x document.
const InterchangeVersion = "2.0.0"

// Interchange trigger type names differ from the core enum: the format keeps
// the vocabulary used by existing export tooling.
var interchangeTriggers = map[string]TriggerType{
	"eloquent": TriggerEntityLifecycle,
	"sql":      TriggerRawDataChange,
	"schedule": TriggerScheduled,
	"custom":   TriggerCustomSignal,
}

func interchangeTriggerName(t TriggerType) string {
	for name, tt := range interchangeTriggers {
		if tt == t {
			return name
		}
	}
	return string(t)
}

// Document is the top-level interchange payload.
type Document struct {
	Version string       `json:"version"`
	Rules   []RuleExport `json:"rules"`
}

// RuleExport is one rule in interchange form.
type RuleExport struct {
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	TriggerType   string            `json:"trigger_type"`
	TriggerConfig map[string]any    `json:"trigger_config,omitempty"`
	IsActive      bool              `json:"is_active"`
	Priority      int               `json:"priority,omitempty"`
	Conditions    []ConditionExport `json:"conditions,omitempty"`
	Actions       []ActionExport    `json:"actions,omitempty"`
}

// ConditionExport carries the comparison value as raw JSON; Import decodes it
// into a typed value (string, number, bool, array).
type ConditionExport struct {
	FieldPath  string          `json:"field_path"`
	Operator   string          `json:"operator"`
	Value      json.RawMessage `json:"value,omitempty"`
	ValueKind  string          `json:"value_kind,omitempty"`
	Logical    string          `json:"logical_operator,omitempty"`
	GroupOpen  int             `json:"group_open,omitempty"`
	GroupClose int             `json:"group_close,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	SortOrder  int             `json:"sort_order,omitempty"`
}

type ActionExport struct {
	ActionType   string         `json:"action_type"`
	ActionConfig map[string]any `json:"action_config,omitempty"`
	IsActive     bool           `json:"is_active"`
	Critical     bool           `json:"critical,omitempty"`
	Priority     int            `json:"priority,omitempty"`
	SortOrder    int            `json:"sort_order,omitempty"`
}

// Export serializes rules into an interchange document.
func Export(rules []*Rule) *Document {
	doc := &Document{Version: InterchangeVersion}
	for _, r := range rules {
		re := RuleExport{
			Name:          r.Name,
			Description:   r.Description,
			TriggerType:   interchangeTriggerName(r.TriggerType),
			TriggerConfig: r.TriggerConfig,
			IsActive:      r.Active,
			Priority:      r.Priority,
		}
		for _, c := range r.Conditions {
			re.Conditions = append(re.Conditions, ConditionExport{
				FieldPath:  c.FieldPath,
				Operator:   string(c.Operator),
				Value:      encodeValue(c.Value),
				ValueKind:  string(c.ValueKind),
				Logical:    string(c.Logical),
				GroupOpen:  c.GroupOpen,
				GroupClose: c.GroupClose,
				Priority:   c.Priority,
				SortOrder:  c.SortOrder,
			})
		}
		for _, a := range r.Actions {
			re.Actions = append(re.Actions, ActionExport{
				ActionType:   a.Type,
				ActionConfig: a.Config,
				IsActive:     a.Active,
				Critical:     a.Critical,
				Priority:     a.Priority,
				SortOrder:    a.SortOrder,
			})
		}
		doc.Rules = append(doc.Rules, re)
	}
	return doc
}

// Import decodes an interchange document into rules, validating each one.
// It returns all validation problems found across the document.
func Import(doc *Document) ([]*Rule, []string) {
	var errs []string

	if !strings.HasPrefix(doc.Version, "2.") {
		return nil, []string{fmt.Sprintf("unsupported interchange version %q", doc.Version)}
	}

	var rules []*Rule
	for i, re := range doc.Rules {
		tt, ok := interchangeTriggers[re.TriggerType]
		if !ok {
			// Accept core enum names too, for round-tripping our own exports.
			tt = TriggerType(re.TriggerType)
		}
		r := &Rule{
			Name:          re.Name,
			Description:   re.Description,
			TriggerType:   tt,
			TriggerConfig: re.TriggerConfig,
			Active:        re.IsActive,
			Priority:      re.Priority,
		}
		for _, ce := range re.Conditions {
			r.Conditions = append(r.Conditions, Condition{
				FieldPath:  ce.FieldPath,
				Operator:   Operator(ce.Operator),
				Value:      DecodeValue(ce.Value),
				ValueKind:  ValueKind(ce.ValueKind),
				Logical:    Logical(ce.Logical),
				GroupOpen:  ce.GroupOpen,
				GroupClose: ce.GroupClose,
				Priority:   ce.Priority,
				SortOrder:  ce.SortOrder,
			})
		}
		for _, ae := range re.Actions {
			r.Actions = append(r.Actions, Action{
				Type:      ae.ActionType,
				Config:    ae.ActionConfig,
				Active:    ae.IsActive,
				Critical:  ae.Critical,
				Priority:  ae.Priority,
				SortOrder: ae.SortOrder,
			})
		}
		if problems := Validate(r); len(problems) > 0 {
			for _, p := range problems {
				errs = append(errs, fmt.Sprintf("rules[%d]: %s", i, p))
			}
			continue
		}
		rules = append(rules, r)
	}
	return rules, errs
}

// DecodeValue turns a raw comparison value into a typed Go value. JSON input
// decodes to string/float64/bool/[]any; anything that is not valid JSON is
// kept as the raw string, matching how authoring surfaces send bare text.
// Authoring surfaces commonly wrap the value in a JSON string ("\"vip\"",
// "500", "[\"a\",\"b\"]"), so a decoded string that itself parses as JSON is
// unwrapped one more level.
func DecodeValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	if s, ok := v.(string); ok && json.Valid([]byte(s)) {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
	}
	return v
}

// encodeValue is the inverse of DecodeValue. A string that itself parses as
// JSON gets an extra encoding level so DecodeValue's unwrap restores the
// string rather than its parsed form.
func encodeValue(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && json.Valid([]byte(s)) {
		quoted, err := json.Marshal(s)
		if err != nil {
			return nil
		}
		v = string(quoted)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
