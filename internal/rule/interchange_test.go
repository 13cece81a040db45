package rule

import (
	"encoding/json"
	"testing"
)

const sampleDocument = `{
  "version": "2.0.0",
  "rules": [{
    "name": "vip order alert",
    "description": "notify when a vip places a large order",
    "trigger_type": "eloquent",
    "trigger_config": {"model": "order", "events": ["created"]},
    "is_active": true,
    "conditions": [
      {"field_path": "customer.tier", "operator": "equals", "value": "\"vip\"", "logical_operator": "AND", "sort_order": 1},
      {"field_path": "total", "operator": "gt", "value": "500", "sort_order": 2}
    ],
    "actions": [
      {"action_type": "email", "action_config": {"to": "{{customer.email}}", "subject": "hi"}, "is_active": true, "sort_order": 1}
    ]
  }]
}`

func TestImport(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(sampleDocument), &doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}

	rules, errs := Import(&doc)
	if len(errs) != 0 {
		t.Fatalf("import errors: %v", errs)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}

	r := rules[0]
	if r.TriggerType != TriggerEntityLifecycle {
		t.Fatalf("trigger type %q, want entity_lifecycle", r.TriggerType)
	}
	if got := r.Conditions[0].Value; got != "vip" {
		t.Fatalf("condition 0 value = %v (%T), want string vip", got, got)
	}
	if got := r.Conditions[1].Value; got != float64(500) {
		t.Fatalf("condition 1 value = %v (%T), want 500", got, got)
	}
	if !r.MatchesEvent("order.created") {
		t.Fatal("imported rule should match order.created")
	}
}

func TestImportRejectsBadVersion(t *testing.T) {
	_, errs := Import(&Document{Version: "1.0.0"})
	if len(errs) != 1 {
		t.Fatalf("expected one version error, got %v", errs)
	}
}

func TestImportCollectsValidationErrors(t *testing.T) {
	doc := &Document{
		Version: "2.1.0",
		Rules: []RuleExport{
			{Name: "", TriggerType: "eloquent"},
			{Name: "ok", TriggerType: "custom", IsActive: true},
		},
	}
	rules, errs := Import(doc)
	if len(rules) != 1 || rules[0].Name != "ok" {
		t.Fatalf("valid rule should survive, got %v", rules)
	}
	if len(errs) == 0 {
		t.Fatal("expected validation errors for the nameless rule")
	}
}

func TestExportRoundTrip(t *testing.T) {
	orig := &Rule{
		Name:          "r1",
		TriggerType:   TriggerRawDataChange,
		TriggerConfig: map[string]any{"table": "orders", "operations": []any{"insert"}},
		Active:        true,
		Priority:      3,
		Conditions: []Condition{
			{FieldPath: "status", Operator: OpIn, Value: []any{"new", "paid"}, Logical: LogicalOr},
		},
		Actions: []Action{
			{Type: "webhook", Config: map[string]any{"url": "https://example.com"}, Active: true, Critical: true},
		},
	}

	doc := Export([]*Rule{orig})
	if doc.Version != InterchangeVersion {
		t.Fatalf("version = %q", doc.Version)
	}
	if doc.Rules[0].TriggerType != "sql" {
		t.Fatalf("exported trigger type = %q, want sql", doc.Rules[0].TriggerType)
	}

	back, errs := Import(doc)
	if len(errs) != 0 {
		t.Fatalf("re-import errors: %v", errs)
	}
	got := back[0]
	if got.Name != orig.Name || got.TriggerType != orig.TriggerType || got.Priority != orig.Priority {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Actions[0].Critical != true {
		t.Fatal("critical flag lost in round trip")
	}
}

func TestDecodeValue(t *testing.T) {
	if v := DecodeValue(nil); v != nil {
		t.Fatalf("nil raw should decode to nil, got %v", v)
	}
	if v := DecodeValue(json.RawMessage(`"text"`)); v != "text" {
		t.Fatalf("quoted string = %v", v)
	}
	if v := DecodeValue(json.RawMessage(`42`)); v != float64(42) {
		t.Fatalf("number = %v", v)
	}
	// Bare text that is not valid JSON stays a string.
	if v := DecodeValue(json.RawMessage(`plain text`)); v != "plain text" {
		t.Fatalf("bare text = %v", v)
	}
	// JSON strings carrying JSON unwrap to the typed value.
	if v := DecodeValue(json.RawMessage(`"\"vip\""`)); v != "vip" {
		t.Fatalf("wrapped string = %v (%T), want vip", v, v)
	}
	if v := DecodeValue(json.RawMessage(`"500"`)); v != float64(500) {
		t.Fatalf("wrapped number = %v (%T), want 500", v, v)
	}
	list, ok := DecodeValue(json.RawMessage(`"[\"a\",\"b\"]"`)).([]any)
	if !ok || len(list) != 2 || list[0] != "a" || list[1] != "b" {
		t.Fatalf("wrapped array = %v, want [a b]", list)
	}
}

func TestEncodeValueRoundTrip(t *testing.T) {
	// Strings whose text parses as JSON must survive a round trip as
	// strings rather than re-decoding into their parsed form.
	for _, v := range []any{"500", "true", `{"a":1}`, "vip", float64(7), true, []any{"x", "y"}} {
		got := DecodeValue(encodeValue(v))
		switch want := v.(type) {
		case []any:
			gotList, ok := got.([]any)
			if !ok || len(gotList) != len(want) || gotList[0] != want[0] {
				t.Fatalf("round trip of %v = %v", v, got)
			}
		default:
			if got != v {
				t.Fatalf("round trip of %v (%T) = %v (%T)", v, v, got, got)
			}
		}
	}
}
