package template

import (
	"strings"
	"testing"
	"time"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
)

func testRenderer() *Renderer {
	r := NewRenderer("events-manager")
	r.now = func() time.Time {
		return time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	}
	return r
}

func TestRenderPassthrough(t *testing.T) {
	r := testRenderer()
	for _, tmpl := range []string{"", "no placeholders here", "just } a stray brace"} {
		if got := r.Render(tmpl, nil, event.New("x")); got != tmpl {
			t.Fatalf("Render(%q) = %q, want unchanged", tmpl, got)
		}
	}
}

func TestRenderPlaceholders(t *testing.T) {
	r := testRenderer()
	ctx := event.New("order.created")
	ctx.User = &event.User{ID: "u1", Name: "Sam", Email: "sam@example.com"}
	ctx.IP = "10.0.0.1"

	data := []any{map[string]any{
		"name":  "Sam",
		"total": 42.5,
		"meta":  map[string]any{"vip": true},
	}}

	cases := []struct {
		name string
		tmpl string
		want string
	}{
		{"double brace data", "hi {{name}}", "hi Sam"},
		{"single brace legacy", "hi {name}", "hi Sam"},
		{"mixed syntaxes", "{{name}} / {name}", "Sam / Sam"},
		{"context user", "from {{user.email}}", "from sam@example.com"},
		{"context ip", "ip={{ip}}", "ip=10.0.0.1"},
		{"event name", "on {{event.name}}", "on order.created"},
		{"builtin today", "date: {{today}}", "date: 2025-06-01"},
		{"builtin now", "{{now}}", "2025-06-01 10:30:00"},
		{"builtin app name", "[{{app.name}}]", "[events-manager]"},
		{"number", "total {{total}}", "total 42.5"},
		{"bool and map as json", "{{meta}}", `{"vip":true}`},
		{"model alias for first entity", "hi {model.name}", "hi Sam"},
		{"unresolved renders empty", "x{{nope}}y", "xy"},
		{"whitespace tolerated", "hi {{ name }}", "hi Sam"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Render(tc.tmpl, data, ctx); got != tc.want {
				t.Fatalf("Render(%q) = %q, want %q", tc.tmpl, got, tc.want)
			}
		})
	}
}

func TestRenderResolutionOrder(t *testing.T) {
	r := testRenderer()
	// The context wins over data for the same name.
	ctx := event.New("x")
	ctx.Data["name"] = "from-context"
	data := []any{map[string]any{"name": "from-data"}}

	if got := r.Render("{{name}}", data, ctx); got != "from-context" {
		t.Fatalf("context should win, got %q", got)
	}

	// First array-like element is the last resort.
	nested := []any{[]any{map[string]any{"inner": "deep"}}}
	if got := r.Render("{{inner}}", nested, event.New("x")); got != "deep" {
		t.Fatalf("array-element fallback failed, got %q", got)
	}
}

func TestRenderEscapesScalars(t *testing.T) {
	r := testRenderer()
	data := []any{map[string]any{"bio": `<script>alert("x")</script>`}}
	got := r.Render("{{bio}}", data, event.New("x"))
	if strings.Contains(got, "<script>") {
		t.Fatalf("scalar not escaped: %q", got)
	}
}

func TestRenderMasksSensitiveNames(t *testing.T) {
	r := testRenderer()
	data := []any{map[string]any{
		"password":  "hunter2",
		"api_token": "tok-123",
		"city":      "Lisboa",
	}}
	ctx := event.New("x")

	if got := r.Render("{{password}}", data, ctx); got != Mask {
		t.Fatalf("password not masked: %q", got)
	}
	if got := r.Render("{api_token}", data, ctx); got != Mask {
		t.Fatalf("token not masked: %q", got)
	}
	if got := r.Render("{{city}}", data, ctx); got != "Lisboa" {
		t.Fatalf("non-sensitive value masked: %q", got)
	}
}

func TestRenderedJSONIsNotRescanned(t *testing.T) {
	r := testRenderer()
	// The compact JSON contains braces; the single-brace pass must not try to
	// resolve placeholders inside it.
	data := []any{map[string]any{"meta": map[string]any{"a": "b"}}}
	got := r.Render("{{meta}}", data, event.New("x"))
	if got != `{"a":"b"}` {
		t.Fatalf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	if problems := Validate("hi {{name}} and {other}"); len(problems) != 0 {
		t.Fatalf("valid template flagged: %v", problems)
	}
	if problems := Validate("{{a}"); len(problems) == 0 {
		t.Fatal("unbalanced double braces not flagged")
	}
	if problems := Validate("{{a {{b}} }}"); len(problems) == 0 {
		t.Fatal("nested placeholders not flagged")
	}
}

func TestPreview(t *testing.T) {
	r := testRenderer()
	sample := map[string]any{"name": "Sam", "secret": "s3cr3t"}

	got := r.Preview("hi {{name}}, {{secret}}, {{missing}}", sample)
	want := "hi [Sam], [" + Mask + "], [missing: unresolved]"
	if got != want {
		t.Fatalf("Preview = %q, want %q", got, want)
	}
}
