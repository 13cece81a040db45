// Package template substitutes {placeholder} and {{placeholder}} tokens in
// rule-authored strings using the event context and resolved entity data.
package template

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/fieldpath"
)

// Mask replaces values whose placeholder name looks sensitive.
const Mask = "********"

var sensitiveNames = []string{"password", "token", "secret", "key"}

var (
	doubleBraceRe = regexp.MustCompile(`\{\{\s*([^{}\s][^{}]*?)\s*\}\}`)
	singleBraceRe = regexp.MustCompile(`\{\s*([^{}\s][^{}]*?)\s*\}`)
)

// Renderer resolves placeholders against an event context, entity data and a
// small table of built-ins.
type Renderer struct {
	appName string
	now     func() time.Time
}

func NewRenderer(appName string) *Renderer {
	return &Renderer{appName: appName, now: time.Now}
}

// Render substitutes all placeholders in tmpl. Double-brace tokens are
// processed first, then residual single-brace tokens, so `{{name}}` never
// half-matches as `{name}`. Unresolved placeholders render as empty strings.
func (r *Renderer) Render(tmpl string, data []any, ctx *event.Context) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return r.render(tmpl, data, ctx, r.formatResolved)
}

// render substitutes placeholders using format to turn a resolved value into
// text. Substituted values are held out of the text until both passes ran, so
// braces inside rendered values (compact JSON) are never re-scanned.
func (r *Renderer) render(tmpl string, data []any, ctx *event.Context, format func(name string, v any, ok bool) string) string {
	var values []string
	sub := func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllStringFunc(s, func(match string) string {
			name := strings.TrimSpace(re.FindStringSubmatch(match)[1])
			v, ok := r.resolve(name, data, ctx)
			values = append(values, format(name, v, ok))
			return fmt.Sprintf("\x00%d\x00", len(values)-1)
		})
	}

	out := sub(doubleBraceRe, tmpl)
	out = sub(singleBraceRe, out)

	for i, v := range values {
		out = strings.Replace(out, fmt.Sprintf("\x00%d\x00", i), v, 1)
	}
	return out
}

func (r *Renderer) formatResolved(name string, v any, ok bool) string {
	if !ok {
		return ""
	}
	if sensitive(name) {
		return Mask
	}
	return formatValue(v)
}

// resolve looks a placeholder name up in priority order: the event context,
// each data item, the built-in table, and finally the first element of any
// array-shaped data item.
func (r *Renderer) resolve(name string, data []any, ctx *event.Context) (any, bool) {
	if v, ok := ctx.Resolve(strings.Split(name, ".")); ok {
		return v, true
	}
	if v, ok := fieldpath.ResolveFirst(name, data); ok {
		return v, true
	}
	// "model.x" aliases the triggering entity, the first data item.
	if rest, ok := strings.CutPrefix(name, "model."); ok && len(data) > 0 {
		if v, ok := fieldpath.Resolve(rest, data[0]); ok {
			return v, true
		}
	}
	if v, ok := r.builtin(name); ok {
		return v, true
	}
	for _, item := range data {
		if list, isList := item.([]any); isList && len(list) > 0 {
			if v, ok := fieldpath.Resolve(name, list[0]); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func (r *Renderer) builtin(name string) (any, bool) {
	switch name {
	case "now":
		return r.now().Format("2006-01-02 15:04:05"), true
	case "today":
		return r.now().Format("2006-01-02"), true
	case "timestamp":
		return r.now().Unix(), true
	case "app.name":
		return r.appName, true
	}
	// event.name, user.*, ip, url, method are served by the context lookup;
	// they remain in the built-in table only for contexts without the field,
	// where they render empty rather than leak the raw placeholder.
	switch name {
	case "event.name", "user.id", "user.name", "user.email", "ip", "url", "method":
		return "", true
	}
	return nil, false
}

func sensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// formatValue turns a resolved value into display text: booleans as
// true/false, composites as compact JSON, Stringers via String, scalars
// HTML-escaped.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return html.EscapeString(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case fmt.Stringer:
		return html.EscapeString(val.String())
	case []any, map[string]any, map[string]string:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return html.EscapeString(fmt.Sprintf("%v", v))
	}
	// Arbitrary objects: serialized form when available, JSON otherwise.
	b, err := json.Marshal(v)
	if err != nil {
		return html.EscapeString(fmt.Sprintf("%v", v))
	}
	return string(b)
}

// Validate reports authoring problems in a template: nested placeholders and
// unbalanced double braces.
func Validate(tmpl string) []string {
	var problems []string

	if opens, closes := strings.Count(tmpl, "{{"), strings.Count(tmpl, "}}"); opens != closes {
		problems = append(problems, fmt.Sprintf("unbalanced double braces: %d {{ vs %d }}", opens, closes))
	}

	depth := 0
	for _, ch := range tmpl {
		switch ch {
		case '{':
			depth++
			if depth > 2 {
				problems = append(problems, "nested placeholders are not supported")
				return problems
			}
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return problems
}

// Preview renders tmpl against a single sample entity, wrapping every
// substituted value in brackets so authors can see what resolved where.
func (r *Renderer) Preview(tmpl string, sample map[string]any) string {
	ctx := event.New("preview")
	return r.render(tmpl, []any{sample}, ctx, func(name string, v any, ok bool) string {
		if !ok {
			return "[" + name + ": unresolved]"
		}
		if sensitive(name) {
			return "[" + Mask + "]"
		}
		return "[" + formatValue(v) + "]"
	})
}
