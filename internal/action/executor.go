// Package action contains the executors that rules trigger once their
// conditions hold. Each executor owns one action type, validates its own
// configuration, and reports a structured Result back to the engine.
package action

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// Result is the outcome of a single action execution. Details carries
// executor-specific fields such as the HTTP status of a webhook call or the
// recipient of an email.
type Result struct {
	ActionID string         `json:"action_id"`
	Type     string         `json:"type"`
	Success  bool           `json:"success"`
	Partial  bool           `json:"partial,omitempty"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Executor runs actions of a single type. Execute receives the matched data
// entities and the event context so templates inside the action config can be
// rendered against them. A non-nil error means the action failed; the engine
// records it but never lets it abort event processing unless the action is
// marked critical.
type Executor interface {
	Type() string
	Execute(ctx context.Context, act rule.Action, data []any, evctx *event.Context) (*Result, error)
	ValidateConfig(cfg map[string]any) []string
}

func newResult(act rule.Action, typ string) *Result {
	return &Result{
		ActionID: act.ID,
		Type:     typ,
		Details:  map[string]any{},
	}
}

func fail(res *Result, format string, args ...any) (*Result, error) {
	err := fmt.Errorf(format, args...)
	res.Success = false
	res.Message = err.Error()
	return res, err
}

// Config accessors. Action configs arrive as map[string]any decoded from JSON
// or YAML, so numbers may be float64, int, or strings depending on the source.

func cfgString(cfg map[string]any, key string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func cfgStringSlice(cfg map[string]any, key string) []string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

func cfgInt(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

func cfgDuration(cfg map[string]any, key string, def time.Duration) time.Duration {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func cfgMap(cfg map[string]any, key string) map[string]any {
	if v, ok := cfg[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
