package event

import (
	"context"
	"time"
)

// User identifies the actor behind an event. All fields may be empty when the
// event was produced outside of an authenticated request (cron, queue worker).
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Context is the read-only metadata bag accompanying one event occurrence.
// It is created once per event and shared across every rule the event triggers,
// so nothing in the pipeline may mutate it after construction.
type Context struct {
	EventName   string         `json:"event_name"`
	TriggeredAt time.Time      `json:"triggered_at"`
	User        *User          `json:"user,omitempty"`
	IP          string         `json:"ip,omitempty"`
	URL         string         `json:"url,omitempty"`
	Method      string         `json:"method,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// New builds a minimal Context for an event with no ambient request state.
func New(eventName string) *Context {
	return &Context{
		EventName:   eventName,
		TriggeredAt: time.Now(),
		Data:        make(map[string]any),
	}
}

// Resolve looks up a dotted path against the context itself.
// Well-known segments (user.*, event.name, ip, url, method, session_id) are
// answered directly; everything else falls through to the free-form Data map.
func (c *Context) Resolve(path []string) (any, bool) {
	if c == nil || len(path) == 0 {
		return nil, false
	}
	switch path[0] {
	case "event":
		if len(path) == 2 && path[1] == "name" {
			return c.EventName, true
		}
	case "user":
		if c.User == nil {
			return nil, false
		}
		if len(path) == 1 {
			return c.User, true
		}
		switch path[1] {
		case "id":
			return c.User.ID, true
		case "name":
			return c.User.Name, true
		case "email":
			return c.User.Email, true
		}
	case "ip":
		if len(path) == 1 {
			return c.IP, true
		}
	case "url":
		if len(path) == 1 {
			return c.URL, true
		}
	case "method":
		if len(path) == 1 {
			return c.Method, true
		}
	case "session_id":
		if len(path) == 1 {
			return c.SessionID, true
		}
	case "timestamp":
		if len(path) == 1 {
			return c.TriggeredAt, true
		}
	}
	return resolveMap(c.Data, path)
}

func resolveMap(m map[string]any, path []string) (any, bool) {
	if m == nil || len(path) == 0 {
		return nil, false
	}
	val, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return val, true
	}
	sub, ok := val.(map[string]any)
	if !ok {
		return nil, false
	}
	return resolveMap(sub, path[1:])
}

// Collector derives a Context from ambient application state (request, auth
// session) when the caller did not supply one. Implementations live at the
// application boundary; the engine only consumes the interface.
type Collector interface {
	Collect(ctx context.Context, eventName string, data []any) *Context
}

// CollectorFunc adapts a plain function to the Collector interface.
type CollectorFunc func(ctx context.Context, eventName string, data []any) *Context

func (f CollectorFunc) Collect(ctx context.Context, eventName string, data []any) *Context {
	return f(ctx, eventName, data)
}
