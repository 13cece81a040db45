package action

import (
	"context"
	"time"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
	"github.com/st693ava/filament-events-manager-sub000/internal/template"
)

const TypeActivityLog = "activity_log"

// LogEntry is one activity record written about a data entity.
type LogEntry struct {
	LogName     string
	Description string
	Properties  map[string]any
	Subject     any
	CausedBy    *event.User
	EventName   string
	At          time.Time
}

// ActivityLogger persists activity records.
type ActivityLogger interface {
	Log(ctx context.Context, entry LogEntry) error
}

// ActivityLog records an activity entry about the first data entity of the
// event. The description and string-valued properties are templates rendered
// against the event payload.
type ActivityLog struct {
	logger   ActivityLogger
	renderer *template.Renderer
}

func NewActivityLog(logger ActivityLogger, renderer *template.Renderer) *ActivityLog {
	return &ActivityLog{logger: logger, renderer: renderer}
}

func (a *ActivityLog) Type() string { return TypeActivityLog }

func (a *ActivityLog) ValidateConfig(cfg map[string]any) []string {
	var problems []string
	if cfgString(cfg, "description") == "" {
		problems = append(problems, "activity_log action requires a \"description\" template")
	}
	return problems
}

func (a *ActivityLog) Execute(ctx context.Context, act rule.Action, data []any, evctx *event.Context) (*Result, error) {
	res := newResult(act, TypeActivityLog)

	if len(data) == 0 {
		return fail(res, "activity_log action %s: event carries no data entity to log against", act.ID)
	}

	entry := LogEntry{
		LogName:     cfgString(act.Config, "log_name"),
		Description: a.renderer.Render(cfgString(act.Config, "description"), data, evctx),
		Subject:     data[0],
		At:          time.Now().UTC(),
	}
	if entry.LogName == "" {
		entry.LogName = "default"
	}
	if evctx != nil {
		entry.CausedBy = evctx.User
		entry.EventName = evctx.EventName
	}
	if props := cfgMap(act.Config, "properties"); len(props) > 0 {
		entry.Properties = make(map[string]any, len(props))
		for k, v := range props {
			if s, ok := v.(string); ok {
				entry.Properties[k] = a.renderer.Render(s, data, evctx)
			} else {
				entry.Properties[k] = v
			}
		}
	}

	if err := a.logger.Log(ctx, entry); err != nil {
		return fail(res, "activity_log action %s: %w", act.ID, err)
	}

	res.Success = true
	res.Details["log_name"] = entry.LogName
	res.Details["description"] = entry.Description
	return res, nil
}
