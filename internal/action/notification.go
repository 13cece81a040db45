package action

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/fieldpath"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
	"github.com/st693ava/filament-events-manager-sub000/internal/template"
)

const TypeNotification = "notification"

// Recipient identifies one notification target. Either UserID or Email is
// set depending on the configured strategy.
type Recipient struct {
	UserID string
	Email  string
}

// Payload is a rendered notification.
type Payload struct {
	Title     string
	Message   string
	ActionURL string
	Icon      string
	Channel   string
}

// Dispatcher delivers a notification to one recipient over one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, rcpt Recipient, p Payload) error
}

// Notification resolves recipients from the configured strategy and sends a
// rendered payload to each over every configured channel. Per-recipient
// failures are logged and counted; the action succeeds partially when at
// least one delivery went through.
type Notification struct {
	dispatcher Dispatcher
	renderer   *template.Renderer
}

func NewNotification(dispatcher Dispatcher, renderer *template.Renderer) *Notification {
	return &Notification{dispatcher: dispatcher, renderer: renderer}
}

func (n *Notification) Type() string { return TypeNotification }

func (n *Notification) ValidateConfig(cfg map[string]any) []string {
	var problems []string
	if cfgString(cfg, "title") == "" {
		problems = append(problems, "notification action requires a \"title\" template")
	}
	rcpt := cfgMap(cfg, "recipients")
	if rcpt == nil {
		problems = append(problems, "notification action requires a \"recipients\" block")
		return problems
	}
	switch strategy := cfgString(rcpt, "strategy"); strategy {
	case "users":
		if len(cfgStringSlice(rcpt, "user_ids")) == 0 {
			problems = append(problems, "recipients strategy \"users\" requires \"user_ids\"")
		}
	case "emails":
		if len(cfgStringSlice(rcpt, "emails")) == 0 {
			problems = append(problems, "recipients strategy \"emails\" requires \"emails\"")
		}
	case "field":
		if cfgString(rcpt, "field_path") == "" {
			problems = append(problems, "recipients strategy \"field\" requires \"field_path\"")
		}
	case "acting_user":
	default:
		problems = append(problems, fmt.Sprintf("unknown recipients strategy %q", strategy))
	}
	return problems
}

func (n *Notification) Execute(ctx context.Context, act rule.Action, data []any, evctx *event.Context) (*Result, error) {
	res := newResult(act, TypeNotification)

	recipients, err := n.resolveRecipients(act.Config, data, evctx)
	if err != nil {
		return fail(res, "notification action %s: %w", act.ID, err)
	}
	if len(recipients) == 0 {
		return fail(res, "notification action %s: no recipients resolved", act.ID)
	}

	payload := Payload{
		Title:     n.renderer.Render(cfgString(act.Config, "title"), data, evctx),
		Message:   n.renderer.Render(cfgString(act.Config, "message"), data, evctx),
		ActionURL: n.renderer.Render(cfgString(act.Config, "action_url"), data, evctx),
		Icon:      cfgString(act.Config, "icon"),
	}
	channels := cfgStringSlice(act.Config, "channels")
	if len(channels) == 0 {
		channels = []string{"database"}
	}

	sent, failed := 0, 0
	for _, rcpt := range recipients {
		for _, ch := range channels {
			p := payload
			p.Channel = ch
			if err := n.dispatcher.Dispatch(ctx, rcpt, p); err != nil {
				failed++
				logrus.WithFields(logrus.Fields{
					"action_id": act.ID,
					"channel":   ch,
				}).Warnf("notification delivery failed: %v", err)
				continue
			}
			sent++
		}
	}

	res.Details["recipients"] = len(recipients)
	res.Details["channels"] = channels
	res.Details["sent"] = sent
	res.Details["failed"] = failed

	if sent == 0 {
		return fail(res, "notification action %s: all %d deliveries failed", act.ID, failed)
	}
	res.Success = true
	res.Partial = failed > 0
	res.Message = fmt.Sprintf("sent %d of %d", sent, sent+failed)
	return res, nil
}

func (n *Notification) resolveRecipients(cfg map[string]any, data []any, evctx *event.Context) ([]Recipient, error) {
	rcpt := cfgMap(cfg, "recipients")
	if rcpt == nil {
		return nil, fmt.Errorf("missing recipients block")
	}
	switch strategy := cfgString(rcpt, "strategy"); strategy {
	case "users":
		ids := cfgStringSlice(rcpt, "user_ids")
		out := make([]Recipient, 0, len(ids))
		for _, id := range ids {
			out = append(out, Recipient{UserID: id})
		}
		return out, nil
	case "emails":
		emails := cfgStringSlice(rcpt, "emails")
		out := make([]Recipient, 0, len(emails))
		for _, addr := range emails {
			out = append(out, Recipient{Email: addr})
		}
		return out, nil
	case "field":
		path := cfgString(rcpt, "field_path")
		v, ok := fieldpath.ResolveFirst(path, data)
		if !ok || v == nil {
			return nil, fmt.Errorf("recipient field %q did not resolve", path)
		}
		return recipientsFromValue(v), nil
	case "acting_user":
		if evctx == nil || evctx.User == nil {
			return nil, fmt.Errorf("no acting user on event")
		}
		return []Recipient{{UserID: evctx.User.ID, Email: evctx.User.Email}}, nil
	default:
		return nil, fmt.Errorf("unknown recipients strategy %q", strategy)
	}
}

func recipientsFromValue(v any) []Recipient {
	switch t := v.(type) {
	case string:
		return []Recipient{recipientFromString(t)}
	case []string:
		out := make([]Recipient, 0, len(t))
		for _, s := range t {
			out = append(out, recipientFromString(s))
		}
		return out
	case []any:
		out := make([]Recipient, 0, len(t))
		for _, e := range t {
			out = append(out, recipientFromString(fmt.Sprintf("%v", e)))
		}
		return out
	default:
		return []Recipient{recipientFromString(fmt.Sprintf("%v", t))}
	}
}

func recipientFromString(s string) Recipient {
	for _, c := range s {
		if c == '@' {
			return Recipient{Email: s}
		}
	}
	return Recipient{UserID: s}
}
