package action

import (
	"context"
	"time"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
	"github.com/st693ava/filament-events-manager-sub000/internal/template"
)

const TypeEmail = "email"

// Message is a rendered email ready for delivery.
type Message struct {
	To      []string
	CC      []string
	BCC     []string
	Subject string
	Body    string
}

// Mailer delivers rendered messages. Implementations wrap whatever transport
// the deployment uses (SMTP, an API client, a queue).
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Email renders recipient, subject, and body templates against the event
// payload and hands the result to a Mailer.
type Email struct {
	mailer   Mailer
	renderer *template.Renderer
}

func NewEmail(mailer Mailer, renderer *template.Renderer) *Email {
	return &Email{mailer: mailer, renderer: renderer}
}

func (e *Email) Type() string { return TypeEmail }

func (e *Email) ValidateConfig(cfg map[string]any) []string {
	var problems []string
	if len(cfgStringSlice(cfg, "to")) == 0 && cfgString(cfg, "to") == "" {
		problems = append(problems, "email action requires a \"to\" recipient")
	}
	if cfgString(cfg, "subject") == "" {
		problems = append(problems, "email action requires a \"subject\" template")
	}
	if cfgString(cfg, "body") == "" {
		problems = append(problems, "email action requires a \"body\" template")
	}
	return problems
}

func (e *Email) Execute(ctx context.Context, act rule.Action, data []any, evctx *event.Context) (*Result, error) {
	res := newResult(act, TypeEmail)

	to := e.renderAll(cfgStringSlice(act.Config, "to"), data, evctx)
	if len(to) == 0 {
		return fail(res, "email action %s: no recipients configured", act.ID)
	}
	msg := Message{
		To:      to,
		CC:      e.renderAll(cfgStringSlice(act.Config, "cc"), data, evctx),
		BCC:     e.renderAll(cfgStringSlice(act.Config, "bcc"), data, evctx),
		Subject: e.renderer.Render(cfgString(act.Config, "subject"), data, evctx),
		Body:    e.renderer.Render(cfgString(act.Config, "body"), data, evctx),
	}

	if err := e.mailer.Send(ctx, msg); err != nil {
		return fail(res, "email action %s: send: %w", act.ID, err)
	}

	res.Success = true
	res.Details["recipient"] = msg.To
	res.Details["subject"] = msg.Subject
	res.Details["body_length"] = len(msg.Body)
	res.Details["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	return res, nil
}

func (e *Email) renderAll(tmpls []string, data []any, evctx *event.Context) []string {
	out := make([]string, 0, len(tmpls))
	for _, t := range tmpls {
		if rendered := e.renderer.Render(t, data, evctx); rendered != "" {
			out = append(out, rendered)
		}
	}
	return out
}
