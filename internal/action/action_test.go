package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
	"github.com/st693ava/filament-events-manager-sub000/internal/template"
)

func testRenderer() *template.Renderer {
	return template.NewRenderer("events-manager")
}

func orderData() []any {
	return []any{map[string]any{
		"id":     float64(42),
		"name":   "Sam",
		"email":  "sam@example.com",
		"status": "active",
	}}
}

type fakeMailer struct {
	sent []Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestEmailExecute(t *testing.T) {
	mailer := &fakeMailer{}
	ex := NewEmail(mailer, testRenderer())
	evctx := event.New("order.created")

	act := rule.Action{
		ID:   "a1",
		Type: TypeEmail,
		Config: map[string]any{
			"to":      []any{"{{email}}"},
			"subject": "Welcome {{name}}",
			"body":    "Order {{id}} is {{status}}",
		},
	}

	res, err := ex.Execute(context.Background(), act, orderData(), evctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result not successful: %+v", res)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if len(msg.To) != 1 || msg.To[0] != "sam@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if msg.Subject != "Welcome Sam" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.Body != "Order 42 is active" {
		t.Errorf("Body = %q", msg.Body)
	}
	if res.Details["subject"] != "Welcome Sam" {
		t.Errorf("Details[subject] = %v", res.Details["subject"])
	}
}

func TestEmailSendFailure(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	ex := NewEmail(mailer, testRenderer())

	act := rule.Action{ID: "a1", Type: TypeEmail, Config: map[string]any{
		"to": "ops@example.com", "subject": "s", "body": "b",
	}}
	res, err := ex.Execute(context.Background(), act, nil, event.New("x.y"))
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Success {
		t.Error("result should not be successful")
	}
}

func TestEmailValidateConfig(t *testing.T) {
	ex := NewEmail(&fakeMailer{}, testRenderer())
	problems := ex.ValidateConfig(map[string]any{})
	if len(problems) != 3 {
		t.Fatalf("got %d problems, want 3: %v", len(problems), problems)
	}
	if got := ex.ValidateConfig(map[string]any{"to": "a@b.c", "subject": "s", "body": "b"}); len(got) != 0 {
		t.Errorf("valid config flagged: %v", got)
	}
}

func TestWebhookRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ex := NewWebhook(srv.Client(), testRenderer()).WithBaseDelay(time.Millisecond)
	act := rule.Action{ID: "w1", Type: TypeWebhook, Config: map[string]any{
		"url":     srv.URL,
		"retries": 3,
		"payload": map[string]any{"name": "{{name}}"},
	}}

	res, err := ex.Execute(context.Background(), act, orderData(), event.New("order.created"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result not successful: %+v", res)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
	if res.Details["attempts"] != 3 {
		t.Errorf("attempts = %v, want 3", res.Details["attempts"])
	}
	if res.Details["status_code"] != http.StatusOK {
		t.Errorf("status_code = %v", res.Details["status_code"])
	}
}

func TestWebhookExhaustsRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := NewWebhook(srv.Client(), testRenderer()).WithBaseDelay(time.Millisecond)
	act := rule.Action{ID: "w1", Type: TypeWebhook, Config: map[string]any{
		"url": srv.URL, "retries": 2,
	}}

	res, err := ex.Execute(context.Background(), act, nil, event.New("order.created"))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if res.Success {
		t.Error("result should not be successful")
	}
	// retries=2 means the initial attempt plus two retries.
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestWebhookClientErrorRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	ex := NewWebhook(srv.Client(), testRenderer()).WithBaseDelay(time.Millisecond)
	act := rule.Action{ID: "w1", Type: TypeWebhook, Config: map[string]any{
		"url": srv.URL, "retries": 1,
	}}

	res, err := ex.Execute(context.Background(), act, nil, event.New("order.created"))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hit %d times, want 2 (non-2xx/3xx is retried)", got)
	}
	if res.Details["status_code"] != http.StatusBadRequest {
		t.Errorf("status_code = %v", res.Details["status_code"])
	}
}

func TestWebhookInvalidMethodDefaultsToPost(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ex := NewWebhook(srv.Client(), testRenderer()).WithBaseDelay(time.Millisecond)
	act := rule.Action{ID: "w1", Type: TypeWebhook, Config: map[string]any{
		"url": srv.URL, "method": "TRACE",
	}}
	if _, err := ex.Execute(context.Background(), act, nil, event.New("x.y")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
}

func TestWebhookRendersURLAndHeaders(t *testing.T) {
	var gotPath, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Entity")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ex := NewWebhook(srv.Client(), testRenderer()).WithBaseDelay(time.Millisecond)
	act := rule.Action{ID: "w1", Type: TypeWebhook, Config: map[string]any{
		"url":     srv.URL + "/orders/{{id}}",
		"method":  "put",
		"headers": map[string]any{"X-Entity": "{{name}}"},
	}}

	res, err := ex.Execute(context.Background(), act, orderData(), event.New("order.created"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result not successful: %+v", res)
	}
	if gotPath != "/orders/42" {
		t.Errorf("path = %q", gotPath)
	}
	if gotHeader != "Sam" {
		t.Errorf("X-Entity = %q", gotHeader)
	}
}

func TestWebhookRendersNestedPayload(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ex := NewWebhook(srv.Client(), testRenderer()).WithBaseDelay(time.Millisecond)
	act := rule.Action{ID: "w1", Type: TypeWebhook, Config: map[string]any{
		"url": srv.URL,
		"payload": map[string]any{
			"customer": map[string]any{
				"name":  "{{name}}",
				"email": "{{email}}",
			},
			"tags":  []any{"{{status}}", "order"},
			"count": float64(1),
		},
	}}

	res, err := ex.Execute(context.Background(), act, orderData(), event.New("order.created"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result not successful: %+v", res)
	}

	var sent map[string]any
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	customer, _ := sent["customer"].(map[string]any)
	if customer["name"] != "Sam" || customer["email"] != "sam@example.com" {
		t.Errorf("customer = %v", customer)
	}
	tags, _ := sent["tags"].([]any)
	if len(tags) != 2 || tags[0] != "active" || tags[1] != "order" {
		t.Errorf("tags = %v", tags)
	}
	if sent["count"] != float64(1) {
		t.Errorf("count = %v", sent["count"])
	}
}

func TestWebhookValidateConfig(t *testing.T) {
	ex := NewWebhook(nil, testRenderer())
	if got := ex.ValidateConfig(map[string]any{}); len(got) != 1 {
		t.Errorf("missing url: got %v", got)
	}
	got := ex.ValidateConfig(map[string]any{"url": "http://x", "method": "TRACE"})
	if len(got) != 1 || !strings.Contains(got[0], "TRACE") {
		t.Errorf("bad method: got %v", got)
	}
	if got := ex.ValidateConfig(map[string]any{"url": "http://x", "method": "POST"}); len(got) != 0 {
		t.Errorf("valid config flagged: %v", got)
	}
}

type fakeDispatcher struct {
	delivered []Recipient
	channels  []string
	failFor   string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, rcpt Recipient, p Payload) error {
	if d.failFor != "" && (rcpt.UserID == d.failFor || rcpt.Email == d.failFor) {
		return errors.New("channel unavailable")
	}
	d.delivered = append(d.delivered, rcpt)
	d.channels = append(d.channels, p.Channel)
	return nil
}

func TestNotificationStrategies(t *testing.T) {
	tests := []struct {
		name       string
		recipients map[string]any
		data       []any
		user       *event.User
		want       []Recipient
	}{
		{
			name:       "fixed user ids",
			recipients: map[string]any{"strategy": "users", "user_ids": []any{"7", "9"}},
			want:       []Recipient{{UserID: "7"}, {UserID: "9"}},
		},
		{
			name:       "fixed emails",
			recipients: map[string]any{"strategy": "emails", "emails": []any{"a@x.io"}},
			want:       []Recipient{{Email: "a@x.io"}},
		},
		{
			name:       "dynamic field path",
			recipients: map[string]any{"strategy": "field", "field_path": "owner.email"},
			data: []any{map[string]any{
				"owner": map[string]any{"email": "owner@x.io"},
			}},
			want: []Recipient{{Email: "owner@x.io"}},
		},
		{
			name:       "acting user",
			recipients: map[string]any{"strategy": "acting_user"},
			user:       &event.User{ID: "3", Email: "act@x.io"},
			want:       []Recipient{{UserID: "3", Email: "act@x.io"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp := &fakeDispatcher{}
			ex := NewNotification(disp, testRenderer())
			evctx := event.New("order.created")
			evctx.User = tt.user

			act := rule.Action{ID: "n1", Type: TypeNotification, Config: map[string]any{
				"title":      "Order update",
				"message":    "hello",
				"recipients": tt.recipients,
			}}
			res, err := ex.Execute(context.Background(), act, tt.data, evctx)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !res.Success || res.Partial {
				t.Fatalf("unexpected result: %+v", res)
			}
			if len(disp.delivered) != len(tt.want) {
				t.Fatalf("delivered %v, want %v", disp.delivered, tt.want)
			}
			for i, want := range tt.want {
				if disp.delivered[i] != want {
					t.Errorf("recipient[%d] = %+v, want %+v", i, disp.delivered[i], want)
				}
			}
		})
	}
}

func TestNotificationPartialSuccess(t *testing.T) {
	disp := &fakeDispatcher{failFor: "9"}
	ex := NewNotification(disp, testRenderer())

	act := rule.Action{ID: "n1", Type: TypeNotification, Config: map[string]any{
		"title":      "t",
		"recipients": map[string]any{"strategy": "users", "user_ids": []any{"7", "9"}},
	}}
	res, err := ex.Execute(context.Background(), act, nil, event.New("x.y"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || !res.Partial {
		t.Fatalf("want partial success, got %+v", res)
	}
	if res.Details["sent"] != 1 || res.Details["failed"] != 1 {
		t.Errorf("sent/failed = %v/%v", res.Details["sent"], res.Details["failed"])
	}
}

func TestNotificationAllFail(t *testing.T) {
	disp := &fakeDispatcher{failFor: "7"}
	ex := NewNotification(disp, testRenderer())

	act := rule.Action{ID: "n1", Type: TypeNotification, Config: map[string]any{
		"title":      "t",
		"recipients": map[string]any{"strategy": "users", "user_ids": []any{"7"}},
	}}
	res, err := ex.Execute(context.Background(), act, nil, event.New("x.y"))
	if err == nil {
		t.Fatal("expected error when every delivery fails")
	}
	if res.Success {
		t.Error("result should not be successful")
	}
}

type fakeActivityLogger struct {
	entries []LogEntry
	err     error
}

func (l *fakeActivityLogger) Log(_ context.Context, entry LogEntry) error {
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, entry)
	return nil
}

func TestActivityLogExecute(t *testing.T) {
	logger := &fakeActivityLogger{}
	ex := NewActivityLog(logger, testRenderer())
	evctx := event.New("order.updated")
	evctx.User = &event.User{ID: "5", Name: "Ana"}

	act := rule.Action{ID: "l1", Type: TypeActivityLog, Config: map[string]any{
		"description": "Order {{id}} changed",
		"properties":  map[string]any{"status": "{{status}}", "source": "rules"},
	}}
	res, err := ex.Execute(context.Background(), act, orderData(), evctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result not successful: %+v", res)
	}
	if len(logger.entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Description != "Order 42 changed" {
		t.Errorf("Description = %q", entry.Description)
	}
	if entry.Properties["status"] != "active" || entry.Properties["source"] != "rules" {
		t.Errorf("Properties = %v", entry.Properties)
	}
	if entry.CausedBy == nil || entry.CausedBy.ID != "5" {
		t.Errorf("CausedBy = %+v", entry.CausedBy)
	}
	if entry.EventName != "order.updated" {
		t.Errorf("EventName = %q", entry.EventName)
	}
	if entry.LogName != "default" {
		t.Errorf("LogName = %q", entry.LogName)
	}
}

func TestActivityLogRequiresDataEntity(t *testing.T) {
	ex := NewActivityLog(&fakeActivityLogger{}, testRenderer())
	act := rule.Action{ID: "l1", Type: TypeActivityLog, Config: map[string]any{
		"description": "d",
	}}
	res, err := ex.Execute(context.Background(), act, nil, event.New("x.y"))
	if err == nil {
		t.Fatal("expected error without data entities")
	}
	if res.Success {
		t.Error("result should not be successful")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewEmail(&fakeMailer{}, testRenderer()))
	reg.Register(NewWebhook(nil, testRenderer()))

	if _, ok := reg.Get(TypeEmail); !ok {
		t.Error("email executor not found")
	}
	if _, ok := reg.Get("sms"); ok {
		t.Error("unexpected executor for unregistered type")
	}
	if got := reg.Types(); len(got) != 2 || got[0] != TypeEmail || got[1] != TypeWebhook {
		t.Errorf("Types = %v", got)
	}

	problems := reg.ValidateAction(rule.Action{Type: "sms"})
	if len(problems) != 1 || !strings.Contains(problems[0], "sms") {
		t.Errorf("unknown type problems = %v", problems)
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	reg.Register(NewEmail(&fakeMailer{}, testRenderer()))
}
