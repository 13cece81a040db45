package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/metrics"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
	"github.com/st693ava/filament-events-manager-sub000/internal/template"
)

const TypeWebhook = "webhook"

const (
	defaultWebhookTimeout = 30 * time.Second
	defaultWebhookRetries = 3
	defaultRetryBaseDelay = time.Second
	maxResponseBody       = 4 << 10
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Doer abstracts *http.Client for tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook delivers rendered payloads to an HTTP endpoint with exponential
// backoff on failure. Delays double from baseDelay; any non-2xx/3xx response
// or transport error is retried until the attempt budget runs out.
type Webhook struct {
	client    Doer
	renderer  *template.Renderer
	timeout   time.Duration
	baseDelay time.Duration
}

func NewWebhook(client Doer, renderer *template.Renderer) *Webhook {
	if client == nil {
		client = &http.Client{}
	}
	return &Webhook{
		client:    client,
		renderer:  renderer,
		timeout:   defaultWebhookTimeout,
		baseDelay: defaultRetryBaseDelay,
	}
}

// WithTimeout sets the per-attempt timeout.
func (w *Webhook) WithTimeout(d time.Duration) *Webhook {
	if d > 0 {
		w.timeout = d
	}
	return w
}

// WithBaseDelay sets the initial retry delay. Subsequent delays double.
func (w *Webhook) WithBaseDelay(d time.Duration) *Webhook {
	if d > 0 {
		w.baseDelay = d
	}
	return w
}

func (w *Webhook) Type() string { return TypeWebhook }

func (w *Webhook) ValidateConfig(cfg map[string]any) []string {
	var problems []string
	if cfgString(cfg, "url") == "" {
		problems = append(problems, "webhook action requires a \"url\"")
	}
	if m := cfgString(cfg, "method"); m != "" && !allowedMethods[strings.ToUpper(m)] {
		problems = append(problems, fmt.Sprintf("webhook method %q is not allowed", m))
	}
	if r := cfgInt(cfg, "retries", defaultWebhookRetries); r < 0 {
		problems = append(problems, "webhook retries must not be negative")
	}
	return problems
}

func (w *Webhook) Execute(ctx context.Context, act rule.Action, data []any, evctx *event.Context) (*Result, error) {
	res := newResult(act, TypeWebhook)

	url := w.renderer.Render(cfgString(act.Config, "url"), data, evctx)
	if url == "" {
		return fail(res, "webhook action %s: empty url after rendering", act.ID)
	}
	method := strings.ToUpper(cfgString(act.Config, "method"))
	if !allowedMethods[method] {
		method = http.MethodPost
	}

	body, err := w.renderPayload(act.Config, data, evctx)
	if err != nil {
		return fail(res, "webhook action %s: payload: %w", act.ID, err)
	}

	retries := cfgInt(act.Config, "retries", defaultWebhookRetries)
	timeout := cfgDuration(act.Config, "timeout", w.timeout)

	attempts := 0
	var lastStatus int
	var lastBody []byte

	attempt := func() error {
		if attempts > 0 {
			metrics.WebhookRetries.Inc()
		}
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for name, tmpl := range w.headerTemplates(act.Config) {
			req.Header.Set(name, w.renderer.Render(tmpl, data, evctx))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		lastStatus = resp.StatusCode
		lastBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

		if resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return nil
		}
		return fmt.Errorf("webhook %s %s: status %d", method, url, resp.StatusCode)
	}

	policy := backoff.WithContext(w.retryPolicy(retries), ctx)
	err = backoff.Retry(attempt, policy)

	res.Details["url"] = url
	res.Details["method"] = method
	res.Details["attempts"] = attempts
	if lastStatus != 0 {
		res.Details["status_code"] = lastStatus
		res.Details["response_body"] = string(lastBody)
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"action_id": act.ID,
			"url":       url,
			"attempts":  attempts,
		}).Warnf("webhook delivery failed: %v", err)
		return fail(res, "webhook action %s: %w", act.ID, err)
	}

	res.Success = true
	res.Message = fmt.Sprintf("delivered after %d attempt(s)", attempts)
	return res, nil
}

func (w *Webhook) retryPolicy(retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = w.baseDelay * 64
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(retries))
}

func (w *Webhook) renderPayload(cfg map[string]any, data []any, evctx *event.Context) ([]byte, error) {
	switch payload := cfg["payload"].(type) {
	case nil:
		return json.Marshal(map[string]any{"event": evctx.EventName, "triggered_at": evctx.TriggeredAt})
	case string:
		return []byte(w.renderer.Render(payload, data, evctx)), nil
	case map[string]any:
		return json.Marshal(w.renderValue(payload, data, evctx))
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}

// renderValue walks a payload tree and renders every string leaf, so
// placeholders inside nested maps and lists resolve too.
func (w *Webhook) renderValue(v any, data []any, evctx *event.Context) any {
	switch val := v.(type) {
	case string:
		return w.renderer.Render(val, data, evctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = w.renderValue(item, data, evctx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = w.renderValue(item, data, evctx)
		}
		return out
	default:
		return v
	}
}

func (w *Webhook) headerTemplates(cfg map[string]any) map[string]string {
	raw := cfgMap(cfg, "headers")
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		if s, ok := v.(string); ok {
			out[name] = s
		}
	}
	return out
}
