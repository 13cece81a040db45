// Package api exposes the HTTP surface: event ingestion, rule interchange
// import/export, cache invalidation, template preview, and the usual probe
// and metrics endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/st693ava/filament-events-manager-sub000/internal/engine"
	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/metrics"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
	"github.com/st693ava/filament-events-manager-sub000/internal/template"
)

const maxEventEntities = 100

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng      *engine.Engine
	store    rule.Store
	renderer *template.Renderer
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, store rule.Store, renderer *template.Renderer) http.Handler {
	h := &Handler{eng: eng, store: store, renderer: renderer, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("GET /v1/rules", h.listRules)
	h.mux.HandleFunc("POST /v1/rules/import", h.importRules)
	h.mux.HandleFunc("GET /v1/rules/export", h.exportRules)
	h.mux.HandleFunc("POST /v1/rules/test", h.testRule)
	h.mux.HandleFunc("POST /v1/cache/invalidate", h.invalidateCache)
	h.mux.HandleFunc("POST /v1/templates/preview", h.previewTemplate)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

type eventRequest struct {
	EventName string           `json:"event_name"`
	Data      []map[string]any `json:"data,omitempty"`
	Context   *event.Context   `json:"context,omitempty"`
}

// POST /v1/events — fire one event through the engine. The response carries
// the audit records completed synchronously; async firings report through
// the configured sink instead.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.EventName == "" {
		metrics.EventsDropped.Inc()
		writeError(w, http.StatusBadRequest, "event_name is required")
		return
	}
	if len(req.Data) > maxEventEntities {
		metrics.EventsDropped.Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("data carries %d entities, max %d", len(req.Data), maxEventEntities))
		return
	}
	data := make([]any, 0, len(req.Data))
	for _, d := range req.Data {
		data = append(data, d)
	}
	if req.Context != nil && req.Context.EventName == "" {
		req.Context.EventName = req.EventName
	}
	if req.Context != nil && req.Context.TriggeredAt.IsZero() {
		req.Context.TriggeredAt = time.Now()
	}

	records := h.eng.ProcessEvent(r.Context(), req.EventName, data, req.Context)
	writeJSON(w, http.StatusOK, map[string]any{
		"event_name": req.EventName,
		"records":    records,
		"count":      len(records),
	})
}

// GET /v1/rules — list active rules from the store.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// POST /v1/rules/import — import an interchange document into the store.
// Rules that fail validation are reported and skipped; valid ones are
// created and the cache is flushed.
func (h *Handler) importRules(w http.ResponseWriter, r *http.Request) {
	var doc rule.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	rules, problems := rule.Import(&doc)
	if len(rules) == 0 && len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"imported": 0,
			"problems": problems,
		})
		return
	}

	imported := 0
	for _, imp := range rules {
		if err := h.store.Create(r.Context(), imp); err != nil {
			if errors.Is(err, rule.ErrReadOnly) {
				writeError(w, http.StatusConflict, "rule store is read-only")
				return
			}
			problems = append(problems, fmt.Sprintf("rule %q: %s", imp.Name, err))
			continue
		}
		imported++
	}
	if imported > 0 {
		h.eng.InvalidateAll()
	}

	status := http.StatusCreated
	if len(problems) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{
		"imported": imported,
		"problems": problems,
	})
}

// GET /v1/rules/export — export active rules as an interchange document.
func (h *Handler) exportRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rule.Export(rules))
}

type testRuleRequest struct {
	Rule      rule.Rule        `json:"rule"`
	EventName string           `json:"event_name"`
	Data      []map[string]any `json:"data,omitempty"`
}

// POST /v1/rules/test — run one rule against sample data without touching
// the store, returning the full audit record.
func (h *Handler) testRule(w http.ResponseWriter, r *http.Request) {
	var req testRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if problems := rule.Validate(&req.Rule); len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"problems": problems})
		return
	}
	data := make([]any, 0, len(req.Data))
	for _, d := range req.Data {
		data = append(data, d)
	}
	evctx := event.New(req.EventName)
	rec := h.eng.ProcessRule(r.Context(), &req.Rule, data, evctx)
	writeJSON(w, http.StatusOK, rec)
}

type invalidateRequest struct {
	RuleID string `json:"rule_id,omitempty"`
}

// POST /v1/cache/invalidate — drop cached state for one rule, or everything
// when no rule_id is given.
func (h *Handler) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.RuleID == "" {
		h.eng.InvalidateAll()
		writeJSON(w, http.StatusOK, map[string]any{"invalidated": "all"})
		return
	}
	h.eng.Invalidate(req.RuleID)
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": req.RuleID})
}

type previewRequest struct {
	Template string         `json:"template"`
	Sample   map[string]any `json:"sample,omitempty"`
}

// POST /v1/templates/preview — annotate a template against sample data for
// the authoring UI, plus any structural problems.
func (h *Handler) previewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.Template == "" {
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preview":  h.renderer.Preview(req.Template, req.Sample),
		"problems": template.Validate(req.Template),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the action queue is over 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
