// Package engine orchestrates the rule pipeline: candidate lookup through
// the cache, condition evaluation, action execution, and audit recording.
// Event emission is fire-and-forget for callers; nothing a rule does can
// fault the code path that raised the event.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/st693ava/filament-events-manager-sub000/internal/action"
	"github.com/st693ava/filament-events-manager-sub000/internal/cache"
	"github.com/st693ava/filament-events-manager-sub000/internal/condition"
	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/metrics"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// Options tunes engine behavior.
type Options struct {
	// AsyncActions dispatches each firing's action phase to a worker pool
	// instead of running it on the caller's goroutine. Per-rule action order
	// stays deterministic; ordering across rules becomes best-effort.
	AsyncActions bool
	// ActionWorkers is the pool size under AsyncActions.
	ActionWorkers int
	// QueueDepth bounds the action queue. A full queue falls back to
	// synchronous execution so no firing is lost.
	QueueDepth int
	// StopOnCriticalFailure aborts a firing's remaining actions when an
	// action marked critical fails.
	StopOnCriticalFailure bool
}

func (o Options) withDefaults() Options {
	if o.ActionWorkers <= 0 {
		o.ActionWorkers = 4
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 64
	}
	return o
}

// Engine is the rule engine. Construct with New; all methods are safe for
// concurrent use.
type Engine struct {
	rules     cache.Provider
	registry  *action.Registry
	collector event.Collector
	sink      Sink
	opts      Options
	pool      *workerPool[*actionPhase, struct{}]
}

// actionPhase is the deferred half of a firing under async mode.
type actionPhase struct {
	ctx   context.Context
	r     *rule.Rule
	data  []any
	evctx *event.Context
	rec   *AuditRecord
	start time.Time
}

// New builds an Engine. collector may be nil when callers always supply an
// event context; sink may be nil to log firings instead of persisting them.
func New(ctx context.Context, rules cache.Provider, registry *action.Registry, collector event.Collector, sink Sink, opts Options) *Engine {
	opts = opts.withDefaults()
	if sink == nil {
		sink = LogSink{}
	}
	e := &Engine{
		rules:     rules,
		registry:  registry,
		collector: collector,
		sink:      sink,
		opts:      opts,
	}
	if opts.AsyncActions {
		e.pool = newWorkerPool[*actionPhase, struct{}](ctx, opts.ActionWorkers, opts.QueueDepth,
			func(ctx context.Context, p *actionPhase) (struct{}, error) {
				e.finishFiring(p)
				return struct{}{}, nil
			})
	}
	return e
}

// ProcessEvent runs every rule whose trigger matches eventName against the
// given data entities. It returns the audit records completed on this call;
// under async mode deferred firings report through the Sink instead. Errors
// never propagate to the caller.
func (e *Engine) ProcessEvent(ctx context.Context, eventName string, data []any, evctx *event.Context) []*AuditRecord {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("event", eventName).Errorf("event processing panicked: %v", r)
		}
	}()

	start := time.Now()
	if evctx == nil {
		evctx = e.collect(ctx, eventName, data)
	}

	candidates := e.candidates(ctx, eventName)
	metrics.EventsProcessed.Inc()

	var records []*AuditRecord
	for _, r := range candidates {
		rec := e.fire(ctx, r, data, evctx)
		if rec != nil {
			records = append(records, rec)
		}
	}

	metrics.EventProcessingDuration.Observe(float64(time.Since(start).Milliseconds()))
	return records
}

// ProcessRule evaluates and executes a single rule against the data,
// bypassing trigger matching and the cache. Used by the admin "test rule"
// path and by tests. The record is returned and also sent to the Sink.
func (e *Engine) ProcessRule(ctx context.Context, r *rule.Rule, data []any, evctx *event.Context) *AuditRecord {
	if evctx == nil {
		evctx = e.collect(ctx, "", data)
	}
	start := time.Now()
	rec := e.newRecord(r, evctx)
	matched, trace := condition.EvaluateWithTrace(r.SortedConditions(), data, evctx)
	rec.Matched = matched
	rec.ConditionTrace = trace
	if matched {
		e.runActions(ctx, r, data, evctx, rec)
	}
	rec.DurationMs = time.Since(start).Milliseconds()
	e.sink.Record(ctx, rec)
	return rec
}

// Invalidate drops cached state for one rule. Exposed so rule CRUD and the
// admin API can reach the cache through the engine.
func (e *Engine) Invalidate(ruleID string) { e.rules.Invalidate(ruleID) }

// InvalidateAll drops the whole rule cache, used on rules-file reload.
func (e *Engine) InvalidateAll() { e.rules.InvalidateAll() }

// QueueUtilization returns action queue used/capacity in [0,1].
func (e *Engine) QueueUtilization() float64 {
	if e.pool == nil || e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown drains the action pool, letting in-flight firings finish.
func (e *Engine) Shutdown() {
	if e.pool != nil {
		e.pool.Drain()
	}
}

func (e *Engine) collect(ctx context.Context, eventName string, data []any) *event.Context {
	if e.collector != nil {
		if evctx := e.collector.Collect(ctx, eventName, data); evctx != nil {
			return evctx
		}
	}
	return event.New(eventName)
}

// candidates returns active rules matching the event, priority descending.
func (e *Engine) candidates(ctx context.Context, eventName string) []*rule.Rule {
	var out []*rule.Rule
	for _, tt := range rule.TriggerTypes {
		rules, err := e.rules.RulesByTrigger(ctx, tt)
		if err != nil {
			logrus.WithField("trigger_type", tt).Errorf("rule lookup failed: %v", err)
			continue
		}
		for _, r := range rules {
			if r.MatchesEvent(eventName) {
				out = append(out, r)
			}
		}
	}
	rule.SortByPriority(out)
	return out
}

// fire evaluates one candidate and executes its actions. Under async mode
// the action phase is queued and fire returns nil; the worker completes the
// record and hands it to the Sink.
func (e *Engine) fire(ctx context.Context, r *rule.Rule, data []any, evctx *event.Context) *AuditRecord {
	start := time.Now()
	rec := e.newRecord(r, evctx)

	conds, err := e.rules.ConditionsFor(ctx, r.ID)
	if err != nil {
		logrus.WithField("rule_id", r.ID).Errorf("condition lookup failed: %v", err)
		conds = r.SortedConditions()
	}
	matched, trace := condition.EvaluateWithTrace(conds, data, evctx)
	rec.Matched = matched
	rec.ConditionTrace = trace

	if !matched {
		rec.DurationMs = time.Since(start).Milliseconds()
		e.sink.Record(ctx, rec)
		return rec
	}

	metrics.RulesMatched.WithLabelValues(r.ID).Inc()

	if e.pool != nil {
		phase := &actionPhase{ctx: ctx, r: r, data: data, evctx: evctx, rec: rec, start: start}
		if e.pool.Submit(phase) {
			metrics.QueueUtilization.Set(e.QueueUtilization())
			return nil
		}
		logrus.WithField("rule_id", r.ID).Warn("action queue full, executing synchronously")
	}

	e.runActions(ctx, r, data, evctx, rec)
	rec.DurationMs = time.Since(start).Milliseconds()
	e.sink.Record(ctx, rec)
	return rec
}

func (e *Engine) finishFiring(p *actionPhase) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("rule_id", p.r.ID).Errorf("action phase panicked: %v", r)
		}
	}()
	e.runActions(p.ctx, p.r, p.data, p.evctx, p.rec)
	p.rec.DurationMs = time.Since(p.start).Milliseconds()
	e.sink.Record(p.ctx, p.rec)
	metrics.QueueUtilization.Set(e.QueueUtilization())
}

// runActions executes the rule's actions batch by batch, isolating failures
// per action. A failed critical action stops the firing when the engine is
// configured to do so.
func (e *Engine) runActions(ctx context.Context, r *rule.Rule, data []any, evctx *event.Context, rec *AuditRecord) {
	for _, batch := range e.actionBatches(ctx, r) {
		for _, act := range batch {
			outcome := e.runOne(ctx, act, data, evctx)
			rec.Actions = append(rec.Actions, outcome)
			if !outcome.Success && act.Critical && e.opts.StopOnCriticalFailure {
				logrus.WithFields(logrus.Fields{
					"rule_id":   r.ID,
					"action_id": act.ID,
				}).Warn("critical action failed, stopping remaining actions")
				rec.StoppedEarly = true
				return
			}
		}
	}
}

// actionBatches fetches a rule's actions through the cache and groups them
// into priority batches, falling back to the rule's own actions when the
// lookup fails.
func (e *Engine) actionBatches(ctx context.Context, r *rule.Rule) [][]rule.Action {
	acts, err := e.rules.ActionsFor(ctx, r.ID)
	if err != nil {
		logrus.WithField("rule_id", r.ID).Errorf("action lookup failed: %v", err)
		acts = r.Actions
	}
	tmp := rule.Rule{Actions: acts}
	return tmp.ActionBatches()
}

func (e *Engine) runOne(ctx context.Context, act rule.Action, data []any, evctx *event.Context) ActionOutcome {
	start := time.Now()
	outcome := ActionOutcome{ActionID: act.ID, Type: act.Type}

	ex, ok := e.registry.Get(act.Type)
	if !ok {
		outcome.Message = "no executor registered for type " + act.Type
		outcome.DurationMs = time.Since(start).Milliseconds()
		metrics.ActionsExecuted.WithLabelValues(act.Type, "error").Inc()
		logrus.WithField("action_id", act.ID).Error(outcome.Message)
		return outcome
	}

	res, err := ex.Execute(ctx, act, data, evctx)
	outcome.DurationMs = time.Since(start).Milliseconds()
	if res != nil {
		outcome.Success = res.Success
		outcome.Partial = res.Partial
		outcome.Message = res.Message
		outcome.Details = res.Details
	}
	status := "success"
	if err != nil || (res != nil && !res.Success) {
		status = "error"
		if err != nil {
			outcome.Message = err.Error()
			logrus.WithFields(logrus.Fields{
				"action_id": act.ID,
				"type":      act.Type,
			}).Warnf("action failed: %v", err)
		}
	}
	metrics.ActionsExecuted.WithLabelValues(act.Type, status).Inc()
	return outcome
}

func (e *Engine) newRecord(r *rule.Rule, evctx *event.Context) *AuditRecord {
	return &AuditRecord{
		ID:          uuid.NewString(),
		RuleID:      r.ID,
		RuleName:    r.Name,
		EventName:   evctx.EventName,
		TriggerType: r.TriggerType,
		Context:     evctx,
		StartedAt:   time.Now().UTC(),
	}
}
