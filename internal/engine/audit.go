package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/st693ava/filament-events-manager-sub000/internal/condition"
	"github.com/st693ava/filament-events-manager-sub000/internal/event"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// ActionOutcome is the recorded result of one action within a rule firing.
type ActionOutcome struct {
	ActionID   string         `json:"action_id"`
	Type       string         `json:"type"`
	Success    bool           `json:"success"`
	Partial    bool           `json:"partial,omitempty"`
	Message    string         `json:"message,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
}

// AuditRecord captures one rule firing end to end: what matched, how each
// condition evaluated, what every action did, and how long the whole firing
// took. One record is emitted per firing regardless of outcome.
type AuditRecord struct {
	ID             string            `json:"id"`
	RuleID         string            `json:"rule_id"`
	RuleName       string            `json:"rule_name"`
	EventName      string            `json:"event_name"`
	TriggerType    rule.TriggerType  `json:"trigger_type"`
	Matched        bool              `json:"matched"`
	ConditionTrace []condition.Trace `json:"condition_trace,omitempty"`
	Actions        []ActionOutcome   `json:"actions,omitempty"`
	StoppedEarly   bool              `json:"stopped_early,omitempty"`
	DurationMs     int64             `json:"duration_ms"`
	Context        *event.Context    `json:"context,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
}

// Sink receives finished audit records. Implementations must tolerate
// concurrent calls; sink errors are the sink's own problem and never reach
// the event path.
type Sink interface {
	Record(ctx context.Context, rec *AuditRecord)
}

// LogSink writes audit records to the structured log. It is the default sink
// when no persistent one is configured.
type LogSink struct{}

func (LogSink) Record(_ context.Context, rec *AuditRecord) {
	logrus.WithFields(logrus.Fields{
		"rule_id":     rec.RuleID,
		"rule_name":   rec.RuleName,
		"event":       rec.EventName,
		"matched":     rec.Matched,
		"actions":     len(rec.Actions),
		"duration_ms": rec.DurationMs,
	}).Info("rule firing recorded")
}

// MemorySink retains records in memory, used by tests and the admin API.
type MemorySink struct {
	mu      sync.Mutex
	records []*AuditRecord
}

func (s *MemorySink) Record(_ context.Context, rec *AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Records returns a copy of everything recorded so far.
func (s *MemorySink) Records() []*AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AuditRecord, len(s.records))
	copy(out, s.records)
	return out
}
