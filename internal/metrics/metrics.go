package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_manager_events_processed_total",
		Help: "Total number of events fully processed by the rule engine.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_manager_events_dropped_total",
		Help: "Total number of events rejected before processing.",
	})

	RulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_manager_rules_matched_total",
		Help: "Total number of rule firings, labelled by rule ID.",
	}, []string{"rule_id"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_manager_actions_executed_total",
		Help: "Total number of actions executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	WebhookRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_manager_webhook_retries_total",
		Help: "Total number of webhook delivery retries after a failed attempt.",
	})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "events_manager_event_processing_duration_ms",
		Help:    "End-to-end event processing latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_manager_rule_cache_hits_total",
		Help: "Total number of rule cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_manager_rule_cache_misses_total",
		Help: "Total number of rule cache misses triggering a store recompute.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "events_manager_action_queue_utilization_ratio",
		Help: "Current async action queue utilization (0–1).",
	})
)
