// Package cache keeps rule lookups fast under high event volume: active
// rules by trigger type plus per-rule condition and action sets, TTL-cached
// with explicit invalidation. Recomputes go through a single-flight group so
// bursty traffic cannot stampede the rule store.
package cache

import (
	"context"
	"time"

	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// DefaultTTL is how long cached entries live without invalidation.
const DefaultTTL = time.Hour

// Keys are namespaced per lookup; the ruleID→keys index makes Invalidate
// precise without any pattern scanning.
const (
	keyTriggerPrefix    = "rules:trigger:"
	keyConditionsPrefix = "rule:conditions:"
	keyActionsPrefix    = "rule:actions:"
)

// Provider is the cached rule lookup the engine consumes.
type Provider interface {
	// RulesByTrigger returns active rules of the given trigger type, ordered
	// by priority descending.
	RulesByTrigger(ctx context.Context, t rule.TriggerType) ([]*rule.Rule, error)
	// ConditionsFor returns a rule's conditions.
	ConditionsFor(ctx context.Context, ruleID string) ([]rule.Condition, error)
	// ActionsFor returns a rule's actions.
	ActionsFor(ctx context.Context, ruleID string) ([]rule.Action, error)
	// Invalidate drops every cached entry derived from the given rule.
	Invalidate(ruleID string)
	// InvalidateAll drops the whole cache.
	InvalidateAll()
}

// keyIndex tracks which cache keys were derived from which rule, so
// Invalidate(ruleID) deletes exactly the affected entries.
type keyIndex struct {
	byRule map[string]map[string]struct{}
}

func newKeyIndex() *keyIndex {
	return &keyIndex{byRule: make(map[string]map[string]struct{})}
}

func (ix *keyIndex) add(ruleID, key string) {
	keys, ok := ix.byRule[ruleID]
	if !ok {
		keys = make(map[string]struct{})
		ix.byRule[ruleID] = keys
	}
	keys[key] = struct{}{}
}

func (ix *keyIndex) take(ruleID string) []string {
	keys, ok := ix.byRule[ruleID]
	if !ok {
		return nil
	}
	delete(ix.byRule, ruleID)
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out
}

func (ix *keyIndex) reset() {
	ix.byRule = make(map[string]map[string]struct{})
}
