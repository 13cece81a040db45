package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/st693ava/filament-events-manager-sub000/internal/metrics"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// Memory is the in-process Provider: a TTL store with single-flight
// recomputation from the rule store on miss.
type Memory struct {
	store rule.Store
	ttl   time.Duration
	cache *gocache.Cache
	group singleflight.Group

	mu    sync.Mutex
	index *keyIndex
}

// NewMemory creates a Memory cache over the given store. A non-positive ttl
// falls back to DefaultTTL.
func NewMemory(store rule.Store, ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		store: store,
		ttl:   ttl,
		cache: gocache.New(ttl, 2*ttl),
		index: newKeyIndex(),
	}
}

func (m *Memory) RulesByTrigger(ctx context.Context, t rule.TriggerType) ([]*rule.Rule, error) {
	key := keyTriggerPrefix + string(t)
	if v, ok := m.cache.Get(key); ok {
		metrics.CacheHits.Inc()
		return v.([]*rule.Rule), nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := m.group.Do(key, func() (any, error) {
		// Re-check: a concurrent flight may have filled the entry.
		if v, ok := m.cache.Get(key); ok {
			return v, nil
		}
		rules, err := m.computeTrigger(ctx, t)
		if err != nil {
			return nil, err
		}
		m.cache.Set(key, rules, m.ttl)
		m.mu.Lock()
		for _, r := range rules {
			m.index.add(r.ID, key)
		}
		m.mu.Unlock()
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*rule.Rule), nil
}

func (m *Memory) computeTrigger(ctx context.Context, t rule.TriggerType) ([]*rule.Rule, error) {
	active, err := m.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache recompute trigger %s: %w", t, err)
	}
	var matched []*rule.Rule
	for _, r := range active {
		if r.TriggerType == t {
			matched = append(matched, r)
		}
	}
	rule.SortByPriority(matched)
	return matched, nil
}

func (m *Memory) ConditionsFor(ctx context.Context, ruleID string) ([]rule.Condition, error) {
	key := keyConditionsPrefix + ruleID
	if v, ok := m.cache.Get(key); ok {
		metrics.CacheHits.Inc()
		return v.([]rule.Condition), nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.cache.Get(key); ok {
			return v, nil
		}
		r, err := m.store.Get(ctx, ruleID)
		if err != nil {
			return nil, err
		}
		m.cache.Set(key, r.Conditions, m.ttl)
		m.mu.Lock()
		m.index.add(ruleID, key)
		m.mu.Unlock()
		return r.Conditions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]rule.Condition), nil
}

func (m *Memory) ActionsFor(ctx context.Context, ruleID string) ([]rule.Action, error) {
	key := keyActionsPrefix + ruleID
	if v, ok := m.cache.Get(key); ok {
		metrics.CacheHits.Inc()
		return v.([]rule.Action), nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.cache.Get(key); ok {
			return v, nil
		}
		r, err := m.store.Get(ctx, ruleID)
		if err != nil {
			return nil, err
		}
		m.cache.Set(key, r.Actions, m.ttl)
		m.mu.Lock()
		m.index.add(ruleID, key)
		m.mu.Unlock()
		return r.Actions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]rule.Action), nil
}

// Invalidate drops every entry derived from ruleID, including the trigger
// list the rule appeared in.
func (m *Memory) Invalidate(ruleID string) {
	m.mu.Lock()
	keys := m.index.take(ruleID)
	m.mu.Unlock()
	for _, k := range keys {
		m.cache.Delete(k)
	}
	// The rule's own entries exist even if never listed under a trigger yet.
	m.cache.Delete(keyConditionsPrefix + ruleID)
	m.cache.Delete(keyActionsPrefix + ruleID)
}

func (m *Memory) InvalidateAll() {
	m.mu.Lock()
	m.index.reset()
	m.mu.Unlock()
	m.cache.Flush()
}
