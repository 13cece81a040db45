package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/st693ava/filament-events-manager-sub000/internal/metrics"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

// redisKeyPrefix namespaces all rule cache entries in a shared Redis.
const redisKeyPrefix = "events_manager:"

// Redis is the multi-instance Provider: entries are JSON documents with a
// server-side TTL. The ruleID→keys index is per process; cross-instance
// invalidation rides on the TTL.
type Redis struct {
	store  rule.Store
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	mu    sync.Mutex
	index *keyIndex
}

// NewRedis creates a Redis cache over the given store and client.
func NewRedis(store rule.Store, client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		store:  store,
		client: client,
		ttl:    ttl,
		index:  newKeyIndex(),
	}
}

func (c *Redis) RulesByTrigger(ctx context.Context, t rule.TriggerType) ([]*rule.Rule, error) {
	key := redisKeyPrefix + keyTriggerPrefix + string(t)

	var cached []*rule.Rule
	if ok := c.fetch(ctx, key, &cached); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		active, err := c.store.ListActive(ctx)
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

		c.put(ctx, key, matched)
		c.mu.Lock()
		for _, r := range matched {
			c.index.add(r.ID, key)
		}
		c.mu.Unlock()
		return matched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*rule.Rule), nil
}

func (c *Redis) ConditionsFor(ctx context.Context, ruleID string) ([]rule.Condition, error) {
	key := redisKeyPrefix + keyConditionsPrefix + ruleID

	var cached []rule.Condition
	if ok := c.fetch(ctx, key, &cached); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := c.store.Get(ctx, ruleID)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, r.Conditions)
		c.mu.Lock()
		c.index.add(ruleID, key)
		c.mu.Unlock()
		return r.Conditions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]rule.Condition), nil
}

func (c *Redis) ActionsFor(ctx context.Context, ruleID string) ([]rule.Action, error) {
	key := redisKeyPrefix + keyActionsPrefix + ruleID

	var cached []rule.Action
	if ok := c.fetch(ctx, key, &cached); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := c.store.Get(ctx, ruleID)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, r.Actions)
		c.mu.Lock()
		c.index.add(ruleID, key)
		c.mu.Unlock()
		return r.Actions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]rule.Action), nil
}

// fetch reads and decodes a cached entry. Decode failures count as misses;
// the entry will be overwritten by the recompute.
func (c *Redis) fetch(ctx context.Context, key string, out any) bool {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.CacheMisses.Inc()
		return false
	}
	if err != nil {
		logrus.Warnf("rule cache read %s: %v", key, err)
		metrics.CacheMisses.Inc()
		return false
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		logrus.Warnf("rule cache decode %s: %v", key, err)
		metrics.CacheMisses.Inc()
		return false
	}
	metrics.CacheHits.Inc()
	return true
}

func (c *Redis) put(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.Errorf("rule cache encode %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logrus.Warnf("rule cache write %s: %v", key, err)
	}
}

func (c *Redis) Invalidate(ruleID string) {
	c.mu.Lock()
	keys := c.index.take(ruleID)
	c.mu.Unlock()

	keys = append(keys,
		redisKeyPrefix+keyConditionsPrefix+ruleID,
		redisKeyPrefix+keyActionsPrefix+ruleID,
	)
	if err := c.client.Del(context.Background(), keys...).Err(); err != nil {
		logrus.Warnf("rule cache invalidate %s: %v", ruleID, err)
	}
}

func (c *Redis) InvalidateAll() {
	c.mu.Lock()
	all := make(map[string]struct{})
	for _, keys := range c.index.byRule {
		for k := range keys {
			all[k] = struct{}{}
		}
	}
	c.index.reset()
	c.mu.Unlock()

	if len(all) == 0 {
		return
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	if err := c.client.Del(context.Background(), keys...).Err(); err != nil {
		logrus.Warnf("rule cache invalidate all: %v", err)
	}
}
