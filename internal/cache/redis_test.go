package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
)

func redisCache(t *testing.T) (*Redis, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := seededStore(t)
	return NewRedis(store, client, time.Minute), store, mr
}

func TestRedisRulesByTrigger(t *testing.T) {
	ctx := context.Background()
	c, store, _ := redisCache(t)

	got, err := c.RulesByTrigger(ctx, rule.TriggerCustomSignal)
	if err != nil {
		t.Fatalf("RulesByTrigger: %v", err)
	}
	if len(got) != 2 || got[0].ID != "high" {
		t.Fatalf("rules = %v", got)
	}

	if _, err := c.RulesByTrigger(ctx, rule.TriggerCustomSignal); err != nil {
		t.Fatal(err)
	}
	if n := store.listCalls.Load(); n != 1 {
		t.Fatalf("store hit %d times, want 1", n)
	}
}

func TestRedisConditionsSurviveRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _, _ := redisCache(t)

	first, err := c.ConditionsFor(ctx, "low")
	if err != nil {
		t.Fatalf("ConditionsFor: %v", err)
	}
	second, err := c.ConditionsFor(ctx, "low")
	if err != nil {
		t.Fatalf("cached ConditionsFor: %v", err)
	}
	if len(second) != len(first) || second[0].Operator != rule.OpEquals {
		t.Fatalf("round-tripped conditions = %v", second)
	}
}

func TestRedisInvalidate(t *testing.T) {
	ctx := context.Background()
	c, store, _ := redisCache(t)

	if _, err := c.RulesByTrigger(ctx, rule.TriggerCustomSignal); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ConditionsFor(ctx, "low"); err != nil {
		t.Fatal(err)
	}

	c.Invalidate("low")

	before := store.listCalls.Load()
	if _, err := c.RulesByTrigger(ctx, rule.TriggerCustomSignal); err != nil {
		t.Fatal(err)
	}
	if store.listCalls.Load() != before+1 {
		t.Fatal("trigger list should recompute after invalidate")
	}
}

func TestRedisTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, store, mr := redisCache(t)

	if _, err := c.RulesByTrigger(ctx, rule.TriggerCustomSignal); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := c.RulesByTrigger(ctx, rule.TriggerCustomSignal); err != nil {
		t.Fatal(err)
	}
	if n := store.listCalls.Load(); n != 2 {
		t.Fatalf("store hit %d times, want 2 after TTL expiry", n)
	}
}
