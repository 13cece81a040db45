package rule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a rule ID does not exist in a store.
var ErrNotFound = errors.New("rule not found")

// ErrReadOnly is returned by stores that only load rules (file-backed).
var ErrReadOnly = errors.New("rule store is read-only")

// Store is the persistence collaborator the engine consumes. The engine never
// persists rules itself; it only reads them and signals cache invalidation
// when an external authoring surface mutates them.
type Store interface {
	Create(ctx context.Context, r *Rule) error
	Get(ctx context.Context, id string) (*Rule, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id string) error
	// ListActive returns all rules with the active flag set.
	ListActive(ctx context.Context) ([]*Rule, error)
}

// MemoryStore is a thread-safe in-memory Store, used in tests and as the
// default for embedded deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]*Rule)}
}

func (s *MemoryStore) Create(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if _, exists := s.rules[r.ID]; exists {
		return fmt.Errorf("rule %s already exists", r.ID)
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[r.ID] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) Update(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNotFound)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	s.rules[r.ID] = r
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, r := range s.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}
