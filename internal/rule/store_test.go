package rule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := &Rule{Name: "r1", TriggerType: TriggerCustomSignal, Active: true}
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == "" {
		t.Fatal("create should assign an ID")
	}
	if r.CreatedAt.IsZero() || r.UpdatedAt.IsZero() {
		t.Fatal("create should set timestamps")
	}

	if err := s.Create(ctx, &Rule{ID: r.ID}); err == nil {
		t.Fatal("duplicate create should fail")
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil || got.Name != "r1" {
		t.Fatalf("get = %v, %v", got, err)
	}

	r.Name = "renamed"
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("list active = %v, %v", active, err)
	}

	if err := s.Delete(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
}

const rulesYAML = `
version: "2.0.0"
rules:
  - id: welcome
    name: welcome mail
    trigger_type: entity_lifecycle
    trigger_config:
      model: user
      events: [created]
    is_active: true
    actions:
      - id: mail
        action_type: email
        action_config: {to: "{{email}}", subject: "welcome"}
        is_active: true
  - id: disabled
    name: disabled rule
    trigger_type: custom_signal
    trigger_config: {signal: ping}
    is_active: false
`

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func TestFileStoreLoad(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(writeRulesFile(t, rulesYAML))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "welcome" {
		t.Fatalf("active = %v", active)
	}

	if _, err := s.Get(ctx, "disabled"); err != nil {
		t.Fatalf("inactive rules are still addressable by id: %v", err)
	}

	if err := s.Create(ctx, &Rule{}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("create on file store = %v, want ErrReadOnly", err)
	}
}

func TestFileStoreReloadNotifies(t *testing.T) {
	path := writeRulesFile(t, rulesYAML)
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	reloaded := 0
	s.OnReload(func() { reloaded++ })

	if err := os.WriteFile(path, []byte(rulesYAML), 0o644); err != nil {
		t.Fatalf("rewrite rules: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded != 1 {
		t.Fatalf("reload callbacks fired %d times, want 1", reloaded)
	}
}

func TestFileStoreRejectsInvalidFile(t *testing.T) {
	_, err := NewFileStore(writeRulesFile(t, `
version: "2.0.0"
rules:
  - name: ""
    trigger_type: bogus
`))
	if err == nil {
		t.Fatal("invalid rule file should fail to load")
	}
}
