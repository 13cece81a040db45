package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore persists rules in a single table, with trigger config,
// conditions and actions held as JSONB columns. Schema management is the
// deployment's concern; the store assumes the table exists.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore connects to Postgres with the given DSN.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Create(ctx context.Context, r *Rule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	triggerCfg, conditions, actions, err := marshalRuleColumns(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_rules
			(id, name, description, trigger_type, trigger_config, is_active, priority, conditions, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.Name, r.Description, string(r.TriggerType), triggerCfg, r.Active, r.Priority, conditions, actions, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, trigger_type, trigger_config, is_active, priority, conditions, actions, created_at, updated_at
		FROM event_rules
		WHERE id = $1
	`, id)

	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *Rule) error {
	r.UpdatedAt = time.Now()
	triggerCfg, conditions, actions, err := marshalRuleColumns(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE event_rules
		SET name = $2, description = $3, trigger_type = $4, trigger_config = $5,
		    is_active = $6, priority = $7, conditions = $8, actions = $9, updated_at = $10
		WHERE id = $1
	`, r.ID, r.Name, r.Description, string(r.TriggerType), triggerCfg, r.Active, r.Priority, conditions, actions, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM event_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, trigger_type, trigger_config, is_active, priority, conditions, actions, created_at, updated_at
		FROM event_rules
		WHERE is_active = true
		ORDER BY priority DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r           Rule
		triggerType string
		triggerCfg  []byte
		conditions  []byte
		actions     []byte
		description sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &description, &triggerType, &triggerCfg,
		&r.Active, &r.Priority, &conditions, &actions, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Description = description.String
	r.TriggerType = TriggerType(triggerType)
	if len(triggerCfg) > 0 {
		if err := json.Unmarshal(triggerCfg, &r.TriggerConfig); err != nil {
			return nil, fmt.Errorf("decode trigger_config: %w", err)
		}
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
	}
	return &r, nil
}

func marshalRuleColumns(r *Rule) (triggerCfg, conditions, actions []byte, err error) {
	if triggerCfg, err = json.Marshal(r.TriggerConfig); err != nil {
		return nil, nil, nil, fmt.Errorf("encode trigger_config: %w", err)
	}
	if conditions, err = json.Marshal(r.Conditions); err != nil {
		return nil, nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	if actions, err = json.Marshal(r.Actions); err != nil {
		return nil, nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	return triggerCfg, conditions, actions, nil
}
