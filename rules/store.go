package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scorpius-io/rule-engine/rerr"
)

// store is the long-lived connection pool to the rules table (spec §6:
// one table, read-only from the catalog's point of view). Only the
// catalog reload path borrows connections from this pool (spec §5).
type store struct {
	pool *pgxpool.Pool
}

// NewStore opens a pool sized by maxConns against postgresURL.
func NewStore(ctx context.Context, postgresURL string, maxConns int32) (*store, error) {
	cfg, err := pgxpool.ParseConfig(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres_url: %v", rerr.ErrConfig, err)
	}
	cfg.MaxConns = maxConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to rule store: %v", rerr.ErrConfig, err)
	}
	return &store{pool: pool}, nil
}

func (s *store) Close() {
	s.pool.Close()
}

// LoadEnabledRules implements Store for Catalog.Reload: it queries every
// row with enabled = true and deserializes the conditions/actions jsonb
// columns into their tagged-union Go types.
func (s *store) LoadEnabledRules(ctx context.Context) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, conditions, actions, enabled, created_at, updated_at
		FROM rules
		WHERE enabled = true
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query rules: %v", rerr.ErrCatalog, err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			id                     uuid.UUID
			name, description      string
			conditionsRaw, actionsRaw []byte
			enabled                bool
			createdAt, updatedAt   time.Time
		)
		if err := rows.Scan(&id, &name, &description, &conditionsRaw, &actionsRaw, &enabled, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan rule row: %v", rerr.ErrCatalog, err)
		}

		var conditions ConditionList
		if len(conditionsRaw) > 0 {
			if err := json.Unmarshal(conditionsRaw, &conditions); err != nil {
				return nil, fmt.Errorf("%w: rule %s: bad conditions: %v", rerr.ErrCatalog, id, err)
			}
		}
		var actions ActionList
		if len(actionsRaw) > 0 {
			if err := json.Unmarshal(actionsRaw, &actions); err != nil {
				return nil, fmt.Errorf("%w: rule %s: bad actions: %v", rerr.ErrCatalog, id, err)
			}
		}

		out = append(out, Rule{
			ID:          id,
			Name:        name,
			Description: description,
			Conditions:  []Condition(conditions),
			Actions:     []Action(actions),
			Enabled:     enabled,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rule rows: %v", rerr.ErrCatalog, err)
	}
	return out, nil
}
