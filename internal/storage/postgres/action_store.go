package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// ActionStore implements storage.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

const actionColumns = `
	action_id, position_id, pool, kind, reason,
	old_lower, old_upper, new_lower, new_upper,
	status, error, created_at
`

// Insert appends an action record. Returns ErrDuplicateKey if action_id exists.
func (s *ActionStore) Insert(ctx context.Context, a *domain.RebalanceAction) error {
	query := `
		INSERT INTO rebalance_actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var newLower, newUpper *int32
	if a.NewRange != nil {
		newLower = &a.NewRange.Lower
		newUpper = &a.NewRange.Upper
	}

	_, err := s.pool.Exec(ctx, query,
		a.ActionID,
		a.PositionID,
		a.Pool,
		string(a.Kind),
		a.Reason,
		a.OldRange.Lower,
		a.OldRange.Upper,
		newLower,
		newUpper,
		string(a.Status),
		a.Error,
		a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetByPositionID retrieves all actions for a position, ordered by created_at ASC.
func (s *ActionStore) GetByPositionID(ctx context.Context, positionID string) ([]*domain.RebalanceAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM rebalance_actions
		WHERE position_id = $1
		ORDER BY created_at ASC, action_id ASC
	`

	rows, err := s.pool.Query(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("get actions by position: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// GetRecent retrieves the latest actions across all positions,
// ordered by created_at DESC, at most limit records.
func (s *ActionStore) GetRecent(ctx context.Context, limit int) ([]*domain.RebalanceAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM rebalance_actions
		ORDER BY created_at DESC, action_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// scanAction scans a single row into a RebalanceAction.
func scanAction(row pgx.Row) (*domain.RebalanceAction, error) {
	var a domain.RebalanceAction
	var kindStr, statusStr string
	var newLower, newUpper *int32

	err := row.Scan(
		&a.ActionID,
		&a.PositionID,
		&a.Pool,
		&kindStr,
		&a.Reason,
		&a.OldRange.Lower,
		&a.OldRange.Upper,
		&newLower,
		&newUpper,
		&statusStr,
		&a.Error,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.ActionKind(kindStr)
	a.Status = domain.ActionStatus(statusStr)
	if newLower != nil && newUpper != nil {
		a.NewRange = &domain.BinRange{Lower: *newLower, Upper: *newUpper}
	}
	return &a, nil
}

// scanActions scans multiple rows into a slice of RebalanceAction.
func scanActions(rows pgx.Rows) ([]*domain.RebalanceAction, error) {
	var actions []*domain.RebalanceAction

	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}

	return actions, nil
}
