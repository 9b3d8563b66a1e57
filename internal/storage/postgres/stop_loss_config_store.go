package postgres

import (
	"context"
	"fmt"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// StopLossConfigStore implements storage.StopLossConfigStore using PostgreSQL.
type StopLossConfigStore struct {
	pool *Pool
}

// NewStopLossConfigStore creates a new StopLossConfigStore.
func NewStopLossConfigStore(pool *Pool) *StopLossConfigStore {
	return &StopLossConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StopLossConfigStore = (*StopLossConfigStore)(nil)

// Upsert creates or replaces the config for its position. Malformed
// thresholds are rejected with ErrInvalidInput.
func (s *StopLossConfigStore) Upsert(ctx context.Context, c *domain.StopLossConfig) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO stop_loss_configs (
			position_id, enabled, loss_pct, max_il_pct, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (position_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			loss_pct = EXCLUDED.loss_pct,
			max_il_pct = EXCLUDED.max_il_pct,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		c.PositionID,
		c.Enabled,
		c.LossPct,
		c.MaxILPct,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert stop loss config: %w", err)
	}
	return nil
}

// GetByPositionID retrieves the config guarding a position.
// Returns ErrNotFound if not exists.
func (s *StopLossConfigStore) GetByPositionID(ctx context.Context, positionID string) (*domain.StopLossConfig, error) {
	query := `
		SELECT position_id, enabled, loss_pct, max_il_pct, created_at, updated_at
		FROM stop_loss_configs
		WHERE position_id = $1
	`

	var c domain.StopLossConfig
	err := s.pool.QueryRow(ctx, query, positionID).Scan(
		&c.PositionID,
		&c.Enabled,
		&c.LossPct,
		&c.MaxILPct,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get stop loss config: %w", err)
	}
	return &c, nil
}

// Delete removes the config for a position. Deleting a missing config
// is not an error.
func (s *StopLossConfigStore) Delete(ctx context.Context, positionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM stop_loss_configs WHERE position_id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("delete stop loss config: %w", err)
	}
	return nil
}
