package storage

import (
	"context"

	"dlmm-rebalancer/internal/domain"
)

// PositionStore provides access to monitored position storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
	Insert(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.Position, error)

	// Update replaces a stored position. Returns ErrNotFound if not exists.
	Update(ctx context.Context, p *domain.Position) error

	// Delete removes a position. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, positionID string) error

	// List retrieves all positions, ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.Position, error)

	// ListByPool retrieves all positions on a pool, ordered by created_at ASC.
	ListByPool(ctx context.Context, pool string) ([]*domain.Position, error)
}

// StopLossConfigStore provides access to per-position stop-loss configs.
type StopLossConfigStore interface {
	// Upsert creates or replaces the config for its position.
	Upsert(ctx context.Context, c *domain.StopLossConfig) error

	// GetByPositionID retrieves the config guarding a position.
	// Returns ErrNotFound if not exists.
	GetByPositionID(ctx context.Context, positionID string) (*domain.StopLossConfig, error)

	// Delete removes the config for a position. Deleting a missing config
	// is not an error: configs are removed together with their position.
	Delete(ctx context.Context, positionID string) error
}

// ActionStore provides access to the append-only rebalance action log.
type ActionStore interface {
	// Insert appends an action record. Returns ErrDuplicateKey if action_id exists.
	Insert(ctx context.Context, a *domain.RebalanceAction) error

	// GetByPositionID retrieves all actions for a position, ordered by created_at ASC.
	GetByPositionID(ctx context.Context, positionID string) ([]*domain.RebalanceAction, error)

	// GetRecent retrieves the latest actions across all positions,
	// ordered by created_at DESC, at most limit records.
	GetRecent(ctx context.Context, limit int) ([]*domain.RebalanceAction, error)
}

// AlertStore provides access to the alert log.
type AlertStore interface {
	// Insert appends an alert. Returns ErrDuplicateKey if alert_id exists.
	Insert(ctx context.Context, a *domain.Alert) error

	// ListUnread retrieves all unread alerts, ordered by created_at ASC.
	ListUnread(ctx context.Context) ([]*domain.Alert, error)

	// GetRecent retrieves the latest alerts, ordered by created_at DESC,
	// at most limit records.
	GetRecent(ctx context.Context, limit int) ([]*domain.Alert, error)

	// MarkRead sets the read flag on an alert. Returns ErrNotFound if not exists.
	MarkRead(ctx context.Context, alertID string) error
}

// PriceSampleStore provides access to the pool price sample timeseries.
type PriceSampleStore interface {
	// InsertBulk adds multiple samples. Fails entire batch on duplicate
	// (pool, timestamp_ms).
	InsertBulk(ctx context.Context, samples []*domain.PriceSample) error

	// GetByTimeRange retrieves samples for a pool within [start, end]
	// (inclusive, ms), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, pool string, start, end int64) ([]*domain.PriceSample, error)
}
