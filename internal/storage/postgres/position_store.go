package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, pool, owner, lower_bin, upper_bin,
	amount_x, amount_y, fees_x, fees_y,
	deposit_price, deposit_value, state, created_at, updated_at
`

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists
// and ErrInvalidInput for malformed positions.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PositionID,
		p.Pool,
		p.Owner,
		p.LowerBin,
		p.UpperBin,
		int64(p.AmountX),
		int64(p.AmountY),
		int64(p.FeesX),
		int64(p.FeesY),
		p.DepositPrice,
		p.DepositValue,
		string(p.State),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE position_id = $1
	`

	row := s.pool.QueryRow(ctx, query, positionID)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// Update replaces a stored position. Returns ErrNotFound if not exists
// and ErrInvalidInput for malformed positions.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		UPDATE positions SET
			pool = $2, owner = $3, lower_bin = $4, upper_bin = $5,
			amount_x = $6, amount_y = $7, fees_x = $8, fees_y = $9,
			deposit_price = $10, deposit_value = $11, state = $12, updated_at = $13
		WHERE position_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		p.PositionID,
		p.Pool,
		p.Owner,
		p.LowerBin,
		p.UpperBin,
		int64(p.AmountX),
		int64(p.AmountY),
		int64(p.FeesX),
		int64(p.FeesY),
		p.DepositPrice,
		p.DepositValue,
		string(p.State),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Delete(ctx context.Context, positionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE position_id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all positions, ordered by created_at ASC.
func (s *PositionStore) List(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		ORDER BY created_at ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListByPool retrieves all positions on a pool, ordered by created_at ASC.
func (s *PositionStore) ListByPool(ctx context.Context, pool string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE pool = $1
		ORDER BY created_at ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("list positions by pool: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var stateStr string
	var amountX, amountY, feesX, feesY int64

	err := row.Scan(
		&p.PositionID,
		&p.Pool,
		&p.Owner,
		&p.LowerBin,
		&p.UpperBin,
		&amountX,
		&amountY,
		&feesX,
		&feesY,
		&p.DepositPrice,
		&p.DepositValue,
		&stateStr,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.AmountX = uint64(amountX)
	p.AmountY = uint64(amountY)
	p.FeesX = uint64(feesX)
	p.FeesY = uint64(feesY)
	p.State = domain.PositionState(stateStr)
	return &p, nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
