package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

const alertColumns = `
	alert_id, severity, title, message, position_id, read, created_at
`

// Insert appends an alert. Returns ErrDuplicateKey if alert_id exists.
func (s *AlertStore) Insert(ctx context.Context, a *domain.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		a.AlertID,
		string(a.Severity),
		a.Title,
		a.Message,
		a.PositionID,
		a.Read,
		a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListUnread retrieves all unread alerts, ordered by created_at ASC.
func (s *AlertStore) ListUnread(ctx context.Context) ([]*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE read = FALSE
		ORDER BY created_at ASC, alert_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unread alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetRecent retrieves the latest alerts, ordered by created_at DESC,
// at most limit records.
func (s *AlertStore) GetRecent(ctx context.Context, limit int) ([]*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		ORDER BY created_at DESC, alert_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// MarkRead sets the read flag on an alert. Returns ErrNotFound if not exists.
func (s *AlertStore) MarkRead(ctx context.Context, alertID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET read = TRUE WHERE alert_id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanAlerts scans multiple rows into a slice of Alert.
func scanAlerts(rows pgx.Rows) ([]*domain.Alert, error) {
	var alerts []*domain.Alert

	for rows.Next() {
		var a domain.Alert
		var severityStr string

		err := rows.Scan(
			&a.AlertID,
			&severityStr,
			&a.Title,
			&a.Message,
			&a.PositionID,
			&a.Read,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}

		a.Severity = domain.AlertSeverity(severityStr)
		alerts = append(alerts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}

	return alerts, nil
}
