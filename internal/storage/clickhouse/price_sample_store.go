package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/observability"
	"dlmm-rebalancer/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertBulk adds multiple samples. Fails entire batch on duplicate
// (pool, timestamp_ms).
func (s *PriceSampleStore) InsertBulk(ctx context.Context, samples []*domain.PriceSample) (err error) {
	if len(samples) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "insert_price_samples", time.Since(start).Seconds(), err) }()

	// Check for intra-batch duplicates
	type key struct {
		pool        string
		timestampMs int64
	}
	seen := make(map[key]struct{})
	for _, p := range samples {
		k := key{p.Pool, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range samples {
		exists, err := s.exists(ctx, p.Pool, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (
			pool, timestamp_ms, active_id, price
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range samples {
		err = batch.Append(p.Pool, p.TimestampMs, p.ActiveID, p.Price)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves samples for a pool within [start, end]
// (inclusive, ms), ordered by timestamp ASC.
func (s *PriceSampleStore) GetByTimeRange(ctx context.Context, pool string, start, end int64) (_ []*domain.PriceSample, err error) {
	began := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "get_price_samples", time.Since(began).Seconds(), err) }()

	query := `
		SELECT pool, timestamp_ms, active_id, price
		FROM price_samples
		WHERE pool = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, pool, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

// exists checks if a sample with the given key exists.
func (s *PriceSampleStore) exists(ctx context.Context, pool string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_samples
		WHERE pool = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, pool, timestampMs).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows the scanners need.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanPriceSamples scans multiple rows.
func scanPriceSamples(rows chRows) ([]*domain.PriceSample, error) {
	var samples []*domain.PriceSample

	for rows.Next() {
		var p domain.PriceSample

		err := rows.Scan(&p.Pool, &p.TimestampMs, &p.ActiveID, &p.Price)
		if err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}

		samples = append(samples, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}

	return samples, nil
}
