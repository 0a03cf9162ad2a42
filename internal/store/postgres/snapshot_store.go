package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `instrument, best_bid, best_ask, mid_price,
	spread_abs, spread_pct, bid_liquidity_in_band, ask_liquidity_in_band,
	band_usd_estimate, ts`

func scanSnapshotRows(rows pgx.Rows) ([]domain.MarketSnapshot, error) {
	var snaps []domain.MarketSnapshot
	for rows.Next() {
		var s domain.MarketSnapshot
		if err := rows.Scan(
			&s.Instrument, &s.BestBid, &s.BestAsk, &s.MidPrice,
			&s.SpreadAbs, &s.SpreadPct, &s.BidLiquidityInBand,
			&s.AskLiquidityInBand, &s.BandUSDEstimate, &s.Timestamp,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// InsertBatch inserts snapshots efficiently using pgx Batch. Duplicates
// (same instrument and timestamp) are silently skipped via ON CONFLICT DO
// NOTHING, so replaying a flush after a partial failure is safe.
func (s *SnapshotStore) InsertBatch(ctx context.Context, snaps []domain.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO market_snapshots (
			instrument, best_bid, best_ask, mid_price,
			spread_abs, spread_pct, bid_liquidity_in_band,
			ask_liquidity_in_band, band_usd_estimate, ts
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10
		) ON CONFLICT (instrument, ts) DO NOTHING`

	for _, snap := range snaps {
		batch.Queue(query,
			snap.Instrument, snap.BestBid, snap.BestAsk, snap.MidPrice,
			snap.SpreadAbs, snap.SpreadPct, snap.BidLiquidityInBand,
			snap.AskLiquidityInBand, snap.BandUSDEstimate, snap.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns up to limit snapshots for an instrument, newest first.
func (s *SnapshotStore) ListRecent(ctx context.Context, instrument string, limit int) ([]domain.MarketSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + snapshotSelectCols + `
		FROM market_snapshots
		WHERE instrument = $1
		ORDER BY ts DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent snapshots: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent snapshots: %w", err)
	}
	return snaps, nil
}

// DeleteBefore deletes all snapshots older than the given time. Returns the
// number deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_snapshots WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
