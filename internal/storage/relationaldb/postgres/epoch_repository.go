package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fxperp/fxperpd/internal/core/book"
)

// EpochRepository reads and writes closed funding epochs.
type EpochRepository struct {
	db executor
}

// NewEpochRepository creates an epoch repository over an open database.
func NewEpochRepository(db *sql.DB) *EpochRepository {
	return &EpochRepository{db: db}
}

// InsertEpoch appends one closed funding epoch.
func (r *EpochRepository) InsertEpoch(ctx context.Context, e book.EpochRollover) error {
	const q = `INSERT INTO epochs (market, closed_at, average, peg, multiplier)
		   VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, q,
		e.Index, e.ClosedAt,
		e.Average.Big().String(), e.Peg.Big().String(), e.Multiplier.Big().String())
	if err != nil {
		return fmt.Errorf("failed to insert epoch: %w", err)
	}
	return nil
}

// RecentEpochs returns up to limit closed epochs for a market, newest
// first.
func (r *EpochRepository) RecentEpochs(ctx context.Context, market, limit int) ([]book.EpochRollover, error) {
	const q = `SELECT closed_at, average, peg, multiplier
		   FROM epochs WHERE market = $1 ORDER BY id DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, market, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []book.EpochRollover
	for rows.Next() {
		var (
			closedAt       int64
			avg, peg, mult string
		)
		if err := rows.Scan(&closedAt, &avg, &peg, &mult); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		avgAmt, err := parseAmount(avg)
		if err != nil {
			return nil, err
		}
		pegAmt, err := parseAmount(peg)
		if err != nil {
			return nil, err
		}
		multAmt, err := parseAmount(mult)
		if err != nil {
			return nil, err
		}
		epochs = append(epochs, book.EpochRollover{
			Index:      market,
			ClosedAt:   closedAt,
			Average:    avgAmt,
			Peg:        pegAmt,
			Multiplier: multAmt,
		})
	}
	return epochs, rows.Err()
}
