package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// ErrBadAmount is returned when a stored numeric cannot be read back.
var ErrBadAmount = errors.New("stored amount is not an integer")

// executor lets repositories run against either *sql.DB or *sql.Tx.
type executor interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// FillRepository reads and writes executed fills.
type FillRepository struct {
	db executor
}

// NewFillRepository creates a fill repository over an open database.
func NewFillRepository(db *sql.DB) *FillRepository {
	return &FillRepository{db: db}
}

// NewFillRepositoryWithTx creates a fill repository inside a transaction.
func NewFillRepositoryWithTx(tx *sql.Tx) *FillRepository {
	return &FillRepository{db: tx}
}

// InsertFill appends one executed fill.
func (r *FillRepository) InsertFill(ctx context.Context, f book.Fill) error {
	const q = `INSERT INTO fills (market, side, order_id, maker, taker, price, volume, fill_time)
		   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, q,
		f.Index, f.Side.String(), int64(f.OrderID),
		string(f.Maker), string(f.Taker),
		f.Price.Big().String(), f.Volume.Big().String(), f.Time)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

// RecentFills returns up to limit fills for a market, newest first.
func (r *FillRepository) RecentFills(ctx context.Context, market, limit int) ([]book.Fill, error) {
	const q = `SELECT side, order_id, maker, taker, price, volume, fill_time
		   FROM fills WHERE market = $1 ORDER BY id DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, market, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []book.Fill
	for rows.Next() {
		var (
			side         string
			orderID      int64
			maker, taker string
			price, vol   string
			fillTime     int64
		)
		if err := rows.Scan(&side, &orderID, &maker, &taker, &price, &vol, &fillTime); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		priceAmt, err := parseAmount(price)
		if err != nil {
			return nil, err
		}
		volAmt, err := parseAmount(vol)
		if err != nil {
			return nil, err
		}
		f := book.Fill{
			Index:   market,
			Side:    book.SideSell,
			OrderID: uint64(orderID),
			Maker:   state.Address(maker),
			Taker:   state.Address(taker),
			Price:   priceAmt,
			Volume:  volAmt,
			Time:    fillTime,
		}
		if side == "buy" {
			f.Side = book.SideBuy
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func parseAmount(s string) (fixed.Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fixed.Zero(), fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	return fixed.FromBig(v), nil
}
