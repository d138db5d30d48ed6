// Package book implements the on-chain-style limit order book: per-market
// price-time-priority linked lists over an id arena, limit and market
// execution with escrow, and the epoch funding accumulator that drives the
// debt multiplier.
package book

import (
	"errors"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// Order book errors.
var (
	ErrUnknownMarket        = errors.New("unknown market index")
	ErrInvalidPriceOrVolume = errors.New("price and volume must be positive")
	ErrOrderNotFound        = errors.New("order not found")
	ErrNotMaker             = errors.New("caller is not the order maker")
)

// Side distinguishes the two halves of a market's book.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Order is one resting order. Linked-list structure is kept as explicit
// prev/next ids with 0 as the "no neighbor" sentinel; tombstoned orders
// have every field zeroed and are unlinked. Buy and sell ids are separate
// monotone sequences, both starting at 1.
type Order struct {
	ID     uint64
	Maker  state.Address
	Index  int
	Side   Side
	Price  fixed.Amount
	Volume fixed.Amount
	// EscrowUnits is the dynamic-token principal held for a resting sell,
	// fixed at pull time. Refunds and payouts release these exact units,
	// so a multiplier move between placement and settlement can neither
	// strand nor overdraw the book's escrow. Zero for buys.
	EscrowUnits fixed.Amount
	Prev        uint64
	Next        uint64
}

// Tombstoned reports whether the order was cancelled or fully filled.
func (o Order) Tombstoned() bool {
	return o.Maker.IsZero()
}

// Fill describes one executed match, always at the resting order's price.
type Fill struct {
	Index   int
	Side    Side // side of the resting order that was hit
	OrderID uint64
	Maker   state.Address
	Taker   state.Address
	Price   fixed.Amount
	Volume  fixed.Amount
	Time    int64
}

// FillRecorder receives settled fills. Recorders run after all ledger and
// list state is consistent; a recorder cannot observe or abort a trade.
type FillRecorder interface {
	RecordFill(Fill)
}

// EpochRollover describes one closed funding epoch: the mean sampled
// trade price it observed, the peg it was judged against, and the
// multiplier the close produced.
type EpochRollover struct {
	Index      int
	ClosedAt   int64
	Average    fixed.Amount
	Peg        fixed.Amount
	Multiplier fixed.Amount
}

// EpochRecorder receives closed epochs, after the closing trade has fully
// settled.
type EpochRecorder interface {
	RecordEpoch(EpochRollover)
}

// MultiRecorder fans each fill out to several recorders in order.
type MultiRecorder []FillRecorder

// RecordFill implements FillRecorder.
func (m MultiRecorder) RecordFill(f Fill) {
	for _, r := range m {
		r.RecordFill(f)
	}
}
