package oracle

import (
	"errors"

	"github.com/fxperp/fxperpd/internal/core/fixed"
)

// ErrNoPrice is returned by a source that has never been set.
var ErrNoPrice = errors.New("no price set")

// SettableSource is an in-process price feed driven by an operator or a
// test fixture. Production deployments would register an adapter over an
// external aggregator instead.
type SettableSource struct {
	price     fixed.Amount
	updatedAt int64
	set       bool
}

// NewSettableSource creates an empty settable source.
func NewSettableSource() *SettableSource {
	return &SettableSource{}
}

// Set records a new price observed at the given time.
func (s *SettableSource) Set(price fixed.Amount, at int64) {
	s.price = price
	s.updatedAt = at
	s.set = true
}

// Latest implements Source.
func (s *SettableSource) Latest() (fixed.Amount, int64, error) {
	if !s.set {
		return fixed.Zero(), 0, ErrNoPrice
	}
	return s.price, s.updatedAt, nil
}
