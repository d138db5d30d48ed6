// Package oracle implements the price oracle: per-currency-key sources,
// spot prices with staleness gating, and a time-weighted average built
// from each source's own observed sample history.
package oracle

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// Oracle errors.
var (
	ErrUnknownKey   = errors.New("unknown currency key")
	ErrDuplicateKey = errors.New("currency key already registered")
	ErrStaleFeed    = errors.New("price feed is stale")
)

const (
	// DefaultStalenessWindow is how old a source's last update may be, in
	// seconds, before SpotPrice refuses to serve it.
	DefaultStalenessWindow = 3600

	// maxSamplesPerKey bounds the per-key history used for TWAP.
	maxSamplesPerKey = 256

	// maxTrackedKeys bounds the number of keys with live sample history.
	maxTrackedKeys = 64
)

// Source is an external price feed for a single currency key.
type Source interface {
	// Latest returns the most recent price and the time it was set.
	Latest() (price fixed.Amount, updatedAt int64, err error)
}

// sample is one observed (time, price) point of a source's history.
type sample struct {
	at    int64
	price fixed.Amount
}

// Oracle registers price sources and serves spot and TWAP prices.
type Oracle struct {
	sources   map[string]Source
	history   *lru.Cache[string, *[]sample]
	staleness int64
}

// New creates an oracle with the given staleness window in seconds.
// A non-positive window falls back to DefaultStalenessWindow.
func New(stalenessWindow int64) *Oracle {
	if stalenessWindow <= 0 {
		stalenessWindow = DefaultStalenessWindow
	}
	history, _ := lru.New[string, *[]sample](maxTrackedKeys)
	return &Oracle{
		sources:   make(map[string]Source),
		history:   history,
		staleness: stalenessWindow,
	}
}

// RegisterSource binds key to a price source. Registering an already-bound
// key fails with ErrDuplicateKey; use ReplaceSource to rebind.
func (o *Oracle) RegisterSource(key string, src Source) error {
	if _, ok := o.sources[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	o.sources[key] = src
	return nil
}

// ReplaceSource rebinds key, dropping the previous source and its history.
func (o *Oracle) ReplaceSource(key string, src Source) {
	o.sources[key] = src
	o.history.Remove(key)
}

// SpotPrice returns the source's latest price for key, recording it into
// the key's sample history. It fails with ErrStaleFeed when the source has
// not updated within the staleness window.
func (o *Oracle) SpotPrice(ctx state.Context, key string) (fixed.Amount, error) {
	src, ok := o.sources[key]
	if !ok {
		return fixed.Zero(), fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	price, updatedAt, err := src.Latest()
	if err != nil {
		return fixed.Zero(), fmt.Errorf("source for %s: %w", key, err)
	}
	if ctx.Now-updatedAt > o.staleness {
		return fixed.Zero(), fmt.Errorf("%w: %s last updated at %d, now %d", ErrStaleFeed, key, updatedAt, ctx.Now)
	}
	o.record(key, updatedAt, price)
	return price, nil
}

// TwapPrice returns the time-weighted average price over the trailing
// window seconds. With fewer than two in-window samples it falls back to
// the spot price.
func (o *Oracle) TwapPrice(ctx state.Context, key string, window int64) (fixed.Amount, error) {
	if _, ok := o.sources[key]; !ok {
		return fixed.Zero(), fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	// Refreshing spot first keeps the history current and gives the
	// fallback value when the window is underpopulated.
	spot, err := o.SpotPrice(ctx, key)
	if err != nil {
		return fixed.Zero(), err
	}
	samples := o.inWindow(key, ctx.Now-window)
	if len(samples) < 2 {
		return spot, nil
	}
	return timeWeighted(samples, ctx.Now), nil
}

// record appends an observed price point, deduplicating identical
// timestamps and truncating history to the per-key bound.
func (o *Oracle) record(key string, at int64, price fixed.Amount) {
	hist, ok := o.history.Get(key)
	if !ok {
		h := make([]sample, 0, 16)
		hist = &h
		o.history.Add(key, hist)
	}
	h := *hist
	if n := len(h); n > 0 && h[n-1].at == at {
		h[n-1].price = price
	} else {
		h = append(h, sample{at: at, price: price})
	}
	if len(h) > maxSamplesPerKey {
		h = h[len(h)-maxSamplesPerKey:]
	}
	*hist = h
}

func (o *Oracle) inWindow(key string, from int64) []sample {
	hist, ok := o.history.Get(key)
	if !ok {
		return nil
	}
	h := *hist
	i := 0
	for i < len(h) && h[i].at < from {
		i++
	}
	return h[i:]
}

// timeWeighted averages samples weighting each price by the time it was in
// force, the last one until now.
func timeWeighted(samples []sample, now int64) fixed.Amount {
	var weighted fixed.Amount
	var total int64
	for i, s := range samples {
		end := now
		if i+1 < len(samples) {
			end = samples[i+1].at
		}
		dt := end - s.at
		if dt <= 0 {
			continue
		}
		weighted = weighted.Add(s.price.MulDown(fixed.FromUnits(dt)))
		total += dt
	}
	if total == 0 {
		return samples[len(samples)-1].price
	}
	return weighted.DivDown(fixed.FromUnits(total))
}
