package engine

import (
	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// LimitBuy places a limit buy, crossing resting sells first. Returns the
// resting order id, 0 if fully filled as a taker.
func (e *Engine) LimitBuy(caller state.Address, market int, price, volume fixed.Amount, insertHint uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.LimitBuy(e.ctx(caller), market, price, volume, insertHint)
}

// LimitSell places a limit sell, crossing resting buys first.
func (e *Engine) LimitSell(caller state.Address, market int, price, volume fixed.Amount, insertHint uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.LimitSell(e.ctx(caller), market, price, volume, insertHint)
}

// MarketBuy takes resting sells up to maxVolume at or below priceLimit.
func (e *Engine) MarketBuy(caller state.Address, market int, maxVolume, priceLimit fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.MarketBuy(e.ctx(caller), market, maxVolume, priceLimit)
}

// MarketSell takes resting buys up to maxVolume at or above priceLimit.
func (e *Engine) MarketSell(caller state.Address, market int, maxVolume, priceLimit fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.MarketSell(e.ctx(caller), market, maxVolume, priceLimit)
}

// ModifyBuy updates a resting buy's volume and price (maker only).
func (e *Engine) ModifyBuy(caller state.Address, id uint64, newVolume, newPrice fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.ModifyBuy(e.ctx(caller), id, newVolume, newPrice)
}

// ModifySell updates a resting sell's volume and price (maker only).
func (e *Engine) ModifySell(caller state.Address, id uint64, newVolume, newPrice fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.ModifySell(e.ctx(caller), id, newVolume, newPrice)
}

// DeleteBuy cancels a resting buy and refunds its escrow (maker only).
func (e *Engine) DeleteBuy(caller state.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.DeleteBuy(e.ctx(caller), id)
}

// DeleteSell cancels a resting sell and refunds its escrow (maker only).
func (e *Engine) DeleteSell(caller state.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.DeleteSell(e.ctx(caller), id)
}

// GetBuyOrder returns a buy order record, the zero tombstone if unknown.
func (e *Engine) GetBuyOrder(id uint64) book.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.GetBuy(id)
}

// GetSellOrder returns a sell order record, the zero tombstone if unknown.
func (e *Engine) GetSellOrder(id uint64) book.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.GetSell(id)
}

// BuyHead returns the id of a market's best resting buy, 0 if none.
func (e *Engine) BuyHead(market int) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.GetBuyHead(market)
}

// SellHead returns the id of a market's best resting sell, 0 if none.
func (e *Engine) SellHead(market int) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.GetSellHead(market)
}

// OpenOrders returns a market's resting buy and sell counts.
func (e *Engine) OpenOrders(market int) (buys, sells int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.OpenBuyOrders(market), e.book.OpenSellOrders(market)
}

// SpotPrice reads the oracle's current price for key.
func (e *Engine) SpotPrice(key string) (fixed.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle.SpotPrice(state.Context{Now: e.now()}, key)
}

// TwapPrice reads the oracle's time-weighted price for key over window
// seconds.
func (e *Engine) TwapPrice(key string, window int64) (fixed.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle.TwapPrice(state.Context{Now: e.now()}, key, window)
}
