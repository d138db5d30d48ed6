package book

import (
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/token"
)

// plannedFill is one slice of a market order, resolved against a resting
// order before any state is touched.
type plannedFill struct {
	orderID uint64
	maker   state.Address
	price   fixed.Amount
	volume  fixed.Amount
	pay     fixed.Amount
}

// MarketBuy buys up to maxVolume of the market's dynamic token against
// resting sells priced at or below priceLimit, paying each resting order's
// own price. The required quote payment depends on book depth, so funding
// is checked against the volume actually matched; on failure nothing is
// applied.
func (b *Book) MarketBuy(ctx state.Context, index int, maxVolume, priceLimit fixed.Amount) error {
	st, mkt, err := b.market(index)
	if err != nil {
		return err
	}
	if !maxVolume.IsPositive() || !priceLimit.IsPositive() {
		return ErrInvalidPriceOrVolume
	}

	plan, totalPay := b.planFills(b.sells, st.sellHead, maxVolume, func(p fixed.Amount) bool {
		return p.Cmp(priceLimit) <= 0
	})
	if len(plan) == 0 {
		return nil
	}
	pending, err := b.planRollover(ctx, st, mkt)
	if err != nil {
		return err
	}
	// Single pull covers every planned slice; this is where an
	// underfunded or under-approved taker fails, before any fill lands.
	if err := b.quote.TransferFrom(ctx.As(b.addr), ctx.Caller, b.addr, totalPay); err != nil {
		return err
	}
	epoch := b.applyRollover(ctx, st, mkt, index, pending)
	fills := make([]Fill, 0, len(plan))
	for _, f := range plan {
		resting := b.sells[f.orderID]
		mustTransfer(b.quote.Transfer(ctx.As(b.addr), f.maker, f.pay))
		mustTransfer(mkt.Dynamic.TransferUnits(ctx.As(b.addr), ctx.Caller, releaseEscrow(resting, f.volume)))
		fill := Fill{
			Index:   index,
			Side:    SideSell,
			OrderID: f.orderID,
			Maker:   f.maker,
			Taker:   ctx.Caller,
			Price:   f.price,
			Volume:  f.volume,
			Time:    ctx.Now,
		}
		b.settleFill(ctx, st, fill)
		fills = append(fills, fill)
		resting.Volume = resting.Volume.Sub(f.volume)
		if resting.Volume.IsZero() {
			b.unlinkSell(st, resting)
		}
	}
	b.emitFills(epoch, fills)
	return nil
}

// MarketSell sells up to maxVolume of the dynamic token into resting buys
// priced at or above priceLimit.
func (b *Book) MarketSell(ctx state.Context, index int, maxVolume, priceLimit fixed.Amount) error {
	st, mkt, err := b.market(index)
	if err != nil {
		return err
	}
	if !maxVolume.IsPositive() || !priceLimit.IsPositive() {
		return ErrInvalidPriceOrVolume
	}

	plan, _ := b.planFills(b.buys, st.buyHead, maxVolume, func(p fixed.Amount) bool {
		return p.Cmp(priceLimit) >= 0
	})
	if len(plan) == 0 {
		return nil
	}
	pending, err := b.planRollover(ctx, st, mkt)
	if err != nil {
		return err
	}
	totalVolume := fixed.Zero()
	for _, f := range plan {
		totalVolume = totalVolume.Add(f.volume)
	}
	// The matched volume is known now; fail before any fill is applied,
	// against the multiplier the fills will settle under.
	effMult := b.effectiveMultiplier(mkt, pending)
	if effMult.IsZero() {
		return token.ErrZeroMultiplier
	}
	if mkt.Dynamic.Allowance(ctx.Caller, b.addr).Cmp(totalVolume) < 0 {
		return state.ErrInsufficientAllowance
	}
	if mkt.Dynamic.InternalBalanceOf(ctx.Caller).MulDown(effMult).Cmp(totalVolume) < 0 {
		return state.ErrInsufficientBalance
	}
	epoch := b.applyRollover(ctx, st, mkt, index, pending)
	fills := make([]Fill, 0, len(plan))
	for _, f := range plan {
		resting := b.buys[f.orderID]
		// Dynamic moves straight from the taker to each maker; the
		// maker's escrowed quote comes back from the book.
		mustTransfer(mkt.Dynamic.TransferFrom(ctx.As(b.addr), ctx.Caller, f.maker, f.volume))
		mustTransfer(b.quote.Transfer(ctx.As(b.addr), ctx.Caller, f.pay))
		fill := Fill{
			Index:   index,
			Side:    SideBuy,
			OrderID: f.orderID,
			Maker:   f.maker,
			Taker:   ctx.Caller,
			Price:   f.price,
			Volume:  f.volume,
			Time:    ctx.Now,
		}
		b.settleFill(ctx, st, fill)
		fills = append(fills, fill)
		resting.Volume = resting.Volume.Sub(f.volume)
		if resting.Volume.IsZero() {
			b.unlinkBuy(st, resting)
		}
	}
	b.emitFills(epoch, fills)
	return nil
}

// planFills walks a side from its head, slicing fills while the resting
// price passes the limit predicate and volume demand remains. The walk is
// read-only; the list cannot change underneath it.
func (b *Book) planFills(arena map[uint64]*Order, head uint64, maxVolume fixed.Amount, priceOK func(fixed.Amount) bool) ([]plannedFill, fixed.Amount) {
	var plan []plannedFill
	totalPay := fixed.Zero()
	remaining := maxVolume
	for cur := head; cur != 0 && remaining.IsPositive(); {
		node := arena[cur]
		if !priceOK(node.Price) {
			break
		}
		fill := remaining
		if node.Volume.Cmp(fill) < 0 {
			fill = node.Volume
		}
		pay := fill.MulDown(node.Price)
		plan = append(plan, plannedFill{
			orderID: node.ID,
			maker:   node.Maker,
			price:   node.Price,
			volume:  fill,
			pay:     pay,
		})
		totalPay = totalPay.Add(pay)
		remaining = remaining.Sub(fill)
		cur = node.Next
	}
	return plan, totalPay
}
