package book

import (
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// ModifyBuy changes a resting buy's volume and price. The quote escrow
// delta is settled (extra pull or partial refund); a price change is a
// cancel-and-replace that loses time priority.
func (b *Book) ModifyBuy(ctx state.Context, id uint64, newVolume, newPrice fixed.Amount) error {
	order, ok := b.buys[id]
	if !ok || order.Tombstoned() {
		return ErrOrderNotFound
	}
	if order.Maker != ctx.Caller {
		return ErrNotMaker
	}
	if !newVolume.IsPositive() || !newPrice.IsPositive() {
		return ErrInvalidPriceOrVolume
	}
	st := &b.states[order.Index]

	oldEscrow := order.Volume.MulDown(order.Price)
	newEscrow := newVolume.MulDown(newPrice)
	if err := b.settleEscrowDelta(ctx, b.quote, oldEscrow, newEscrow); err != nil {
		return err
	}

	if !order.Price.Equal(newPrice) {
		reinsert := *order
		b.unlink(b.buys, &st.buyHead, order)
		reinsert.Price = newPrice
		reinsert.Volume = newVolume
		reinsert.Prev, reinsert.Next = 0, 0
		b.buys[reinsert.ID] = &reinsert
		b.insertBuy(st, &reinsert, 0)
		return nil
	}
	order.Volume = newVolume
	return nil
}

// ModifySell changes a resting sell's volume and price. The dynamic-token
// escrow delta is the volume difference; price only affects placement.
func (b *Book) ModifySell(ctx state.Context, id uint64, newVolume, newPrice fixed.Amount) error {
	order, ok := b.sells[id]
	if !ok || order.Tombstoned() {
		return ErrOrderNotFound
	}
	if order.Maker != ctx.Caller {
		return ErrNotMaker
	}
	if !newVolume.IsPositive() || !newPrice.IsPositive() {
		return ErrInvalidPriceOrVolume
	}
	st := &b.states[order.Index]
	mkt := &b.markets[order.Index]

	if err := b.settleDynamicEscrowDelta(ctx, mkt, order, newVolume); err != nil {
		return err
	}

	if !order.Price.Equal(newPrice) {
		reinsert := *order
		b.unlink(b.sells, &st.sellHead, order)
		reinsert.Price = newPrice
		reinsert.Volume = newVolume
		reinsert.Prev, reinsert.Next = 0, 0
		b.sells[reinsert.ID] = &reinsert
		b.insertSell(st, &reinsert, 0)
		return nil
	}
	order.Volume = newVolume
	return nil
}

// DeleteBuy cancels a resting buy, refunding its remaining quote escrow.
func (b *Book) DeleteBuy(ctx state.Context, id uint64) error {
	order, ok := b.buys[id]
	if !ok || order.Tombstoned() {
		return ErrOrderNotFound
	}
	if order.Maker != ctx.Caller {
		return ErrNotMaker
	}
	refund := order.Volume.MulDown(order.Price)
	st := &b.states[order.Index]
	b.unlinkBuy(st, order)
	if refund.IsPositive() {
		mustTransfer(b.quote.Transfer(ctx.As(b.addr), ctx.Caller, refund))
	}
	return nil
}

// DeleteSell cancels a resting sell, refunding its remaining escrowed
// dynamic volume.
func (b *Book) DeleteSell(ctx state.Context, id uint64) error {
	order, ok := b.sells[id]
	if !ok || order.Tombstoned() {
		return ErrOrderNotFound
	}
	if order.Maker != ctx.Caller {
		return ErrNotMaker
	}
	// The refund is the escrowed units themselves, so a cancel succeeds
	// under any multiplier the book has rebased through since placement.
	refund := order.EscrowUnits
	mkt := &b.markets[order.Index]
	st := &b.states[order.Index]
	b.unlinkSell(st, order)
	if refund.IsPositive() {
		mustTransfer(mkt.Dynamic.TransferUnits(ctx.As(b.addr), ctx.Caller, refund))
	}
	return nil
}

func (b *Book) settleEscrowDelta(ctx state.Context, ledger *state.Ledger, oldEscrow, newEscrow fixed.Amount) error {
	switch newEscrow.Cmp(oldEscrow) {
	case 1:
		return ledger.TransferFrom(ctx.As(b.addr), ctx.Caller, b.addr, newEscrow.Sub(oldEscrow))
	case -1:
		mustTransfer(ledger.Transfer(ctx.As(b.addr), ctx.Caller, oldEscrow.Sub(newEscrow)))
	}
	return nil
}

// settleDynamicEscrowDelta grows the order's escrow by pulling the volume
// difference at the current multiplier, or shrinks it by releasing units
// pro rata, keeping EscrowUnits in step with Volume.
func (b *Book) settleDynamicEscrowDelta(ctx state.Context, mkt *Market, order *Order, newVolume fixed.Amount) error {
	switch newVolume.Cmp(order.Volume) {
	case 1:
		delta := newVolume.Sub(order.Volume)
		if err := mkt.Dynamic.TransferFrom(ctx.As(b.addr), ctx.Caller, b.addr, delta); err != nil {
			return err
		}
		order.EscrowUnits = order.EscrowUnits.Add(delta.DivDown(mkt.Dynamic.Multiplier()))
	case -1:
		units := order.EscrowUnits.MulDivDown(order.Volume.Sub(newVolume), order.Volume)
		order.EscrowUnits = order.EscrowUnits.Sub(units)
		mustTransfer(mkt.Dynamic.TransferUnits(ctx.As(b.addr), ctx.Caller, units))
	}
	return nil
}
