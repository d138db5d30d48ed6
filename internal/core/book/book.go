package book

import (
	"fmt"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/oracle"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/token"
	"github.com/fxperp/fxperpd/internal/core/vault"
)

// Market binds one synthetic currency to its dynamic token, the funding
// authority of its vault ledger, and the oracle key its peg is read from.
type Market struct {
	Dynamic *token.Dynamic
	Funding *vault.FundingAuthority
	PegKey  string
}

// FundingConfig gates the epoch accumulator.
type FundingConfig struct {
	// EpochLength is the funding epoch in seconds.
	EpochLength int64
	// MinSampleInterval is the minimum spacing between recorded fill
	// prices; fills inside the interval still execute but are not sampled.
	MinSampleInterval int64
}

// marketState is the per-market book and accumulator state.
type marketState struct {
	buyHead              uint64
	sellHead             uint64
	openBuyOrders        int
	openSellOrders       int
	priceCumulative      fixed.Amount
	totalPriceDataPoints int64
	lastSampleTime       int64
	lastEpochTime        int64
}

// Book is the order book engine over every configured market. Escrowed
// funds are held under the book's own address on the quote and dynamic
// ledgers.
type Book struct {
	addr    state.Address
	quote   *state.Ledger
	oracle  *oracle.Oracle
	markets []Market
	funding FundingConfig

	states  []marketState
	buys    map[uint64]*Order
	sells   map[uint64]*Order
	buySeq  uint64
	sellSeq uint64

	recorder FillRecorder
	epochs   EpochRecorder
}

// New creates an order book trading each market's dynamic token against
// the quote collateral token.
func New(addr state.Address, quote *state.Ledger, orc *oracle.Oracle, markets []Market, funding FundingConfig) *Book {
	return &Book{
		addr:    addr,
		quote:   quote,
		oracle:  orc,
		markets: markets,
		funding: funding,
		states:  make([]marketState, len(markets)),
		buys:    make(map[uint64]*Order),
		sells:   make(map[uint64]*Order),
	}
}

// SetRecorder installs an optional fill recorder (history store, feed).
func (b *Book) SetRecorder(r FillRecorder) {
	b.recorder = r
}

// SetEpochRecorder installs an optional funding epoch recorder.
func (b *Book) SetEpochRecorder(r EpochRecorder) {
	b.epochs = r
}

// Address returns the book's escrow address.
func (b *Book) Address() state.Address { return b.addr }

func (b *Book) market(index int) (*marketState, *Market, error) {
	if index < 0 || index >= len(b.markets) {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownMarket, index)
	}
	return &b.states[index], &b.markets[index], nil
}

// GetBuy returns the buy order record, or the zero tombstone.
func (b *Book) GetBuy(id uint64) Order {
	if o, ok := b.buys[id]; ok {
		return *o
	}
	return Order{}
}

// GetSell returns the sell order record, or the zero tombstone.
func (b *Book) GetSell(id uint64) Order {
	if o, ok := b.sells[id]; ok {
		return *o
	}
	return Order{}
}

// GetBuyHead returns the id of the highest-priced resting buy (0 if none).
func (b *Book) GetBuyHead(index int) uint64 {
	if index < 0 || index >= len(b.states) {
		return 0
	}
	return b.states[index].buyHead
}

// GetSellHead returns the id of the lowest-priced resting sell (0 if none).
func (b *Book) GetSellHead(index int) uint64 {
	if index < 0 || index >= len(b.states) {
		return 0
	}
	return b.states[index].sellHead
}

// OpenBuyOrders returns the number of resting buys in a market.
func (b *Book) OpenBuyOrders(index int) int {
	if index < 0 || index >= len(b.states) {
		return 0
	}
	return b.states[index].openBuyOrders
}

// OpenSellOrders returns the number of resting sells in a market.
func (b *Book) OpenSellOrders(index int) int {
	if index < 0 || index >= len(b.states) {
		return 0
	}
	return b.states[index].openSellOrders
}

// PriceCumulative returns the current epoch's summed sampled fill prices.
func (b *Book) PriceCumulative(index int) fixed.Amount {
	if index < 0 || index >= len(b.states) {
		return fixed.Zero()
	}
	return b.states[index].priceCumulative
}

// TotalPriceDataPoints returns the current epoch's sample count.
func (b *Book) TotalPriceDataPoints(index int) int64 {
	if index < 0 || index >= len(b.states) {
		return 0
	}
	return b.states[index].totalPriceDataPoints
}

// LimitSell escrows volume of the market's dynamic token, crosses the buy
// side while it bids at or above price, and rests any remainder. Returns
// the resting order id, or 0 when the order fully filled as a taker.
func (b *Book) LimitSell(ctx state.Context, index int, price, volume fixed.Amount, insertHint uint64) (uint64, error) {
	st, mkt, err := b.market(index)
	if err != nil {
		return 0, err
	}
	if !price.IsPositive() || !volume.IsPositive() {
		return 0, ErrInvalidPriceOrVolume
	}
	pending, err := b.planRollover(ctx, st, mkt)
	if err != nil {
		return 0, err
	}
	crossing := st.buyHead != 0 && b.buys[st.buyHead].Price.Cmp(price) >= 0
	effMult := mkt.Dynamic.Multiplier()
	if crossing {
		effMult = b.effectiveMultiplier(mkt, pending)
	}
	if effMult.IsZero() {
		return 0, token.ErrZeroMultiplier
	}
	// Funding for the full volume is checked before anything moves, at the
	// multiplier the fills will settle under; crossed slices transfer
	// straight from the seller and only the resting remainder is escrowed,
	// so nothing below can fail midway.
	if mkt.Dynamic.Allowance(ctx.Caller, b.addr).Cmp(volume) < 0 {
		return 0, state.ErrInsufficientAllowance
	}
	if mkt.Dynamic.InternalBalanceOf(ctx.Caller).MulDown(effMult).Cmp(volume) < 0 {
		return 0, state.ErrInsufficientBalance
	}
	var epoch *EpochRollover
	if crossing {
		epoch = b.applyRollover(ctx, st, mkt, index, pending)
	}

	var fills []Fill
	remaining := volume
	for remaining.IsPositive() && st.buyHead != 0 {
		head := b.buys[st.buyHead]
		if head.Price.Cmp(price) < 0 {
			break
		}
		fill := remaining
		if head.Volume.Cmp(fill) < 0 {
			fill = head.Volume
		}
		pay := fill.MulDown(head.Price)
		// Dynamic straight from the seller to the resting buyer; the
		// buyer's escrowed quote to the seller, at the resting price.
		mustTransfer(mkt.Dynamic.TransferFrom(ctx.As(b.addr), ctx.Caller, head.Maker, fill))
		mustTransfer(b.quote.Transfer(ctx.As(b.addr), ctx.Caller, pay))
		f := Fill{
			Index:   index,
			Side:    SideBuy,
			OrderID: head.ID,
			Maker:   head.Maker,
			Taker:   ctx.Caller,
			Price:   head.Price,
			Volume:  fill,
			Time:    ctx.Now,
		}
		b.settleFill(ctx, st, f)
		fills = append(fills, f)
		remaining = remaining.Sub(fill)
		head.Volume = head.Volume.Sub(fill)
		if head.Volume.IsZero() {
			b.unlinkBuy(st, head)
		}
	}
	if !remaining.IsPositive() {
		b.emitFills(epoch, fills)
		return 0, nil
	}

	mustTransfer(mkt.Dynamic.TransferFrom(ctx.As(b.addr), ctx.Caller, b.addr, remaining))
	b.sellSeq++
	order := &Order{
		ID:     b.sellSeq,
		Maker:  ctx.Caller,
		Index:  index,
		Side:   SideSell,
		Price:  price,
		Volume: remaining,
		// The pull just moved exactly these units; payouts and refunds
		// release them instead of re-converting reported amounts.
		EscrowUnits: remaining.DivDown(effMult),
	}
	b.sells[order.ID] = order
	b.insertSell(st, order, insertHint)
	st.openSellOrders++
	b.emitFills(epoch, fills)
	return order.ID, nil
}

// LimitBuy escrows volume*price/SCALE of the quote token, crosses the sell
// side while it asks at or below price, and rests any remainder. Price
// improvement against cheaper resting sells is refunded to the buyer.
// Returns the resting order id, or 0 when the order fully filled.
func (b *Book) LimitBuy(ctx state.Context, index int, price, volume fixed.Amount, insertHint uint64) (uint64, error) {
	st, mkt, err := b.market(index)
	if err != nil {
		return 0, err
	}
	if !price.IsPositive() || !volume.IsPositive() {
		return 0, ErrInvalidPriceOrVolume
	}
	pending, err := b.planRollover(ctx, st, mkt)
	if err != nil {
		return 0, err
	}
	escrow := volume.MulDown(price)
	if err := b.quote.TransferFrom(ctx.As(b.addr), ctx.Caller, b.addr, escrow); err != nil {
		return 0, err
	}
	var epoch *EpochRollover
	if st.sellHead != 0 && b.sells[st.sellHead].Price.Cmp(price) <= 0 {
		epoch = b.applyRollover(ctx, st, mkt, index, pending)
	}

	var fills []Fill
	remaining := volume
	refund := fixed.Zero()
	for remaining.IsPositive() && st.sellHead != 0 {
		head := b.sells[st.sellHead]
		if head.Price.Cmp(price) > 0 {
			break
		}
		fill := remaining
		if head.Volume.Cmp(fill) < 0 {
			fill = head.Volume
		}
		pay := fill.MulDown(head.Price)
		// The buyer escrowed fill*price for this slice but pays the
		// resting price; the difference comes back to them.
		refund = refund.Add(fill.MulDown(price).Sub(pay))
		mustTransfer(b.quote.Transfer(ctx.As(b.addr), head.Maker, pay))
		mustTransfer(mkt.Dynamic.TransferUnits(ctx.As(b.addr), ctx.Caller, releaseEscrow(head, fill)))
		f := Fill{
			Index:   index,
			Side:    SideSell,
			OrderID: head.ID,
			Maker:   head.Maker,
			Taker:   ctx.Caller,
			Price:   head.Price,
			Volume:  fill,
			Time:    ctx.Now,
		}
		b.settleFill(ctx, st, f)
		fills = append(fills, f)
		remaining = remaining.Sub(fill)
		head.Volume = head.Volume.Sub(fill)
		if head.Volume.IsZero() {
			b.unlinkSell(st, head)
		}
	}
	if refund.IsPositive() {
		mustTransfer(b.quote.Transfer(ctx.As(b.addr), ctx.Caller, refund))
	}
	if !remaining.IsPositive() {
		b.emitFills(epoch, fills)
		return 0, nil
	}

	b.buySeq++
	order := &Order{
		ID:     b.buySeq,
		Maker:  ctx.Caller,
		Index:  index,
		Side:   SideBuy,
		Price:  price,
		Volume: remaining,
	}
	b.buys[order.ID] = order
	b.insertBuy(st, order, insertHint)
	st.openBuyOrders++
	b.emitFills(epoch, fills)
	return order.ID, nil
}

// releaseEscrow takes the escrowed units backing a fill of a resting sell:
// pro rata for a partial fill, everything left for the final one, so floor
// dust can never accumulate in the book.
func releaseEscrow(order *Order, fill fixed.Amount) fixed.Amount {
	units := order.EscrowUnits
	if order.Volume.Cmp(fill) > 0 {
		units = order.EscrowUnits.MulDivDown(fill, order.Volume)
	}
	order.EscrowUnits = order.EscrowUnits.Sub(units)
	return units
}

// insertSell splices the order into the ascending sell list. The hint is a
// traversal shortcut only: it is used when it names a live sell in the same
// market priced at or below the new order, otherwise the walk starts at the
// head, so a wrong hint can never corrupt ordering.
func (b *Book) insertSell(st *marketState, order *Order, hint uint64) {
	cur := st.sellHead
	if h, ok := b.sells[hint]; ok && !h.Tombstoned() && h.Index == order.Index && h.Price.Cmp(order.Price) <= 0 {
		cur = hint
	}
	var prev uint64
	for cur != 0 {
		node := b.sells[cur]
		if node.Price.Cmp(order.Price) > 0 {
			break
		}
		prev = cur
		cur = node.Next
	}
	b.splice(st, order, prev, cur)
}

// insertBuy splices the order into the descending buy list.
func (b *Book) insertBuy(st *marketState, order *Order, hint uint64) {
	cur := st.buyHead
	if h, ok := b.buys[hint]; ok && !h.Tombstoned() && h.Index == order.Index && h.Price.Cmp(order.Price) >= 0 {
		cur = hint
	}
	var prev uint64
	for cur != 0 {
		node := b.buys[cur]
		if node.Price.Cmp(order.Price) < 0 {
			break
		}
		prev = cur
		cur = node.Next
	}
	b.splice(st, order, prev, cur)
}

// splice links order between prev and next, updating the side's head when
// it lands in front.
func (b *Book) splice(st *marketState, order *Order, prev, next uint64) {
	arena := b.sells
	head := &st.sellHead
	if order.Side == SideBuy {
		arena = b.buys
		head = &st.buyHead
	}
	order.Prev = prev
	order.Next = next
	if prev == 0 {
		*head = order.ID
	} else {
		arena[prev].Next = order.ID
	}
	if next != 0 {
		arena[next].Prev = order.ID
	}
}

// unlinkSell removes a sell from its list and tombstones the slot.
func (b *Book) unlinkSell(st *marketState, order *Order) {
	b.unlink(b.sells, &st.sellHead, order)
	st.openSellOrders--
}

// unlinkBuy removes a buy from its list and tombstones the slot.
func (b *Book) unlinkBuy(st *marketState, order *Order) {
	b.unlink(b.buys, &st.buyHead, order)
	st.openBuyOrders--
}

func (b *Book) unlink(arena map[uint64]*Order, head *uint64, order *Order) {
	if order.Prev != 0 {
		arena[order.Prev].Next = order.Next
	} else {
		*head = order.Next
	}
	if order.Next != 0 {
		arena[order.Next].Prev = order.Prev
	}
	delete(arena, order.ID)
	*order = Order{}
}

// mustTransfer asserts an internal escrow movement cannot fail. Quote
// escrow is integer-exact and sell escrow is released by the units it was
// pulled in, so both hold by construction under any multiplier; a failure
// here is an accounting bug.
func mustTransfer(err error) {
	if err != nil {
		panic(fmt.Sprintf("order book escrow inconsistent: %v", err))
	}
}
