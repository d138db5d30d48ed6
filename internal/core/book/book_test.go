package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/oracle"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/token"
	"github.com/fxperp/fxperpd/internal/core/vault"
)

const (
	bookAddr = state.Address("sys/book")
	alice    = state.Address("alice")
	bob      = state.Address("bob")
	carol    = state.Address("carol")
)

type harness struct {
	quote   *state.Ledger
	static  *token.Static
	debt    *token.DebtAuthority
	dynamic *token.Dynamic
	vaults  *vault.Ledger
	fund    *vault.FundingAuthority
	peg     *oracle.SettableSource
	book    *Book
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quote := state.NewLedger("USDC")
	static, debt := token.NewStatic("fxEUR:static")

	orc := oracle.New(oracle.DefaultStalenessWindow)
	peg := oracle.NewSettableSource()
	require.NoError(t, orc.RegisterSource("EUR/USDC", peg))

	params := vault.Params{
		MaxLTV:           fixed.MustParse("0.9"),
		LiquidationRatio: fixed.MustParse("1.1"),
		DampingDivisor:   24,
	}
	collaterals := []vault.Collateral{{Index: 0, Token: quote, OracleKey: "USDC/EUR"}}
	vaults, fund := vault.NewLedger("sys/vault/fxEUR", params, orc, collaterals, debt)
	dynamic := token.NewDynamic("fxEUR", vaults, static)

	b := New(bookAddr, quote, orc, []Market{{Dynamic: dynamic, Funding: fund, PegKey: "EUR/USDC"}}, FundingConfig{
		EpochLength:       3600,
		MinSampleInterval: 60,
	})
	return &harness{quote: quote, static: static, debt: debt, dynamic: dynamic, vaults: vaults, fund: fund, peg: peg, book: b}
}

func at(caller state.Address, now int64) state.Context {
	return state.Context{Caller: caller, Now: now}
}

// fundBuyer mints quote and approves the book for all of it.
func (h *harness) fundBuyer(t *testing.T, who state.Address, amount fixed.Amount) {
	t.Helper()
	require.NoError(t, h.quote.Mint(who, amount))
	require.NoError(t, h.quote.Approve(at(who, 0), bookAddr, amount))
}

// fundSeller mints debt, ports it to the dynamic token, and approves the
// book for all of it.
func (h *harness) fundSeller(t *testing.T, who state.Address, amount fixed.Amount) {
	t.Helper()
	require.NoError(t, h.debt.Mint(who, amount))
	require.NoError(t, h.static.PortToDynamic(at(who, 0), amount))
	require.NoError(t, h.dynamic.Approve(at(who, 0), bookAddr, amount))
}

func TestLimitSellRestsInPriceOrder(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(30))

	// Placed at prices 3, 1, 2; the list must come out ascending.
	id1, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("3"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	id2, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	id3, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
	assert.Equal(t, uint64(3), id3)

	require.Equal(t, id2, h.book.GetSellHead(0))
	head := h.book.GetSell(id2)
	assert.Equal(t, uint64(0), head.Prev)
	assert.Equal(t, id3, head.Next)
	mid := h.book.GetSell(id3)
	assert.Equal(t, id2, mid.Prev)
	assert.Equal(t, id1, mid.Next)
	tail := h.book.GetSell(id1)
	assert.Equal(t, id3, tail.Prev)
	assert.Equal(t, uint64(0), tail.Next)

	assert.Equal(t, 3, h.book.OpenSellOrders(0))
	assert.True(t, h.dynamic.BalanceOf(bookAddr).Equal(fixed.FromUnits(30)), "all volume escrowed")
}

func TestLimitBuyRestsInPriceOrder(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(100))

	id1, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	id2, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("3"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	id3, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	// Descending by price: 3, 2, 1.
	require.Equal(t, id2, h.book.GetBuyHead(0))
	assert.Equal(t, id3, h.book.GetBuy(id2).Next)
	assert.Equal(t, id1, h.book.GetBuy(id3).Next)

	// Escrow is volume*price for each: 10 + 30 + 20.
	assert.True(t, h.quote.BalanceOf(bookAddr).Equal(fixed.FromUnits(60)))
	assert.True(t, h.quote.BalanceOf(alice).Equal(fixed.FromUnits(40)))
}

func TestBuyAndSellSequencesAreSeparate(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(10))
	h.fundSeller(t, bob, fixed.FromUnits(10))

	buyID, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(5), 0)
	require.NoError(t, err)
	sellID, err := h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("2"), fixed.FromUnits(5), 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), buyID)
	assert.Equal(t, uint64(1), sellID, "each side numbers from 1")
}

func TestLimitSellCrossesAtRestingPrice(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(20))
	h.fundSeller(t, bob, fixed.FromUnits(10))

	_, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	// Bob asks 1.5 but the fill executes at the resting bid of 2.
	id, err := h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("1.5"), fixed.FromUnits(4), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id, "fully crossed taker consumes no id")

	assert.True(t, h.quote.BalanceOf(bob).Equal(fixed.FromUnits(8)), "4 * resting price 2")
	assert.True(t, h.dynamic.BalanceOf(alice).Equal(fixed.FromUnits(4)))
	assert.True(t, h.dynamic.BalanceOf(bob).Equal(fixed.FromUnits(6)), "nothing beyond the fill leaves the seller")

	rest := h.book.GetBuy(h.book.GetBuyHead(0))
	assert.True(t, rest.Volume.Equal(fixed.FromUnits(6)))

	// The next resting sell takes id 1.
	nextID, err := h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("5"), fixed.FromUnits(1), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nextID)
}

func TestLimitBuyRefundsPriceImprovement(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(5))
	h.fundBuyer(t, bob, fixed.FromUnits(10))

	_, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(5), 0)
	require.NoError(t, err)

	// Bob bids 2 for 5; the slice fills at 1, so half his escrow comes back.
	id, err := h.book.LimitBuy(at(bob, 100), 0, fixed.MustParse("2"), fixed.FromUnits(5), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	assert.True(t, h.quote.BalanceOf(bob).Equal(fixed.FromUnits(5)))
	assert.True(t, h.quote.BalanceOf(alice).Equal(fixed.FromUnits(5)))
	assert.True(t, h.dynamic.BalanceOf(bob).Equal(fixed.FromUnits(5)))
	assert.True(t, h.quote.BalanceOf(bookAddr).IsZero(), "no quote stranded in escrow")
}

func TestLimitBuyPartialCrossRestsRemainder(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(3))
	h.fundBuyer(t, bob, fixed.FromUnits(20))

	_, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(3), 0)
	require.NoError(t, err)

	id, err := h.book.LimitBuy(at(bob, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	require.NotZero(t, id)

	rest := h.book.GetBuy(id)
	assert.True(t, rest.Volume.Equal(fixed.FromUnits(7)))
	assert.Equal(t, 0, h.book.OpenSellOrders(0), "crossed sell fully consumed")
	// Escrow holds the remainder's cost: 7 * 2.
	assert.True(t, h.quote.BalanceOf(bookAddr).Equal(fixed.FromUnits(14)))
}

func TestLimitSellRejectsUnfundedTaker(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(20))
	_, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	// No dynamic balance at all.
	_, err = h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("1"), fixed.FromUnits(1), 0)
	assert.ErrorIs(t, err, state.ErrInsufficientAllowance)

	h.fundSeller(t, bob, fixed.FromUnits(1))
	_, err = h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("1"), fixed.FromUnits(2), 0)
	assert.ErrorIs(t, err, state.ErrInsufficientAllowance)

	require.NoError(t, h.dynamic.Approve(at(bob, 0), bookAddr, fixed.FromUnits(2)))
	_, err = h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("1"), fixed.FromUnits(2), 0)
	assert.ErrorIs(t, err, state.ErrInsufficientBalance)

	// The resting buy is untouched by the failed attempts.
	assert.True(t, h.book.GetBuy(h.book.GetBuyHead(0)).Volume.Equal(fixed.FromUnits(10)))
}

func TestLimitRejectsBadInputs(t *testing.T) {
	h := newHarness(t)
	_, err := h.book.LimitBuy(at(alice, 100), 5, fixed.One(), fixed.One(), 0)
	assert.ErrorIs(t, err, ErrUnknownMarket)
	_, err = h.book.LimitBuy(at(alice, 100), 0, fixed.Zero(), fixed.One(), 0)
	assert.ErrorIs(t, err, ErrInvalidPriceOrVolume)
	_, err = h.book.LimitSell(at(alice, 100), 0, fixed.One(), fixed.Zero(), 0)
	assert.ErrorIs(t, err, ErrInvalidPriceOrVolume)
}

func TestInsertHintIsOnlyAShortcut(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(40))

	id1, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	id2, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("3"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	// A hint priced above the new order is ignored; ordering still holds.
	id3, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), id2)
	require.NoError(t, err)
	assert.Equal(t, id1, h.book.GetSellHead(0))
	assert.Equal(t, id3, h.book.GetSell(id1).Next)
	assert.Equal(t, id2, h.book.GetSell(id3).Next)

	// A valid hint lands the order in the same place.
	id4, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2.5"), fixed.FromUnits(10), id3)
	require.NoError(t, err)
	assert.Equal(t, id4, h.book.GetSell(id3).Next)
	assert.Equal(t, id2, h.book.GetSell(id4).Next)
}

func TestEqualPricesKeepTimePriority(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(10))
	h.fundSeller(t, bob, fixed.FromUnits(10))

	first, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	second, err := h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	assert.Equal(t, first, h.book.GetSellHead(0))
	assert.Equal(t, second, h.book.GetSell(first).Next)
}

func TestMarketBuy(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(10))
	h.fundSeller(t, bob, fixed.FromUnits(10))
	h.fundBuyer(t, carol, fixed.FromUnits(100))

	_, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	_, err = h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	// 15 of demand sweeps all of alice and half of bob, each at the resting
	// price: 10*1 + 5*2 = 20 quote.
	require.NoError(t, h.book.MarketBuy(at(carol, 100), 0, fixed.FromUnits(15), fixed.MustParse("2")))
	assert.True(t, h.dynamic.BalanceOf(carol).Equal(fixed.FromUnits(15)))
	assert.True(t, h.quote.BalanceOf(carol).Equal(fixed.FromUnits(80)))
	assert.True(t, h.quote.BalanceOf(alice).Equal(fixed.FromUnits(10)))
	assert.True(t, h.quote.BalanceOf(bob).Equal(fixed.FromUnits(10)))
	assert.Equal(t, 1, h.book.OpenSellOrders(0))
}

func TestMarketBuyRespectsPriceLimit(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(20))
	h.fundBuyer(t, bob, fixed.FromUnits(100))

	_, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	_, err = h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("3"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	require.NoError(t, h.book.MarketBuy(at(bob, 100), 0, fixed.FromUnits(15), fixed.MustParse("2")))
	assert.True(t, h.dynamic.BalanceOf(bob).Equal(fixed.FromUnits(10)), "the ask at 3 is over the limit")

	// Nothing in range is a no-op, not an error.
	require.NoError(t, h.book.MarketBuy(at(bob, 100), 0, fixed.FromUnits(1), fixed.MustParse("2")))
}

func TestMarketBuyUnfundedTakerLeavesBookIntact(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(10))
	_, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	err = h.book.MarketBuy(at(bob, 100), 0, fixed.FromUnits(10), fixed.MustParse("2"))
	assert.ErrorIs(t, err, state.ErrInsufficientAllowance)
	assert.True(t, h.book.GetSell(h.book.GetSellHead(0)).Volume.Equal(fixed.FromUnits(10)))
	assert.Equal(t, int64(0), h.book.TotalPriceDataPoints(0), "failed order must not sample")
}

func TestMarketSell(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(100))
	h.fundSeller(t, bob, fixed.FromUnits(20))

	_, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("3"), fixed.FromUnits(5), 0)
	require.NoError(t, err)
	_, err = h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(5), 0)
	require.NoError(t, err)

	// 8 of supply hits the bid at 3 in full and 3 of the bid at 2.
	require.NoError(t, h.book.MarketSell(at(bob, 100), 0, fixed.FromUnits(8), fixed.MustParse("2")))
	assert.True(t, h.quote.BalanceOf(bob).Equal(fixed.FromUnits(21)), "5*3 + 3*2")
	assert.True(t, h.dynamic.BalanceOf(alice).Equal(fixed.FromUnits(8)))
	assert.True(t, h.dynamic.BalanceOf(bob).Equal(fixed.FromUnits(12)))
	assert.Equal(t, 1, h.book.OpenBuyOrders(0))
	assert.True(t, h.book.GetBuy(h.book.GetBuyHead(0)).Volume.Equal(fixed.FromUnits(2)))
}

func TestModifyBuySettlesEscrowDelta(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(100))

	id, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	require.True(t, h.quote.BalanceOf(bookAddr).Equal(fixed.FromUnits(20)))

	// Shrinking the order refunds the difference.
	require.NoError(t, h.book.ModifyBuy(at(alice, 110), id, fixed.FromUnits(5), fixed.MustParse("2")))
	assert.True(t, h.quote.BalanceOf(bookAddr).Equal(fixed.FromUnits(10)))

	// Growing it pulls the difference.
	require.NoError(t, h.book.ModifyBuy(at(alice, 120), id, fixed.FromUnits(20), fixed.MustParse("2")))
	assert.True(t, h.quote.BalanceOf(bookAddr).Equal(fixed.FromUnits(40)))

	assert.ErrorIs(t, h.book.ModifyBuy(at(bob, 130), id, fixed.One(), fixed.One()), ErrNotMaker)
}

func TestModifyBuyPriceChangeLosesTimePriority(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(100))
	h.fundBuyer(t, bob, fixed.FromUnits(100))

	first, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	second, err := h.book.LimitBuy(at(bob, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	require.Equal(t, first, h.book.GetBuyHead(0))

	// Re-pricing to the same level goes behind the order that kept its spot.
	require.NoError(t, h.book.ModifyBuy(at(alice, 110), first, fixed.FromUnits(10), fixed.MustParse("1.9")))
	require.NoError(t, h.book.ModifyBuy(at(alice, 120), first, fixed.FromUnits(10), fixed.MustParse("2")))
	assert.Equal(t, second, h.book.GetBuyHead(0))
	assert.Equal(t, first, h.book.GetBuy(second).Next, "same id, new position")
}

func TestModifySellAdjustsDynamicEscrow(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(30))

	id, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	require.True(t, h.dynamic.BalanceOf(bookAddr).Equal(fixed.FromUnits(10)))

	require.NoError(t, h.book.ModifySell(at(alice, 110), id, fixed.FromUnits(25), fixed.MustParse("2")))
	assert.True(t, h.dynamic.BalanceOf(bookAddr).Equal(fixed.FromUnits(25)))

	require.NoError(t, h.book.ModifySell(at(alice, 120), id, fixed.FromUnits(5), fixed.MustParse("2")))
	assert.True(t, h.dynamic.BalanceOf(bookAddr).Equal(fixed.FromUnits(5)))
	assert.True(t, h.dynamic.BalanceOf(alice).Equal(fixed.FromUnits(25)))
}

func TestDeleteRefundsEscrow(t *testing.T) {
	h := newHarness(t)
	h.fundBuyer(t, alice, fixed.FromUnits(100))
	h.fundSeller(t, bob, fixed.FromUnits(10))

	buyID, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	sellID, err := h.book.LimitSell(at(bob, 100), 0, fixed.MustParse("3"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	assert.ErrorIs(t, h.book.DeleteBuy(at(bob, 110), buyID), ErrNotMaker)

	require.NoError(t, h.book.DeleteBuy(at(alice, 110), buyID))
	assert.True(t, h.quote.BalanceOf(alice).Equal(fixed.FromUnits(100)))
	assert.True(t, h.book.GetBuy(buyID).Tombstoned())
	assert.Equal(t, 0, h.book.OpenBuyOrders(0))

	require.NoError(t, h.book.DeleteSell(at(bob, 110), sellID))
	assert.True(t, h.dynamic.BalanceOf(bob).Equal(fixed.FromUnits(10)))

	assert.ErrorIs(t, h.book.DeleteSell(at(bob, 120), sellID), ErrOrderNotFound)
}

func TestDeleteMiddleOrderKeepsListLinked(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(30))

	id1, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("1"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	id2, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	id3, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("3"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	require.NoError(t, h.book.DeleteSell(at(alice, 110), id2))
	assert.Equal(t, id3, h.book.GetSell(id1).Next)
	assert.Equal(t, id1, h.book.GetSell(id3).Prev)
}

// setMultiplier drives the funding multiplier to target through the
// authority, the same path an epoch rollover takes.
func (h *harness) setMultiplier(t *testing.T, target string) {
	t.Helper()
	want := fixed.MustParse(target)
	// With avg 0, peg = 24*(current-target) walks the multiplier exactly
	// to target: delta = (0 - peg)/24 = target - current.
	peg := h.vaults.Multiplier().Sub(want).MulDown(fixed.FromUnits(24))
	got := h.fund.UpdateMultiplier(fixed.Zero(), peg)
	require.True(t, got.Equal(want), "got %s", got)
}

func TestDeleteSellRefundsEscrowAfterMultiplierDrop(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(100))

	id, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)

	h.setMultiplier(t, "0.5")

	// The book's reported balance rebased below the resting volume; the
	// cancel still returns the escrowed principal in full.
	require.NoError(t, h.book.DeleteSell(at(alice, 110), id))
	assert.True(t, h.book.GetSell(id).Tombstoned())
	assert.True(t, h.dynamic.InternalBalanceOf(bookAddr).IsZero())
	assert.True(t, h.dynamic.BalanceOf(alice).Equal(fixed.FromUnits(50)))

	// Same at the zero floor: the escrow comes back as units.
	id2, err := h.book.LimitSell(at(alice, 120), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	h.setMultiplier(t, "0")
	require.NoError(t, h.book.DeleteSell(at(alice, 130), id2))
	assert.True(t, h.dynamic.InternalBalanceOf(alice).Equal(fixed.FromUnits(100)))

	// New sells cannot price escrow while the multiplier sits at zero.
	_, err = h.book.LimitSell(at(alice, 140), 0, fixed.MustParse("2"), fixed.FromUnits(1), 0)
	assert.ErrorIs(t, err, token.ErrZeroMultiplier)
}

func TestFillsPayFromEscrowAfterMultiplierDrop(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(10))
	h.fundBuyer(t, bob, fixed.FromUnits(20))

	_, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	h.setMultiplier(t, "0.5")

	// A partial fill releases escrow pro rata: 4 of the 10 escrowed units.
	id, err := h.book.LimitBuy(at(bob, 110), 0, fixed.MustParse("2"), fixed.FromUnits(4), 0)
	require.NoError(t, err)
	require.Zero(t, id)
	assert.True(t, h.quote.BalanceOf(alice).Equal(fixed.FromUnits(8)))
	assert.True(t, h.dynamic.InternalBalanceOf(bob).Equal(fixed.FromUnits(4)))
	assert.True(t, h.dynamic.BalanceOf(bob).Equal(fixed.FromUnits(2)))

	// The final fill sweeps the remaining six units; nothing strands.
	require.NoError(t, h.book.MarketBuy(at(bob, 120), 0, fixed.FromUnits(6), fixed.MustParse("2")))
	assert.True(t, h.dynamic.InternalBalanceOf(bob).Equal(fixed.FromUnits(10)))
	assert.True(t, h.dynamic.InternalBalanceOf(bookAddr).IsZero())
	assert.Equal(t, 0, h.book.OpenSellOrders(0))
}

func TestModifySellTracksEscrowAcrossRebase(t *testing.T) {
	h := newHarness(t)
	h.fundSeller(t, alice, fixed.FromUnits(100))

	id, err := h.book.LimitSell(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	h.setMultiplier(t, "0.5")

	// Shrinking releases units pro rata with the volume cut.
	require.NoError(t, h.book.ModifySell(at(alice, 110), id, fixed.FromUnits(5), fixed.MustParse("2")))
	assert.True(t, h.dynamic.InternalBalanceOf(bookAddr).Equal(fixed.FromUnits(5)))

	// Growing pulls the delta at the current multiplier.
	require.NoError(t, h.book.ModifySell(at(alice, 120), id, fixed.FromUnits(15), fixed.MustParse("2")))
	assert.True(t, h.dynamic.InternalBalanceOf(bookAddr).Equal(fixed.FromUnits(25)))

	require.NoError(t, h.book.DeleteSell(at(alice, 130), id))
	assert.True(t, h.dynamic.InternalBalanceOf(bookAddr).IsZero())
	assert.True(t, h.dynamic.InternalBalanceOf(alice).Equal(fixed.FromUnits(100)))
}

type captureRecorder struct {
	fills []Fill
}

func (c *captureRecorder) RecordFill(f Fill) {
	c.fills = append(c.fills, f)
}

func TestRecorderSeesSettledFills(t *testing.T) {
	h := newHarness(t)
	rec := &captureRecorder{}
	h.book.SetRecorder(rec)

	h.fundBuyer(t, alice, fixed.FromUnits(20))
	h.fundSeller(t, bob, fixed.FromUnits(10))

	_, err := h.book.LimitBuy(at(alice, 100), 0, fixed.MustParse("2"), fixed.FromUnits(10), 0)
	require.NoError(t, err)
	_, err = h.book.LimitSell(at(bob, 130), 0, fixed.MustParse("1"), fixed.FromUnits(4), 0)
	require.NoError(t, err)

	require.Len(t, rec.fills, 1)
	f := rec.fills[0]
	assert.Equal(t, SideBuy, f.Side)
	assert.Equal(t, alice, f.Maker)
	assert.Equal(t, bob, f.Taker)
	assert.True(t, f.Price.Equal(fixed.MustParse("2")))
	assert.True(t, f.Volume.Equal(fixed.FromUnits(4)))
	assert.Equal(t, int64(130), f.Time)
}
