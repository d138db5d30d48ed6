package book

import (
	"fmt"

	"github.com/fxperp/fxperpd/internal/core/fixed"
)

// MarketSnapshot is the persisted per-market book and accumulator state.
type MarketSnapshot struct {
	BuyHead              uint64
	SellHead             uint64
	OpenBuyOrders        int
	OpenSellOrders       int
	PriceCumulative      fixed.Amount
	TotalPriceDataPoints int64
	LastSampleTime       int64
	LastEpochTime        int64
}

// Snapshot is the full persisted book state: both order arenas, the id
// sequences, and every market's list heads and funding accumulator.
type Snapshot struct {
	Buys    []Order
	Sells   []Order
	BuySeq  uint64
	SellSeq uint64
	Markets []MarketSnapshot
}

// Snapshot copies out the book state.
func (b *Book) Snapshot() Snapshot {
	s := Snapshot{
		Buys:    make([]Order, 0, len(b.buys)),
		Sells:   make([]Order, 0, len(b.sells)),
		BuySeq:  b.buySeq,
		SellSeq: b.sellSeq,
		Markets: make([]MarketSnapshot, len(b.states)),
	}
	for _, o := range b.buys {
		s.Buys = append(s.Buys, *o)
	}
	for _, o := range b.sells {
		s.Sells = append(s.Sells, *o)
	}
	for i, st := range b.states {
		s.Markets[i] = MarketSnapshot{
			BuyHead:              st.buyHead,
			SellHead:             st.sellHead,
			OpenBuyOrders:        st.openBuyOrders,
			OpenSellOrders:       st.openSellOrders,
			PriceCumulative:      st.priceCumulative,
			TotalPriceDataPoints: st.totalPriceDataPoints,
			LastSampleTime:       st.lastSampleTime,
			LastEpochTime:        st.lastEpochTime,
		}
	}
	return s
}

// Restore overwrites the book state from a snapshot taken against the same
// market configuration.
func (b *Book) Restore(s Snapshot) error {
	if len(s.Markets) != len(b.markets) {
		return fmt.Errorf("snapshot has %d markets, book has %d", len(s.Markets), len(b.markets))
	}
	b.buys = make(map[uint64]*Order, len(s.Buys))
	for _, o := range s.Buys {
		order := o
		b.buys[order.ID] = &order
	}
	b.sells = make(map[uint64]*Order, len(s.Sells))
	for _, o := range s.Sells {
		order := o
		b.sells[order.ID] = &order
	}
	b.buySeq = s.BuySeq
	b.sellSeq = s.SellSeq
	b.states = make([]marketState, len(s.Markets))
	for i, m := range s.Markets {
		b.states[i] = marketState{
			buyHead:              m.BuyHead,
			sellHead:             m.SellHead,
			openBuyOrders:        m.OpenBuyOrders,
			openSellOrders:       m.OpenSellOrders,
			priceCumulative:      m.PriceCumulative,
			totalPriceDataPoints: m.TotalPriceDataPoints,
			lastSampleTime:       m.LastSampleTime,
			lastEpochTime:        m.LastEpochTime,
		}
	}
	return nil
}
