package book

import (
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// pendingRollover is a funding epoch close resolved before the closing
// operation commits. Planning is pure: the oracle peg and the old epoch's
// mean are captured here, and nothing is applied until the operation is
// past its last failure point.
type pendingRollover struct {
	due    bool
	points int64
	avg    fixed.Amount
	peg    fixed.Amount
}

// planRollover resolves the peg when the funding epoch is due to close.
// It runs before any balance moves so an unavailable peg fails the whole
// operation instead of leaving a trade half-applied.
func (b *Book) planRollover(ctx state.Context, st *marketState, mkt *Market) (pendingRollover, error) {
	if ctx.Now-st.lastEpochTime < b.funding.EpochLength {
		return pendingRollover{}, nil
	}
	p := pendingRollover{due: true, points: st.totalPriceDataPoints}
	if p.points == 0 {
		return p, nil
	}
	peg, err := b.oracle.TwapPrice(ctx, mkt.PegKey, b.funding.EpochLength)
	if err != nil {
		return pendingRollover{}, err
	}
	p.peg = peg
	p.avg = st.priceCumulative.DivInt(p.points)
	return p, nil
}

// effectiveMultiplier is the multiplier the operation's fills will settle
// under: the previewed post-rollover value when a close is pending, the
// live one otherwise.
func (b *Book) effectiveMultiplier(mkt *Market, p pendingRollover) fixed.Amount {
	if p.due && p.points > 0 {
		return mkt.Funding.PreviewMultiplier(p.avg, p.peg)
	}
	return mkt.Dynamic.Multiplier()
}

// applyRollover commits a planned epoch close just before the first fill
// executes: the old epoch's mean trade price moves the multiplier against
// the peg, the accumulator resets, and the triggering fill is left to
// sample into the fresh epoch. Returns the closed epoch, or nil when none
// was due or the old epoch held no samples.
func (b *Book) applyRollover(ctx state.Context, st *marketState, mkt *Market, index int, p pendingRollover) *EpochRollover {
	if !p.due {
		return nil
	}
	var ep *EpochRollover
	if p.points > 0 {
		next := mkt.Funding.UpdateMultiplier(p.avg, p.peg)
		ep = &EpochRollover{
			Index:      index,
			ClosedAt:   ctx.Now,
			Average:    p.avg,
			Peg:        p.peg,
			Multiplier: next,
		}
	}
	st.priceCumulative = fixed.Zero()
	st.totalPriceDataPoints = 0
	st.lastEpochTime = ctx.Now
	return ep
}

// settleFill samples one executed fill into the funding accumulator.
// Fills closer than MinSampleInterval to the previous sample execute
// normally but are not sampled.
func (b *Book) settleFill(ctx state.Context, st *marketState, f Fill) {
	if ctx.Now-st.lastSampleTime >= b.funding.MinSampleInterval {
		st.priceCumulative = st.priceCumulative.Add(f.Price)
		st.totalPriceDataPoints++
		st.lastSampleTime = ctx.Now
	}
}

// emitFills hands a closed epoch and the settled fills to the recorders
// once all ledger and list state is consistent; recorders can neither
// observe nor abort a trade midway.
func (b *Book) emitFills(epoch *EpochRollover, fills []Fill) {
	if epoch != nil && b.epochs != nil {
		b.epochs.RecordEpoch(*epoch)
	}
	if b.recorder == nil {
		return
	}
	for _, f := range fills {
		b.recorder.RecordFill(f)
	}
}
