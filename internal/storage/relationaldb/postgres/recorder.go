package postgres

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/fxperp/fxperpd/internal/core/book"
)

const recorderQueueDepth = 1024

// Recorder is an asynchronous book.FillRecorder and book.EpochRecorder
// backed by the history repositories. Recording never blocks the matching
// path; when a queue is full the event is dropped and counted, trading
// history completeness for engine latency.
type Recorder struct {
	fills   *FillRepository
	epochs  *EpochRepository
	queue   chan book.Fill
	epochQ  chan book.EpochRollover
	log     zerolog.Logger
	dropped int64
}

// NewRecorder creates a recorder writing through db.
func NewRecorder(db *sql.DB, log zerolog.Logger) *Recorder {
	return &Recorder{
		fills:  NewFillRepository(db),
		epochs: NewEpochRepository(db),
		queue:  make(chan book.Fill, recorderQueueDepth),
		epochQ: make(chan book.EpochRollover, recorderQueueDepth),
		log:    log.With().Str("component", "fill-recorder").Logger(),
	}
}

// RecordFill implements book.FillRecorder.
func (r *Recorder) RecordFill(f book.Fill) {
	select {
	case r.queue <- f:
	default:
		r.dropped++
		r.log.Warn().Uint64("order_id", f.OrderID).Msg("history queue full, fill dropped")
	}
}

// RecordEpoch implements book.EpochRecorder.
func (r *Recorder) RecordEpoch(e book.EpochRollover) {
	select {
	case r.epochQ <- e:
	default:
		r.dropped++
		r.log.Warn().Int("market", e.Index).Msg("history queue full, epoch dropped")
	}
}

// Run drains the queues until ctx is cancelled, then flushes what is
// already buffered.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case f := <-r.queue:
			r.writeFill(ctx, f)
		case e := <-r.epochQ:
			r.writeEpoch(ctx, e)
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		}
	}
}

func (r *Recorder) writeFill(ctx context.Context, f book.Fill) {
	if err := r.fills.InsertFill(ctx, f); err != nil {
		r.log.Error().Err(err).
			Int("market", f.Index).
			Uint64("order_id", f.OrderID).
			Msg("failed to persist fill")
	}
}

func (r *Recorder) writeEpoch(ctx context.Context, e book.EpochRollover) {
	if err := r.epochs.InsertEpoch(ctx, e); err != nil {
		r.log.Error().Err(err).
			Int("market", e.Index).
			Int64("closed_at", e.ClosedAt).
			Msg("failed to persist epoch")
	}
}

func (r *Recorder) flush() {
	ctx := context.Background()
	for {
		select {
		case f := <-r.queue:
			r.writeFill(ctx, f)
		case e := <-r.epochQ:
			r.writeEpoch(ctx, e)
		default:
			return
		}
	}
}
