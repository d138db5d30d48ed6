package engine

import (
	"fmt"

	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/vault"
)

// MarketState is one market's persisted state.
type MarketState struct {
	Name            string
	Vaults          []vault.Vault
	Multiplier      fixed.Amount
	Static          map[state.Address]fixed.Amount
	DynamicInternal map[state.Address]fixed.Amount
}

// State is a full engine checkpoint. Allowances are deliberately absent;
// spenders are re-approved after a restart.
type State struct {
	TakenAt int64
	Quote   map[state.Address]fixed.Amount
	Markets []MarketState
	Book    book.Snapshot
}

// ExportState copies out a consistent checkpoint of the whole engine.
func (e *Engine) ExportState() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &State{
		TakenAt: e.now(),
		Quote:   e.quote.Balances(),
		Markets: make([]MarketState, len(e.markets)),
		Book:    e.book.Snapshot(),
	}
	for i, m := range e.markets {
		s.Markets[i] = MarketState{
			Name:            m.Name,
			Vaults:          m.Vaults.Vaults(),
			Multiplier:      m.Vaults.Multiplier(),
			Static:          m.Static.Balances(),
			DynamicInternal: m.Dynamic.InternalBalances(),
		}
	}
	return s
}

// ImportState overwrites the engine from a checkpoint taken against the
// same market configuration.
func (e *Engine) ImportState(s *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(s.Markets) != len(e.markets) {
		return fmt.Errorf("checkpoint has %d markets, engine has %d", len(s.Markets), len(e.markets))
	}
	for i, ms := range s.Markets {
		if ms.Name != e.markets[i].Name {
			return fmt.Errorf("checkpoint market %d is %q, engine has %q", i, ms.Name, e.markets[i].Name)
		}
	}
	if err := e.book.Restore(s.Book); err != nil {
		return err
	}
	e.quote.ReplaceBalances(s.Quote)
	for i, ms := range s.Markets {
		m := &e.markets[i]
		m.Vaults.Restore(ms.Vaults, ms.Multiplier)
		m.Static.ReplaceBalances(ms.Static)
		m.Dynamic.ReplaceInternalBalances(ms.DynamicInternal)
	}
	return nil
}
