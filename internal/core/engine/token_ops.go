package engine

import (
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// StaticBalance returns owner's principal-unit debt balance.
func (e *Engine) StaticBalance(market int, owner state.Address) (fixed.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return fixed.Zero(), err
	}
	return m.Static.BalanceOf(owner), nil
}

// DynamicBalance returns owner's reported (rebased) debt balance.
func (e *Engine) DynamicBalance(market int, owner state.Address) (fixed.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return fixed.Zero(), err
	}
	return m.Dynamic.BalanceOf(owner), nil
}

// TransferStatic moves principal units from the caller to dst.
func (e *Engine) TransferStatic(caller state.Address, market int, dst state.Address, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Static.Transfer(e.ctx(caller), dst, amount)
}

// TransferDynamic moves reported units from the caller to dst.
func (e *Engine) TransferDynamic(caller state.Address, market int, dst state.Address, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Dynamic.Transfer(e.ctx(caller), dst, amount)
}

// ApproveStatic sets spender's allowance over the caller's static balance.
func (e *Engine) ApproveStatic(caller state.Address, market int, spender state.Address, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Static.Approve(e.ctx(caller), spender, amount)
}

// ApproveDynamic sets spender's allowance over the caller's dynamic
// balance, in reported units.
func (e *Engine) ApproveDynamic(caller state.Address, market int, spender state.Address, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Dynamic.Approve(e.ctx(caller), spender, amount)
}

// PortToDynamic re-denominates the caller's static units into dynamic.
func (e *Engine) PortToDynamic(caller state.Address, market int, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Static.PortToDynamic(e.ctx(caller), amount)
}

// PortToStatic re-denominates the caller's dynamic units back to static.
func (e *Engine) PortToStatic(caller state.Address, market int, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Dynamic.PortToStatic(e.ctx(caller), amount)
}
