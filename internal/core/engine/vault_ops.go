package engine

import (
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/vault"
)

// OpenVault opens an empty vault for the caller in a market and returns
// its id.
func (e *Engine) OpenVault(caller state.Address, market, collateralIndex int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return 0, err
	}
	return m.Vaults.OpenVault(e.ctx(caller), collateralIndex)
}

// Supply moves collateral from the caller into their vault.
func (e *Engine) Supply(caller state.Address, market int, id uint64, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Vaults.Supply(e.ctx(caller), id, amount)
}

// Withdraw returns collateral to the caller, within the LTV limit.
func (e *Engine) Withdraw(caller state.Address, market int, id uint64, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Vaults.Withdraw(e.ctx(caller), id, amount)
}

// Borrow mints static debt against the vault's collateral.
func (e *Engine) Borrow(caller state.Address, market int, id uint64, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Vaults.Borrow(e.ctx(caller), id, amount)
}

// Repay burns the caller's static debt against the vault.
func (e *Engine) Repay(caller state.Address, market int, id uint64, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Vaults.Repay(e.ctx(caller), id, amount)
}

// CloseVault returns all collateral and tombstones a debt-free vault.
func (e *Engine) CloseVault(caller state.Address, market int, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	return m.Vaults.CloseVault(e.ctx(caller), id)
}

// Liquidate seizes an unhealthy vault into a fresh one owned by the
// caller and returns the new vault id.
func (e *Engine) Liquidate(caller state.Address, market int, id uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return 0, err
	}
	return m.Vaults.Liquidate(e.ctx(caller), id)
}

// GetVault returns a vault record (the zero tombstone for unknown ids).
func (e *Engine) GetVault(market int, id uint64) (vault.Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return vault.Vault{}, err
	}
	return m.Vaults.GetVault(id), nil
}

// Multiplier returns a market's current debt multiplier.
func (e *Engine) Multiplier(market int) (fixed.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(market)
	if err != nil {
		return fixed.Zero(), err
	}
	return m.Vaults.Multiplier(), nil
}
