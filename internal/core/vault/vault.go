// Package vault implements the collateralized-debt-position ledger: vault
// lifecycle, loan-to-value enforcement, liquidation, and ownership of the
// global debt multiplier the dynamic token rebases by.
package vault

import (
	"errors"
	"fmt"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/oracle"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/token"
)

// Vault ledger errors.
var (
	ErrNotOwner               = errors.New("caller is not the vault owner")
	ErrVaultNotFound          = errors.New("vault not found")
	ErrInvalidCollateralIndex = errors.New("invalid collateral index")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrUndercollateralized    = errors.New("vault would be undercollateralized")
	ErrOverRepayment          = errors.New("repayment exceeds outstanding debt")
	ErrNotLiquidatable        = errors.New("vault health check passed")
	ErrDebtOutstanding        = errors.New("vault still has outstanding debt")
	ErrInvalidAmount          = errors.New("amount must be positive")
)

// Vault is one collateralized debt position. A tombstoned slot has every
// field zeroed; Owner == ZeroAddress iff the slot is tombstoned or unused.
type Vault struct {
	ID              uint64
	Owner           state.Address
	CollateralIndex int
	Collateral      fixed.Amount
	Debt            fixed.Amount // principal units
}

// Tombstoned reports whether the slot has been closed or liquidated.
func (v Vault) Tombstoned() bool {
	return v.Owner.IsZero()
}

// Collateral describes one accepted collateral type, fixed at deployment.
// Index 0 is the protocol's base quote asset.
type Collateral struct {
	Index     int
	Token     *state.Ledger
	OracleKey string
}

// Params are the risk parameters of one vault ledger.
type Params struct {
	// MaxLTV bounds debt value to collateral value on borrow and withdraw,
	// as a 1e18 fraction (0.9 = 9e17).
	MaxLTV fixed.Amount
	// LiquidationRatio is the collateral-value / debt-value floor below
	// which anyone may liquidate, as a 1e18 ratio (1.1 = 11e17).
	LiquidationRatio fixed.Amount
	// DampingDivisor divides the peg deviation on each multiplier update.
	DampingDivisor int64
}

// Ledger owns the vault arena and the debt multiplier.
type Ledger struct {
	addr        state.Address
	params      Params
	oracle      *oracle.Oracle
	collaterals []Collateral
	vaults      []Vault
	multiplier  fixed.Amount
	debt        *token.DebtAuthority
}

// FundingAuthority is the capability that authorizes multiplier updates.
// Only the order book's epoch rollover holds one; any other update path
// simply does not exist.
type FundingAuthority struct {
	l *Ledger
}

// NewLedger creates a vault ledger holding custody under addr. The debt
// authority is the static token's mint/burn capability.
func NewLedger(addr state.Address, params Params, orc *oracle.Oracle, collaterals []Collateral, debt *token.DebtAuthority) (*Ledger, *FundingAuthority) {
	l := &Ledger{
		addr:        addr,
		params:      params,
		oracle:      orc,
		collaterals: collaterals,
		multiplier:  fixed.One(),
		debt:        debt,
	}
	return l, &FundingAuthority{l: l}
}

// Address returns the ledger's custody address.
func (l *Ledger) Address() state.Address { return l.addr }

// Multiplier returns the current debt multiplier. Implements
// token.MultiplierSource for the dynamic token.
func (l *Ledger) Multiplier() fixed.Amount {
	return l.multiplier
}

// OpenVault appends a new empty vault owned by the caller and returns its
// id. Ids are monotone and never reused.
func (l *Ledger) OpenVault(ctx state.Context, collateralIndex int) (uint64, error) {
	if collateralIndex < 0 || collateralIndex >= len(l.collaterals) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCollateralIndex, collateralIndex)
	}
	id := uint64(len(l.vaults))
	l.vaults = append(l.vaults, Vault{
		ID:              id,
		Owner:           ctx.Caller,
		CollateralIndex: collateralIndex,
	})
	return id, nil
}

// GetVault returns the vault record, or the zero tombstone for ids that
// were never allocated.
func (l *Ledger) GetVault(id uint64) Vault {
	if id >= uint64(len(l.vaults)) {
		return Vault{}
	}
	return l.vaults[id]
}

// VaultCount returns the number of allocated slots, tombstones included.
func (l *Ledger) VaultCount() int {
	return len(l.vaults)
}

func (l *Ledger) owned(ctx state.Context, id uint64) (*Vault, error) {
	if id >= uint64(len(l.vaults)) {
		return nil, fmt.Errorf("%w: %d", ErrVaultNotFound, id)
	}
	v := &l.vaults[id]
	if v.Tombstoned() {
		return nil, fmt.Errorf("%w: %d", ErrVaultNotFound, id)
	}
	if v.Owner != ctx.Caller {
		return nil, ErrNotOwner
	}
	return v, nil
}

// Supply pulls amount of the vault's collateral token from the caller into
// custody and credits the vault.
func (l *Ledger) Supply(ctx state.Context, id uint64, amount fixed.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	v, err := l.owned(ctx, id)
	if err != nil {
		return err
	}
	col := l.collaterals[v.CollateralIndex]
	if err := col.Token.TransferFrom(ctx.As(l.addr), ctx.Caller, l.addr, amount); err != nil {
		return err
	}
	v.Collateral = v.Collateral.Add(amount)
	return nil
}

// Withdraw returns amount of collateral to the owner, provided the vault
// stays within its loan-to-value limit at the current spot price.
func (l *Ledger) Withdraw(ctx state.Context, id uint64, amount fixed.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	v, err := l.owned(ctx, id)
	if err != nil {
		return err
	}
	if v.Collateral.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	remaining := v.Collateral.Sub(amount)
	ok, err := l.withinLTV(ctx, v.CollateralIndex, remaining, v.Debt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUndercollateralized
	}
	col := l.collaterals[v.CollateralIndex]
	if err := col.Token.Transfer(ctx.As(l.addr), v.Owner, amount); err != nil {
		return err
	}
	v.Collateral = remaining
	return nil
}

// Borrow increases the vault's debt by amount principal units and mints
// the same amount of static debt tokens to the caller, subject to the
// loan-to-value limit at the current spot price.
func (l *Ledger) Borrow(ctx state.Context, id uint64, amount fixed.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	v, err := l.owned(ctx, id)
	if err != nil {
		return err
	}
	newDebt := v.Debt.Add(amount)
	ok, err := l.withinLTV(ctx, v.CollateralIndex, v.Collateral, newDebt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUndercollateralized
	}
	if err := l.debt.Mint(ctx.Caller, amount); err != nil {
		return err
	}
	v.Debt = newDebt
	return nil
}

// Repay burns amount static tokens from the caller and reduces the
// vault's debt.
func (l *Ledger) Repay(ctx state.Context, id uint64, amount fixed.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	v, err := l.owned(ctx, id)
	if err != nil {
		return err
	}
	if amount.Cmp(v.Debt) > 0 {
		return ErrOverRepayment
	}
	if err := l.debt.Burn(ctx.Caller, amount); err != nil {
		return err
	}
	v.Debt = v.Debt.Sub(amount)
	return nil
}

// CloseVault returns all collateral to the owner and tombstones the slot.
// The vault must carry no debt.
func (l *Ledger) CloseVault(ctx state.Context, id uint64) error {
	v, err := l.owned(ctx, id)
	if err != nil {
		return err
	}
	if !v.Debt.IsZero() {
		return ErrDebtOutstanding
	}
	if v.Collateral.IsPositive() {
		col := l.collaterals[v.CollateralIndex]
		if err := col.Token.Transfer(ctx.As(l.addr), v.Owner, v.Collateral); err != nil {
			return err
		}
	}
	l.vaults[id] = Vault{}
	return nil
}

// Liquidate seizes an unhealthy vault: its collateral and debt move in
// full to a fresh vault owned by the caller, the caller's static balance
// equal to the seized debt is burned as the cost of liquidation, and the
// original slot is tombstoned. Callable by anyone.
func (l *Ledger) Liquidate(ctx state.Context, id uint64) (uint64, error) {
	if id >= uint64(len(l.vaults)) {
		return 0, fmt.Errorf("%w: %d", ErrVaultNotFound, id)
	}
	v := l.vaults[id]
	if v.Tombstoned() {
		return 0, fmt.Errorf("%w: %d", ErrVaultNotFound, id)
	}
	liquidatable, err := l.liquidatable(ctx, v)
	if err != nil {
		return 0, err
	}
	if !liquidatable {
		return 0, ErrNotLiquidatable
	}
	// Burning first means an underfunded liquidator reverts before any
	// vault state moves.
	if err := l.debt.Burn(ctx.Caller, v.Debt); err != nil {
		return 0, err
	}
	newID := uint64(len(l.vaults))
	l.vaults = append(l.vaults, Vault{
		ID:              newID,
		Owner:           ctx.Caller,
		CollateralIndex: v.CollateralIndex,
		Collateral:      v.Collateral,
		Debt:            v.Debt,
	})
	l.vaults[id] = Vault{}
	return newID, nil
}

// withinLTV checks debt*multiplier/SCALE <= collateral*price/SCALE*maxLTV.
func (l *Ledger) withinLTV(ctx state.Context, collateralIndex int, collateral, debt fixed.Amount) (bool, error) {
	if debt.IsZero() {
		return true, nil
	}
	price, err := l.oracle.SpotPrice(ctx, l.collaterals[collateralIndex].OracleKey)
	if err != nil {
		return false, err
	}
	debtValue := debt.MulDown(l.multiplier)
	limit := collateral.MulDown(price).MulDown(l.params.MaxLTV)
	return debtValue.Cmp(limit) <= 0, nil
}

// liquidatable checks collateralValue/debtValue < liquidationRatio.
func (l *Ledger) liquidatable(ctx state.Context, v Vault) (bool, error) {
	if v.Debt.IsZero() {
		return false, nil
	}
	price, err := l.oracle.SpotPrice(ctx, l.collaterals[v.CollateralIndex].OracleKey)
	if err != nil {
		return false, err
	}
	collateralValue := v.Collateral.MulDown(price)
	debtValue := v.Debt.MulDown(l.multiplier)
	if debtValue.IsZero() {
		return false, nil
	}
	return collateralValue.DivDown(debtValue).Cmp(l.params.LiquidationRatio) < 0, nil
}

// UpdateMultiplier moves the debt multiplier toward restoring the peg:
// multiplier += (observedAvg - peg) / dampingDivisor, floored at zero.
// The dynamic token reads the new value through MultiplierSource in the
// same operation, so the two views never diverge. Only the order book's
// epoch rollover holds the authority to call this.
func (a *FundingAuthority) UpdateMultiplier(observedAvg, peg fixed.Amount) fixed.Amount {
	next := a.l.nextMultiplier(observedAvg, peg)
	a.l.multiplier = next
	return next
}

// PreviewMultiplier returns what UpdateMultiplier would produce without
// applying it, so the holder can validate an operation against the
// post-rollover multiplier before committing anything.
func (a *FundingAuthority) PreviewMultiplier(observedAvg, peg fixed.Amount) fixed.Amount {
	return a.l.nextMultiplier(observedAvg, peg)
}

func (l *Ledger) nextMultiplier(observedAvg, peg fixed.Amount) fixed.Amount {
	delta := observedAvg.Sub(peg).DivInt(l.params.DampingDivisor)
	next := l.multiplier.Add(delta)
	if next.Sign() < 0 {
		next = fixed.Zero()
	}
	return next
}

// Vaults exposes the arena for snapshots.
func (l *Ledger) Vaults() []Vault {
	out := make([]Vault, len(l.vaults))
	copy(out, l.vaults)
	return out
}

// Restore overwrites the arena and multiplier, for snapshot restore only.
func (l *Ledger) Restore(vaults []Vault, multiplier fixed.Amount) {
	l.vaults = append([]Vault(nil), vaults...)
	l.multiplier = multiplier
}
