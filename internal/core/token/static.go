// Package token implements the two denominations of the protocol's debt:
// the static token holds multiplier-invariant principal units, the dynamic
// token reports balances rebased by the funding multiplier. Both views are
// backed by principal units; porting between them is a re-denomination,
// never a mint or burn of value.
package token

import (
	"errors"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// ErrDynamicUnbound is returned when porting before SetDynamic was called.
var ErrDynamicUnbound = errors.New("dynamic token not bound")

// MultiplierSource exposes the single authoritative debt multiplier.
// The vault ledger implements it; the dynamic token only ever reads
// through it, so the two can never diverge.
type MultiplierSource interface {
	Multiplier() fixed.Amount
}

// Static is the principal-unit debt token: a conventional balance ledger
// whose mint and burn are reserved to the vault ledger through a
// DebtAuthority capability.
type Static struct {
	ledger  *state.Ledger
	dynamic *Dynamic
}

// DebtAuthority is the capability handed to the vault ledger at
// construction. Holding it is the only way to mint or burn static debt.
type DebtAuthority struct {
	s *Static
}

// NewStatic creates the static token and its mint/burn capability.
func NewStatic(name string) (*Static, *DebtAuthority) {
	s := &Static{ledger: state.NewLedger(name)}
	return s, &DebtAuthority{s: s}
}

// SetDynamic binds the dynamic counterpart used by PortToDynamic.
func (s *Static) SetDynamic(d *Dynamic) {
	s.dynamic = d
}

// Name returns the token name.
func (s *Static) Name() string { return s.ledger.Name() }

// BalanceOf returns owner's principal balance.
func (s *Static) BalanceOf(owner state.Address) fixed.Amount {
	return s.ledger.BalanceOf(owner)
}

// Allowance returns what spender may move out of owner's balance.
func (s *Static) Allowance(owner, spender state.Address) fixed.Amount {
	return s.ledger.Allowance(owner, spender)
}

// Transfer moves amount of principal from the caller to dst.
func (s *Static) Transfer(ctx state.Context, dst state.Address, amount fixed.Amount) error {
	return s.ledger.Transfer(ctx, dst, amount)
}

// TransferFrom moves amount from src on the caller's allowance.
func (s *Static) TransferFrom(ctx state.Context, src, dst state.Address, amount fixed.Amount) error {
	return s.ledger.TransferFrom(ctx, src, dst, amount)
}

// Approve sets spender's allowance over the caller's balance.
func (s *Static) Approve(ctx state.Context, spender state.Address, amount fixed.Amount) error {
	return s.ledger.Approve(ctx, spender, amount)
}

// PortToDynamic re-denominates amount static units into amount dynamic
// units at the current multiplier: the caller's principal drops by amount
// and their reported dynamic balance rises by exactly amount.
func (s *Static) PortToDynamic(ctx state.Context, amount fixed.Amount) error {
	if s.dynamic == nil {
		return ErrDynamicUnbound
	}
	if s.dynamic.Multiplier().IsZero() {
		return ErrZeroMultiplier
	}
	if err := s.ledger.Burn(ctx.Caller, amount); err != nil {
		return err
	}
	s.dynamic.creditReported(ctx.Caller, amount)
	return nil
}

// portFromDynamic credits principal back; only the bound dynamic token
// calls this, after it has debited its own side.
func (s *Static) portFromDynamic(owner state.Address, amount fixed.Amount) {
	// Mint on the backing ledger cannot fail for a non-zero owner.
	_ = s.ledger.Mint(owner, amount)
}

// Mint credits principal to dst. Vault-ledger only.
func (a *DebtAuthority) Mint(dst state.Address, amount fixed.Amount) error {
	return a.s.ledger.Mint(dst, amount)
}

// Burn debits principal from src. Vault-ledger only.
func (a *DebtAuthority) Burn(src state.Address, amount fixed.Amount) error {
	return a.s.ledger.Burn(src, amount)
}

// Balances exposes the underlying balances for snapshots.
func (s *Static) Balances() map[state.Address]fixed.Amount {
	return s.ledger.Balances()
}

// SetBalance overwrites a balance, for snapshot restore only.
func (s *Static) SetBalance(owner state.Address, amount fixed.Amount) {
	s.ledger.SetBalance(owner, amount)
}

// ReplaceBalances reinstalls the full balance set, for snapshot restore
// only.
func (s *Static) ReplaceBalances(balances map[state.Address]fixed.Amount) {
	s.ledger.ReplaceBalances(balances)
}
