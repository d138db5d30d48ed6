package token

import (
	"errors"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// ErrZeroMultiplier rejects reported-unit conversions while the funding
// multiplier sits at its zero floor: no reported amount corresponds to any
// principal, so ports and transfers in reported units are undefined.
// Principal units themselves stay intact and movable.
var ErrZeroMultiplier = errors.New("debt multiplier is zero")

// Dynamic is the rebasing debt token. Balances are stored internally in
// principal-equivalent units; every reported figure is
// internal * multiplier / SCALE, floored. All conversions floor so the
// rebase can never inflate balances.
type Dynamic struct {
	name       string
	multiplier MultiplierSource
	static     *Static
	internal   map[state.Address]fixed.Amount
	// allowances are kept in reported units, like every external amount.
	allowances map[state.Address]map[state.Address]fixed.Amount
}

// NewDynamic creates the dynamic token reading the multiplier through src
// and porting principal back through static.
func NewDynamic(name string, src MultiplierSource, static *Static) *Dynamic {
	d := &Dynamic{
		name:       name,
		multiplier: src,
		static:     static,
		internal:   make(map[state.Address]fixed.Amount),
		allowances: make(map[state.Address]map[state.Address]fixed.Amount),
	}
	static.SetDynamic(d)
	return d
}

// Name returns the token name.
func (d *Dynamic) Name() string { return d.name }

// Multiplier returns the current balance multiplier. It is a read-through
// to the vault ledger's copy, so the two are equal by construction.
func (d *Dynamic) Multiplier() fixed.Amount {
	return d.multiplier.Multiplier()
}

// BalanceOf returns owner's externally-reported balance.
func (d *Dynamic) BalanceOf(owner state.Address) fixed.Amount {
	return d.internal[owner].MulDown(d.Multiplier())
}

// InternalBalanceOf returns owner's principal-equivalent units.
func (d *Dynamic) InternalBalanceOf(owner state.Address) fixed.Amount {
	return d.internal[owner]
}

// Allowance returns spender's allowance over owner, in reported units.
func (d *Dynamic) Allowance(owner, spender state.Address) fixed.Amount {
	return d.allowances[owner][spender]
}

// Approve sets spender's allowance over the caller, in reported units.
func (d *Dynamic) Approve(ctx state.Context, spender state.Address, amount fixed.Amount) error {
	if spender.IsZero() {
		return state.ErrZeroAddress
	}
	inner := d.allowances[ctx.Caller]
	if inner == nil {
		inner = make(map[state.Address]fixed.Amount)
		d.allowances[ctx.Caller] = inner
	}
	inner[spender] = amount
	return nil
}

// Transfer moves amount (reported units) from the caller to dst.
func (d *Dynamic) Transfer(ctx state.Context, dst state.Address, amount fixed.Amount) error {
	return d.move(ctx.Caller, dst, amount)
}

// TransferFrom moves amount (reported units) from src on the caller's
// allowance.
func (d *Dynamic) TransferFrom(ctx state.Context, src, dst state.Address, amount fixed.Amount) error {
	allowed := d.Allowance(src, ctx.Caller)
	if allowed.Cmp(amount) < 0 {
		return state.ErrInsufficientAllowance
	}
	if err := d.move(src, dst, amount); err != nil {
		return err
	}
	d.allowances[src][ctx.Caller] = allowed.Sub(amount)
	return nil
}

// PortToStatic re-denominates amount dynamic units back into principal:
// the caller's reported dynamic balance drops by amount and their static
// balance rises by exactly amount.
func (d *Dynamic) PortToStatic(ctx state.Context, amount fixed.Amount) error {
	if err := d.debitReported(ctx.Caller, amount); err != nil {
		return err
	}
	d.static.portFromDynamic(ctx.Caller, amount)
	return nil
}

// TransferUnits moves internal principal units from the caller to dst,
// without the reported-unit conversion. Unit balances do not rebase, so
// escrow accounted in units stays exact under any multiplier, zero
// included.
func (d *Dynamic) TransferUnits(ctx state.Context, dst state.Address, units fixed.Amount) error {
	if dst.IsZero() {
		return state.ErrZeroAddress
	}
	if units.Sign() < 0 || d.internal[ctx.Caller].Cmp(units) < 0 {
		return state.ErrInsufficientBalance
	}
	d.internal[ctx.Caller] = d.internal[ctx.Caller].Sub(units)
	d.internal[dst] = d.internal[dst].Add(units)
	return nil
}

func (d *Dynamic) move(src, dst state.Address, amount fixed.Amount) error {
	if dst.IsZero() {
		return state.ErrZeroAddress
	}
	m := d.Multiplier()
	if m.IsZero() {
		return ErrZeroMultiplier
	}
	if amount.Sign() < 0 {
		return state.ErrInsufficientBalance
	}
	if d.BalanceOf(src).Cmp(amount) < 0 {
		return state.ErrInsufficientBalance
	}
	units := amount.DivDown(m)
	d.internal[src] = d.internal[src].Sub(units)
	d.internal[dst] = d.internal[dst].Add(units)
	return nil
}

// creditReported adds amount reported units to owner. Called by the static
// token while porting, after the static side was already debited; the
// static side checks the multiplier is non-zero before debiting.
func (d *Dynamic) creditReported(owner state.Address, amount fixed.Amount) {
	d.internal[owner] = d.internal[owner].Add(amount.DivDown(d.Multiplier()))
}

func (d *Dynamic) debitReported(owner state.Address, amount fixed.Amount) error {
	m := d.Multiplier()
	if m.IsZero() {
		return ErrZeroMultiplier
	}
	if d.BalanceOf(owner).Cmp(amount) < 0 {
		return state.ErrInsufficientBalance
	}
	d.internal[owner] = d.internal[owner].Sub(amount.DivDown(m))
	return nil
}

// InternalBalances exposes principal-equivalent balances for snapshots.
func (d *Dynamic) InternalBalances() map[state.Address]fixed.Amount {
	out := make(map[state.Address]fixed.Amount, len(d.internal))
	for addr, bal := range d.internal {
		if !bal.IsZero() {
			out[addr] = bal
		}
	}
	return out
}

// SetInternalBalance overwrites a balance, for snapshot restore only.
func (d *Dynamic) SetInternalBalance(owner state.Address, amount fixed.Amount) {
	d.internal[owner] = amount
}

// ReplaceInternalBalances reinstalls the full principal-unit balance set
// and clears allowances, for snapshot restore only.
func (d *Dynamic) ReplaceInternalBalances(balances map[state.Address]fixed.Amount) {
	d.internal = make(map[state.Address]fixed.Amount, len(balances))
	for addr, bal := range balances {
		d.internal[addr] = bal
	}
	d.allowances = make(map[state.Address]map[state.Address]fixed.Amount)
}
