package state

import (
	"errors"

	"github.com/fxperp/fxperpd/internal/core/fixed"
)

// Balance ledger errors.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
)

// Ledger is a plain fungible-token balance ledger with allowances.
// The collateral token is exactly this; the static and dynamic debt tokens
// build on it. Mutating methods validate fully before writing, so a failed
// call leaves the ledger untouched.
type Ledger struct {
	name       string
	balances   map[Address]fixed.Amount
	allowances map[Address]map[Address]fixed.Amount
}

// NewLedger creates an empty balance ledger. The name is informational
// (snapshots and logs).
func NewLedger(name string) *Ledger {
	return &Ledger{
		name:       name,
		balances:   make(map[Address]fixed.Amount),
		allowances: make(map[Address]map[Address]fixed.Amount),
	}
}

// Name returns the ledger's token name.
func (l *Ledger) Name() string {
	return l.name
}

// BalanceOf returns the balance of owner, zero for unknown accounts.
func (l *Ledger) BalanceOf(owner Address) fixed.Amount {
	return l.balances[owner]
}

// Allowance returns what spender may move out of owner's balance.
func (l *Ledger) Allowance(owner, spender Address) fixed.Amount {
	return l.allowances[owner][spender]
}

// Approve sets spender's allowance over the caller's balance.
func (l *Ledger) Approve(ctx Context, spender Address, amount fixed.Amount) error {
	if spender.IsZero() {
		return ErrZeroAddress
	}
	inner := l.allowances[ctx.Caller]
	if inner == nil {
		inner = make(map[Address]fixed.Amount)
		l.allowances[ctx.Caller] = inner
	}
	inner[spender] = amount
	return nil
}

// Transfer moves amount from the caller to dst.
func (l *Ledger) Transfer(ctx Context, dst Address, amount fixed.Amount) error {
	return l.move(ctx.Caller, dst, amount)
}

// TransferFrom moves amount from src to dst on the caller's allowance.
func (l *Ledger) TransferFrom(ctx Context, src, dst Address, amount fixed.Amount) error {
	allowed := l.Allowance(src, ctx.Caller)
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(src, dst, amount); err != nil {
		return err
	}
	l.allowances[src][ctx.Caller] = allowed.Sub(amount)
	return nil
}

// Mint credits amount to dst out of nothing. Restricted callers (the vault
// ledger for debt tokens) enforce their own authorization above this.
func (l *Ledger) Mint(dst Address, amount fixed.Amount) error {
	if dst.IsZero() {
		return ErrZeroAddress
	}
	if amount.Sign() < 0 {
		return ErrInsufficientBalance
	}
	l.balances[dst] = l.balances[dst].Add(amount)
	return nil
}

// Burn debits amount from src.
func (l *Ledger) Burn(src Address, amount fixed.Amount) error {
	bal := l.balances[src]
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[src] = bal.Sub(amount)
	return nil
}

func (l *Ledger) move(src, dst Address, amount fixed.Amount) error {
	if dst.IsZero() {
		return ErrZeroAddress
	}
	if amount.Sign() < 0 {
		return ErrInsufficientBalance
	}
	bal := l.balances[src]
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[src] = bal.Sub(amount)
	l.balances[dst] = l.balances[dst].Add(amount)
	return nil
}

// Balances returns a copy of all non-zero balances, for snapshots.
func (l *Ledger) Balances() map[Address]fixed.Amount {
	out := make(map[Address]fixed.Amount, len(l.balances))
	for addr, bal := range l.balances {
		if !bal.IsZero() {
			out[addr] = bal
		}
	}
	return out
}

// SetBalance overwrites an account's balance, for snapshot restore only.
func (l *Ledger) SetBalance(owner Address, amount fixed.Amount) {
	l.balances[owner] = amount
}

// ReplaceBalances discards all balances and allowances and installs the
// given balance set, for snapshot restore only. Allowances are not part of
// snapshots; spenders are re-approved after a restart.
func (l *Ledger) ReplaceBalances(balances map[Address]fixed.Amount) {
	l.balances = make(map[Address]fixed.Amount, len(balances))
	for addr, bal := range balances {
		l.balances[addr] = bal
	}
	l.allowances = make(map[Address]map[Address]fixed.Amount)
}
