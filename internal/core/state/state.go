// Package state holds the primitives shared by every ledger component:
// account addresses, the logical transaction context, and the balance
// ledger used for the collateral token and as the base of both debt tokens.
package state

// Address identifies an account. The zero value is the tombstone sentinel:
// it owns nothing, and records whose owner is the zero address are unused.
type Address string

// ZeroAddress is the tombstone/unused sentinel.
const ZeroAddress Address = ""

// IsZero reports whether a is the sentinel address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Context carries the caller and the logical clock for one operation.
// Time is never read from the environment; the caller supplies it and it
// must advance monotonically across operations, which keeps staleness and
// epoch gating deterministic under test.
type Context struct {
	Caller Address
	Now    int64
}

// At returns a copy of the context with the clock advanced by d seconds.
func (c Context) At(d int64) Context {
	c.Now += d
	return c
}

// As returns a copy of the context with a different caller.
func (c Context) As(caller Address) Context {
	c.Caller = caller
	return c
}
