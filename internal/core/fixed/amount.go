// Package fixed implements the 1e18 fixed-point arithmetic used by every
// ledger component. Amounts are arbitrary-precision integers scaled by
// Scale, so 1.0 is stored as 10^18. All divisions floor; rounding always
// favors the protocol.
package fixed

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ScaleDecimals is the number of decimal places carried by an Amount.
const ScaleDecimals = 18

// scale is the fixed-point base (10^18). One() returns it as an Amount.
var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(ScaleDecimals), nil)

// Amount is an immutable 1e18-scaled integer. The zero value is 0.
// Arithmetic methods never mutate their receiver or operands.
type Amount struct {
	v *big.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// New returns an Amount holding the raw scaled integer i.
// New(1) is 10^-18, not 1.0; use FromUnits for whole units.
func New(i int64) Amount {
	return Amount{v: big.NewInt(i)}
}

// FromUnits returns n whole units, i.e. n * 10^18.
func FromUnits(n int64) Amount {
	return Amount{v: new(big.Int).Mul(big.NewInt(n), scale)}
}

// One returns 1.0 (the fixed-point base itself).
func One() Amount {
	return FromUnits(1)
}

// FromBig returns an Amount holding a copy of the raw scaled integer v.
func FromBig(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(v)}
}

// Parse converts a decimal string such as "1.5" or "0.0625" into an Amount.
// More than 18 fractional digits is rejected rather than silently truncated.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	shifted := d.Shift(ScaleDecimals)
	if !shifted.IsInteger() {
		return Amount{}, fmt.Errorf("amount %q has more than %d decimal places", s, ScaleDecimals)
	}
	return Amount{v: shifted.BigInt()}, nil
}

// MustParse is Parse for static literals; it panics on malformed input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the raw scaled integer.
func (a Amount) Big() *big.Int {
	return new(big.Int).Set(a.big())
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b. The result may be negative; callers guarding ledger
// balances must check Sign before committing.
func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.big(), b.big())}
}

// MulDown returns a * b / Scale, flooring the division.
func (a Amount) MulDown(b Amount) Amount {
	p := new(big.Int).Mul(a.big(), b.big())
	return Amount{v: p.Quo(p, scale)}
}

// DivDown returns a * Scale / b, flooring the division. b must be non-zero.
func (a Amount) DivDown(b Amount) Amount {
	p := new(big.Int).Mul(a.big(), scale)
	return Amount{v: p.Quo(p, b.big())}
}

// MulDivDown returns a * b / c at full intermediate precision, flooring.
// c must be non-zero.
func (a Amount) MulDivDown(b, c Amount) Amount {
	p := new(big.Int).Mul(a.big(), b.big())
	return Amount{v: p.Quo(p, c.big())}
}

// DivInt returns a / n, flooring. n must be non-zero.
func (a Amount) DivInt(n int64) Amount {
	return Amount{v: new(big.Int).Quo(a.big(), big.NewInt(n))}
}

// Cmp compares a and b, returning -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// Sign returns -1, 0 or +1 according to the sign of a.
func (a Amount) Sign() int {
	return a.big().Sign()
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool {
	return a.big().Sign() > 0
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

// String renders the amount as a plain decimal, e.g. "1.0625".
func (a Amount) String() string {
	return decimal.NewFromBigInt(a.big(), -ScaleDecimals).String()
}

// MarshalText implements encoding.TextMarshaler using the decimal form.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler for snapshot encoding.
func (a Amount) MarshalBinary() ([]byte, error) {
	return a.big().GobEncode()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (a *Amount) UnmarshalBinary(data []byte) error {
	v := new(big.Int)
	if err := v.GobDecode(data); err != nil {
		return err
	}
	a.v = v
	return nil
}
