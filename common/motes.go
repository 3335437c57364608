package common

import (
	"math/big"
)

// Motes is a non-negative 512-bit amount of the chain's native token. The
// pack's widest fixed-width integer (github.com/holiman/uint256) only covers
// 256 bits, insufficient for the spec's U512 domain, so this wraps math/big
// (see DESIGN.md / SPEC_FULL.md §12 for why that's the one stdlib fallback
// here) behind a type that only ever holds non-negative values.
type Motes struct {
	v *big.Int
}

// NewMotes constructs a Motes from a non-negative int64.
func NewMotes(v int64) Motes {
	if v < 0 {
		panic("common: negative motes")
	}
	return Motes{v: big.NewInt(v)}
}

// MotesFromBig wraps a copy of b, which must not be negative, as a Motes;
// later changes to b do not affect the result.
func MotesFromBig(b *big.Int) Motes {
	if b.Sign() < 0 {
		panic("common: negative motes")
	}
	return Motes{v: new(big.Int).Set(b)}
}

// NewMotesFromUint64 constructs a Motes from a uint64, safe for the full
// uint64 range unlike NewMotes.
func NewMotesFromUint64(v uint64) Motes {
	return Motes{v: new(big.Int).SetUint64(v)}
}

// ZeroMotes is the additive identity.
func ZeroMotes() Motes { return Motes{v: big.NewInt(0)} }

func (m Motes) bigOrZero() *big.Int {
	if m.v == nil {
		return big.NewInt(0)
	}
	return m.v
}

// Big returns a copy of m's value as a *big.Int.
func (m Motes) Big() *big.Int { return new(big.Int).Set(m.bigOrZero()) }

// Add returns m + other.
func (m Motes) Add(other Motes) Motes {
	return Motes{v: new(big.Int).Add(m.bigOrZero(), other.bigOrZero())}
}

// Sub returns max(m - other, 0); callers that need underflow detection should
// use SubChecked.
func (m Motes) Sub(other Motes) Motes {
	r := new(big.Int).Sub(m.bigOrZero(), other.bigOrZero())
	if r.Sign() < 0 {
		return ZeroMotes()
	}
	return Motes{v: r}
}

// SubChecked returns m - other and false if the result would be negative.
func (m Motes) SubChecked(other Motes) (Motes, bool) {
	r := new(big.Int).Sub(m.bigOrZero(), other.bigOrZero())
	if r.Sign() < 0 {
		return ZeroMotes(), false
	}
	return Motes{v: r}, true
}

// Mul returns m * scalar.
func (m Motes) Mul(scalar uint64) Motes {
	return Motes{v: new(big.Int).Mul(m.bigOrZero(), new(big.Int).SetUint64(scalar))}
}

// MulRatio returns floor(m * numerator / denominator).
func (m Motes) MulRatio(numerator, denominator uint64) Motes {
	if denominator == 0 {
		return ZeroMotes()
	}
	r := new(big.Int).Mul(m.bigOrZero(), new(big.Int).SetUint64(numerator))
	r.Div(r, new(big.Int).SetUint64(denominator))
	return Motes{v: r}
}

// Cmp compares m to other: -1, 0, +1.
func (m Motes) Cmp(other Motes) int { return m.bigOrZero().Cmp(other.bigOrZero()) }

// LessThan reports whether m < other.
func (m Motes) LessThan(other Motes) bool { return m.Cmp(other) < 0 }

// GreaterOrEqual reports whether m >= other.
func (m Motes) GreaterOrEqual(other Motes) bool { return m.Cmp(other) >= 0 }

// IsZero reports whether m is zero.
func (m Motes) IsZero() bool { return m.bigOrZero().Sign() == 0 }

// String renders the base-10 decimal amount.
func (m Motes) String() string { return m.bigOrZero().String() }

// MarshalText implements encoding.TextMarshaler.
func (m Motes) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Motes) UnmarshalText(text []byte) error {
	v, ok := new(big.Int).SetString(string(text), 10)
	if !ok {
		return &invalidMotesError{s: string(text)}
	}
	if v.Sign() < 0 {
		return &invalidMotesError{s: string(text)}
	}
	m.v = v
	return nil
}

type invalidMotesError struct{ s string }

func (e *invalidMotesError) Error() string { return "common: invalid motes amount: " + e.s }
