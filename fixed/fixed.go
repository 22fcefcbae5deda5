// Package fixed implements the deterministic fixed-point arithmetic the
// pricing model and share accounting run on. Values are unsigned Q47.28:
// 47 integer bits, 28 fractional bits, 75 bits of raw magnitude. Every
// operation either returns an exact (truncated toward zero) result or an
// explicit error; nothing saturates silently and nothing goes through
// float64.
package fixed

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// FracBits is the position of the binary point.
	FracBits = 28
	// IntBits is the number of integer bits.
	IntBits = 47

	rawBits = IntBits + FracBits
)

var (
	ErrOverflow       = errors.New("fixed: overflow")
	ErrUnderflow      = errors.New("fixed: underflow")
	ErrDivisionByZero = errors.New("fixed: division by zero")
	ErrLogDomain      = errors.New("fixed: log2 of non-positive value")
)

// rawLimit is 2^75, the first raw value that no longer fits Q47.28.
var rawLimit = new(uint256.Int).Lsh(uint256.NewInt(1), rawBits)

// Fixed is an unsigned Q47.28 fixed-point number.
type Fixed struct {
	raw uint256.Int
}

// Zero returns the zero value.
func Zero() Fixed { return Fixed{} }

// One returns 1.0.
func One() Fixed {
	var f Fixed
	f.raw.Lsh(uint256.NewInt(1), FracBits)
	return f
}

// Two returns 2.0.
func Two() Fixed {
	var f Fixed
	f.raw.Lsh(uint256.NewInt(1), FracBits+1)
	return f
}

// FromUint converts an integer amount.
func FromUint(n uint64) (Fixed, error) {
	if n >= 1<<IntBits {
		return Fixed{}, fmt.Errorf("%w: %d exceeds %d integer bits", ErrOverflow, n, IntBits)
	}
	var f Fixed
	f.raw.Lsh(uint256.NewInt(n), FracBits)
	return f, nil
}

// FromRatio converts num/den, truncating toward zero.
func FromRatio(num, den uint64) (Fixed, error) {
	if den == 0 {
		return Fixed{}, ErrDivisionByZero
	}
	var n uint256.Int
	n.Lsh(uint256.NewInt(num), FracBits)
	var f Fixed
	f.raw.Div(&n, uint256.NewInt(den))
	if f.raw.Cmp(rawLimit) >= 0 {
		return Fixed{}, fmt.Errorf("%w: %d/%d", ErrOverflow, num, den)
	}
	return f, nil
}

// FromDecimal converts a decimal value, truncating excess precision toward
// zero. Negative inputs are rejected; this type is unsigned.
func FromDecimal(d decimal.Decimal) (Fixed, error) {
	if d.IsNegative() {
		return Fixed{}, fmt.Errorf("%w: negative value %s", ErrUnderflow, d)
	}
	scale := new(big.Int).Lsh(big.NewInt(1), FracBits)
	scaled := d.Mul(decimal.NewFromBigInt(scale, 0)).BigInt()
	if scaled.BitLen() > rawBits {
		return Fixed{}, fmt.Errorf("%w: %s", ErrOverflow, d)
	}
	var f Fixed
	f.raw.SetFromBig(scaled)
	return f, nil
}

// FromRaw builds a value from its raw Q47.28 representation.
func FromRaw(raw uint64) Fixed {
	var f Fixed
	f.raw.SetUint64(raw)
	return f
}

// Add returns f+o.
func (f Fixed) Add(o Fixed) (Fixed, error) {
	var r Fixed
	r.raw.Add(&f.raw, &o.raw)
	if r.raw.Cmp(rawLimit) >= 0 {
		return Fixed{}, fmt.Errorf("%w: add", ErrOverflow)
	}
	return r, nil
}

// Sub returns f-o, failing when the result would be negative.
func (f Fixed) Sub(o Fixed) (Fixed, error) {
	if f.raw.Cmp(&o.raw) < 0 {
		return Fixed{}, fmt.Errorf("%w: sub", ErrUnderflow)
	}
	var r Fixed
	r.raw.Sub(&f.raw, &o.raw)
	return r, nil
}

// Mul returns f*o, truncated toward zero.
func (f Fixed) Mul(o Fixed) (Fixed, error) {
	// Raw operands are < 2^75, so the full product is < 2^150 and cannot
	// wrap a 256-bit accumulator.
	var r Fixed
	r.raw.Mul(&f.raw, &o.raw)
	r.raw.Rsh(&r.raw, FracBits)
	if r.raw.Cmp(rawLimit) >= 0 {
		return Fixed{}, fmt.Errorf("%w: mul", ErrOverflow)
	}
	return r, nil
}

// Div returns f/o, truncated toward zero.
func (f Fixed) Div(o Fixed) (Fixed, error) {
	if o.raw.IsZero() {
		return Fixed{}, ErrDivisionByZero
	}
	var n uint256.Int
	n.Lsh(&f.raw, FracBits)
	var r Fixed
	r.raw.Div(&n, &o.raw)
	if r.raw.Cmp(rawLimit) >= 0 {
		return Fixed{}, fmt.Errorf("%w: div", ErrOverflow)
	}
	return r, nil
}

// Log2 returns the base-2 logarithm. The result is signed: inputs below one
// have negative logarithms. Zero input is a domain error.
func (f Fixed) Log2() (Signed, error) {
	if f.raw.IsZero() {
		return Signed{}, ErrLogDomain
	}
	// Exponent of the most significant bit relative to the binary point.
	exp := f.raw.BitLen() - 1 - FracBits

	// Normalize into [1, 2).
	var x uint256.Int
	if exp >= 0 {
		x.Rsh(&f.raw, uint(exp))
	} else {
		x.Lsh(&f.raw, uint(-exp))
	}

	// Fractional bits by repeated squaring: square x, emit 1 and halve
	// whenever it reaches [2, 4).
	two := new(uint256.Int).Lsh(uint256.NewInt(1), FracBits+1)
	var frac uint64
	for i := 0; i < FracBits; i++ {
		x.Mul(&x, &x)
		x.Rsh(&x, FracBits)
		frac <<= 1
		if x.Cmp(two) >= 0 {
			frac |= 1
			x.Rsh(&x, 1)
		}
	}

	if exp >= 0 {
		return NewSigned(FromRaw(uint64(exp)<<FracBits|frac), false), nil
	}
	// log2 = exp + frac/2^28 with exp < 0; magnitude is |exp| - frac/2^28.
	mag := uint64(-exp)<<FracBits - frac
	return NewSigned(FromRaw(mag), true), nil
}

// Cmp compares f and o, returning -1, 0 or 1.
func (f Fixed) Cmp(o Fixed) int { return f.raw.Cmp(&o.raw) }

// IsZero reports whether f is zero.
func (f Fixed) IsZero() bool { return f.raw.IsZero() }

// Floor returns the integer part.
func (f Fixed) Floor() uint64 {
	var r uint256.Int
	r.Rsh(&f.raw, FracBits)
	return r.Uint64()
}

// Ceil returns the smallest integer not below f.
func (f Fixed) Ceil() uint64 {
	n := f.Floor()
	if f.hasFrac() {
		n++
	}
	return n
}

// hasFrac reports whether any fractional bit is set.
func (f Fixed) hasFrac() bool {
	mask := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), FracBits), 1)
	var r uint256.Int
	r.And(&f.raw, mask)
	return !r.IsZero()
}

// Raw returns a copy of the Q47.28 raw representation.
func (f Fixed) Raw() *uint256.Int {
	return new(uint256.Int).Set(&f.raw)
}

// String renders the value with up to nine decimal places, trailing zeros
// trimmed.
func (f Fixed) String() string {
	intPart := f.Floor()
	if !f.hasFrac() {
		return fmt.Sprintf("%d", intPart)
	}
	mask := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), FracBits), 1)
	var frac uint256.Int
	frac.And(&f.raw, mask)
	frac.Mul(&frac, uint256.NewInt(1_000_000_000))
	frac.Rsh(&frac, FracBits)
	s := fmt.Sprintf("%d.%09d", intPart, frac.Uint64())
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}
