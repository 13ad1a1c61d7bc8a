// Package fixed implements the 10^18 fixed-point arithmetic used for all
// price, quantity, and fee math in the ledger. Values are *big.Int "wei"
// amounts; division truncates toward zero (big.Int Quo semantics).
package fixed

import (
	"errors"
	"math/big"
)

// ErrDivisionByZero is returned by Div when the divisor is zero.
// The ledger never divides by a legitimately-zero quantity unless an
// upstream invariant was already violated.
var ErrDivisionByZero = errors.New("fixed: division by zero")

// factor is the global scale: 10^18.
var factor = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Factor returns a copy of the 10^18 scale factor.
func Factor() *big.Int {
	return new(big.Int).Set(factor)
}

// Zero returns a fresh zero value.
func Zero() *big.Int {
	return new(big.Int)
}

// Scale converts whole units into the fixed-point representation (units * 10^18).
func Scale(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), factor)
}

// Add returns a + b without mutating either operand.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a - b without mutating either operand.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Mul returns the raw product a * b (scale is the caller's concern).
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

// Div returns a / b truncated toward zero.
func Div(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	return new(big.Int).Quo(a, b), nil
}

// Descale removes one scale factor: a / 10^18.
func Descale(a *big.Int) *big.Int {
	return new(big.Int).Quo(a, factor)
}

// MulDescale computes a * b / 10^18, the product of two scaled values
// brought back to a single scale.
func MulDescale(a, b *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, factor)
}

// MulDescaleTwice computes a * b / 10^18 / 10^18, used when both a rate
// and a factor are themselves scaled (e.g. notional * feeRate).
func MulDescaleTwice(a, b *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	p.Quo(p, factor)
	return p.Quo(p, factor)
}

// WeightedClose recomputes the running weighted-average close price after a
// (partial) close fill:
//
//	newAvg = (oldAvg*closedBefore + fillAmount*fillPrice) / (closedBefore + fillAmount)
func WeightedClose(oldAvg, closedBefore, fillAmount, fillPrice *big.Int) (*big.Int, error) {
	num := new(big.Int).Mul(oldAvg, closedBefore)
	num.Add(num, new(big.Int).Mul(fillAmount, fillPrice))
	den := new(big.Int).Add(closedBefore, fillAmount)
	return Div(num, den)
}
