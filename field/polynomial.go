package field

import (
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Polynomial holds coefficients in ascending order of degree; element 0 is
// the constant term.
type Polynomial []*big.Int

// NewRandomPolynomial returns a polynomial of the given degree whose constant
// term is secret and whose remaining coefficients are drawn from rnd.
func NewRandomPolynomial(secret *big.Int, degree int, rnd io.Reader) (Polynomial, error) {
	if degree < 0 {
		return nil, fmt.Errorf("negative degree %d", degree)
	}
	coeffs := make(Polynomial, degree+1)
	coeffs[0] = new(big.Int).Set(secret)
	for i := 1; i <= degree; i++ {
		c, err := RandomElement(rnd)
		if err != nil {
			return nil, fmt.Errorf("failed to draw coefficient: %w", err)
		}
		coeffs[i] = c
	}
	return coeffs, nil
}

// Eval evaluates the polynomial at x using Horner's rule.
func (p Polynomial) Eval(x *big.Int) *big.Int {
	result := new(big.Int)
	for i := len(p) - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, p[i])
		result.Mod(result, P)
	}
	return result
}

// Wipe zeroes every coefficient in place.
func (p Polynomial) Wipe() {
	for _, c := range p {
		if c != nil {
			c.SetInt64(0)
		}
	}
}

// InterpolateAtZero evaluates at x=0 the unique polynomial of degree
// len(xs)-1 passing through the points (xs[i], ys[i]).
func InterpolateAtZero(xs, ys []*big.Int) (*big.Int, error) {
	if len(xs) != len(ys) {
		return nil, errors.New("mismatched point coordinates")
	}

	total := new(big.Int)
	for i := range xs {
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j := range xs {
			if i == j {
				continue
			}
			// (0 - xj) / (xi - xj)
			num = Mul(num, Sub(new(big.Int), xs[j]))
			den = Mul(den, Sub(xs[i], xs[j]))
		}
		inv, err := Inv(den)
		if err != nil {
			return nil, fmt.Errorf("points %d share an x coordinate: %w", i, err)
		}
		term := Mul(ys[i], Mul(num, inv))
		total = Add(total, term)
	}
	return total, nil
}
