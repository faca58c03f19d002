// Package field implements arithmetic over the fixed prime field used for
// secret sharing, together with the polynomial helpers built on it.
//
// All values are *big.Int in the range [0, P). Functions never modify their
// arguments and always return freshly allocated results, so they are safe to
// call from concurrent goroutines.
package field

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

// P is the field modulus, a 257-bit prime. Every 32-byte value is smaller
// than P.
var P, _ = new(big.Int).SetString("208351617316091241234326746312124448251235562226470491514186331217050270460481", 10)

// ElementSize is the number of bytes needed to hold any element big-endian.
const ElementSize = 33

var (
	two = big.NewInt(2)

	// ErrNotInvertible is returned when the inverse of zero is requested.
	ErrNotInvertible = errors.New("zero has no multiplicative inverse")
)

// Contains reports whether v is a canonical field element.
func Contains(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(P) < 0
}

// Reduce returns v mod P in [0, P).
func Reduce(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, P)
}

func Add(a, b *big.Int) *big.Int {
	r := new(big.Int).Add(a, b)
	return r.Mod(r, P)
}

func Sub(a, b *big.Int) *big.Int {
	r := new(big.Int).Sub(a, b)
	return r.Mod(r, P)
}

func Mul(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Mod(r, P)
}

// Inv returns a^(P-2) mod P, the multiplicative inverse of a by Fermat's
// little theorem.
func Inv(a *big.Int) (*big.Int, error) {
	r := Reduce(a)
	if r.Sign() == 0 {
		return nil, ErrNotInvertible
	}
	exp := new(big.Int).Sub(P, two)
	return r.Exp(r, exp, P), nil
}

// RandomElement draws a uniformly distributed element from [0, P).
func RandomElement(rnd io.Reader) (*big.Int, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	return rand.Int(rnd, P)
}

// Bytes encodes v as a fixed ElementSize big-endian buffer.
func Bytes(v *big.Int) []byte {
	buf := make([]byte, ElementSize)
	return v.FillBytes(buf)
}

// FromBytes decodes an ElementSize buffer and checks it is a canonical
// element.
func FromBytes(b []byte) (*big.Int, error) {
	if len(b) != ElementSize {
		return nil, errors.New("field element must be 33 bytes")
	}
	v := new(big.Int).SetBytes(b)
	if !Contains(v) {
		return nil, errors.New("value outside the finite field")
	}
	return v, nil
}
