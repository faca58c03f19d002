package shamir

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/ruteri/shamir-custody/field"
	"github.com/ruteri/shamir-custody/interfaces"
)

// MaxShares is the largest share count the wire header can carry.
const MaxShares = 255

// Validation codes reported by Split.
const (
	CodeInvalidSecret     = "INVALID_SECRET"
	CodeEmptySecret       = "EMPTY_SECRET"
	CodeInvalidThreshold  = "INVALID_THRESHOLD"
	CodeInvalidShareCount = "INVALID_SHARE_COUNT"
)

// Share is one evaluation point of the sharing polynomial.
type Share struct {
	Index int
	Value *big.Int
}

// Dealer splits and reconstructs secrets. A zero-value Dealer is ready to use
// and draws coefficients from crypto/rand.Reader.
type Dealer struct {
	// Rand must be a cryptographically secure source safe for concurrent use.
	Rand io.Reader
}

var defaultDealer = &Dealer{}

func (d *Dealer) rand() io.Reader {
	if d == nil || d.Rand == nil {
		return rand.Reader
	}
	return d.Rand
}

// Split shares secret among n holders so that any threshold of them can
// reconstruct it. Shares are returned ordered by index, starting at 1.
func (d *Dealer) Split(secret *big.Int, threshold, n int) ([]Share, error) {
	if err := validateParams(threshold, n); err != nil {
		return nil, err
	}
	if !field.Contains(secret) {
		return nil, &interfaces.ValidationError{Code: CodeInvalidSecret, Err: interfaces.ErrInvalidSecret}
	}

	poly, err := field.NewRandomPolynomial(secret, threshold-1, d.rand())
	if err != nil {
		return nil, err
	}
	defer poly.Wipe()

	shares := make([]Share, n)
	for i := 0; i < n; i++ {
		x := big.NewInt(int64(i + 1))
		shares[i] = Share{Index: i + 1, Value: poly.Eval(x)}
	}
	return shares, nil
}

// Reconstruct recovers the constant term from the given points. It only
// enforces the two-point minimum: passing fewer points than the threshold
// used at split time yields an unrelated value without an error, so callers
// must gate on the real threshold first.
func (d *Dealer) Reconstruct(shares []Share) (*big.Int, error) {
	if len(shares) < 2 {
		return nil, &interfaces.ReconstructionError{Err: interfaces.ErrNotEnoughPoints}
	}

	xs := make([]*big.Int, len(shares))
	ys := make([]*big.Int, len(shares))
	seen := make(map[int]struct{}, len(shares))
	for i, s := range shares {
		if s.Value == nil {
			return nil, &interfaces.ReconstructionError{Err: fmt.Errorf("share %d has no value", s.Index)}
		}
		if _, dup := seen[s.Index]; dup {
			return nil, &interfaces.ReconstructionError{Err: fmt.Errorf("%w: %d", interfaces.ErrDuplicatePoint, s.Index)}
		}
		seen[s.Index] = struct{}{}
		xs[i] = big.NewInt(int64(s.Index))
		ys[i] = field.Reduce(s.Value)
	}

	secret, err := field.InterpolateAtZero(xs, ys)
	if err != nil {
		return nil, &interfaces.ReconstructionError{Err: err}
	}
	return secret, nil
}

// Split uses a dealer backed by crypto/rand.
func Split(secret *big.Int, threshold, n int) ([]Share, error) {
	return defaultDealer.Split(secret, threshold, n)
}

// Reconstruct uses the default dealer.
func Reconstruct(shares []Share) (*big.Int, error) {
	return defaultDealer.Reconstruct(shares)
}

func validateParams(threshold, n int) error {
	if threshold < 2 {
		return &interfaces.ValidationError{
			Code: CodeInvalidThreshold,
			Err:  fmt.Errorf("%w: threshold must be at least 2, got %d", interfaces.ErrInvalidThreshold, threshold),
		}
	}
	if n < threshold {
		return &interfaces.ValidationError{
			Code: CodeInvalidShareCount,
			Err:  fmt.Errorf("%w: threshold %d exceeds share count %d", interfaces.ErrInvalidShareCount, threshold, n),
		}
	}
	if n > MaxShares {
		return &interfaces.ValidationError{
			Code: CodeInvalidShareCount,
			Err:  fmt.Errorf("%w: at most %d shares, got %d", interfaces.ErrInvalidShareCount, MaxShares, n),
		}
	}
	return nil
}
