package shamir

import (
	"crypto/rand"
	"errors"
	"math/big"
	mrand "math/rand/v2"
	"testing"

	"github.com/ruteri/shamir-custody/field"
	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seededDealer returns a dealer with a reproducible random source. Only tests
// may construct one: a seeded split is not secret-sharing safe.
func seededDealer(seed byte) *Dealer {
	var s [32]byte
	s[0] = seed
	return &Dealer{Rand: mrand.NewChaCha8(s)}
}

func randomSecret(t *testing.T) *big.Int {
	t.Helper()
	s, err := field.RandomElement(rand.Reader)
	require.NoError(t, err)
	return s
}

func TestSplit_RoundTrip(t *testing.T) {
	tests := []struct {
		threshold, n int
	}{
		{2, 2},
		{2, 3},
		{3, 5},
		{5, 5},
		{7, 20},
		{50, 50},
	}

	for _, tt := range tests {
		secret := randomSecret(t)
		shares, err := Split(secret, tt.threshold, tt.n)
		require.NoError(t, err, "k=%d n=%d", tt.threshold, tt.n)
		require.Len(t, shares, tt.n)

		for i, s := range shares {
			assert.Equal(t, i+1, s.Index)
			assert.True(t, field.Contains(s.Value))
		}

		got, err := Reconstruct(shares[:tt.threshold])
		require.NoError(t, err)
		assert.Equal(t, 0, secret.Cmp(got), "k=%d n=%d", tt.threshold, tt.n)

		got, err = Reconstruct(shares)
		require.NoError(t, err)
		assert.Equal(t, 0, secret.Cmp(got), "all shares must also reconstruct")
	}
}

func TestSplit_SubsetInvariance(t *testing.T) {
	secret := randomSecret(t)
	shares, err := Split(secret, 3, 5)
	require.NoError(t, err)

	subsets := [][]int{{0, 1, 2}, {0, 2, 4}, {1, 3, 4}, {4, 3, 2}, {2, 0, 3}}
	for _, idx := range subsets {
		subset := []Share{shares[idx[0]], shares[idx[1]], shares[idx[2]]}
		got, err := Reconstruct(subset)
		require.NoError(t, err)
		assert.Equal(t, 0, secret.Cmp(got), "subset %v", idx)
	}
}

func TestReconstruct_BelowThresholdIsSilentlyWrong(t *testing.T) {
	secret := randomSecret(t)
	shares, err := Split(secret, 4, 6)
	require.NoError(t, err)

	got, err := Reconstruct(shares[:3])
	require.NoError(t, err, "the math layer does not know the threshold")
	assert.NotEqual(t, 0, secret.Cmp(got))
}

func TestSplit_Validation(t *testing.T) {
	tests := []struct {
		name         string
		secret       *big.Int
		threshold, n int
		code         string
		cause        error
	}{
		{"threshold one", big.NewInt(1), 1, 3, CodeInvalidThreshold, interfaces.ErrInvalidThreshold},
		{"threshold exceeds count", big.NewInt(1), 5, 3, CodeInvalidShareCount, interfaces.ErrInvalidShareCount},
		{"too many shares", big.NewInt(1), 2, 256, CodeInvalidShareCount, interfaces.ErrInvalidShareCount},
		{"negative secret", big.NewInt(-1), 2, 3, CodeInvalidSecret, interfaces.ErrInvalidSecret},
		{"secret equals modulus", new(big.Int).Set(field.P), 2, 3, CodeInvalidSecret, interfaces.ErrInvalidSecret},
		{"nil secret", nil, 2, 3, CodeInvalidSecret, interfaces.ErrInvalidSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.secret, tt.threshold, tt.n)
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrValidation)
			assert.ErrorIs(t, err, tt.cause)

			var verr *interfaces.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.code, verr.Code)
		})
	}
}

func TestSplit_BoundarySecrets(t *testing.T) {
	for _, secret := range []*big.Int{big.NewInt(0), new(big.Int).Sub(field.P, big.NewInt(1))} {
		shares, err := Split(secret, 2, 3)
		require.NoError(t, err)
		got, err := Reconstruct(shares[1:])
		require.NoError(t, err)
		assert.Equal(t, 0, secret.Cmp(got))
	}
}

func TestReconstruct_Errors(t *testing.T) {
	_, err := Reconstruct(nil)
	assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	assert.ErrorIs(t, err, interfaces.ErrNotEnoughPoints)

	_, err = Reconstruct([]Share{{Index: 1, Value: big.NewInt(5)}})
	assert.ErrorIs(t, err, interfaces.ErrNotEnoughPoints)

	_, err = Reconstruct([]Share{{Index: 1, Value: big.NewInt(5)}, {Index: 1, Value: big.NewInt(6)}})
	assert.ErrorIs(t, err, interfaces.ErrReconstruction)
	assert.ErrorIs(t, err, interfaces.ErrDuplicatePoint)

	_, err = Reconstruct([]Share{{Index: 1, Value: big.NewInt(5)}, {Index: 2}})
	assert.ErrorIs(t, err, interfaces.ErrReconstruction)
}

func TestDealer_SeededIsReproducible(t *testing.T) {
	secret := big.NewInt(987654321)

	a, err := seededDealer(42).Split(secret, 2, 3)
	require.NoError(t, err)
	b, err := seededDealer(42).Split(secret, 2, 3)
	require.NoError(t, err)
	c, err := seededDealer(7).Split(secret, 2, 3)
	require.NoError(t, err)

	for i := range a {
		assert.Equal(t, 0, a[i].Value.Cmp(b[i].Value))
	}
	assert.NotEqual(t, 0, a[0].Value.Cmp(c[0].Value))
}

func TestSplit_DistinctShares(t *testing.T) {
	shares, err := Split(big.NewInt(31337), 2, 4)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, s := range shares {
		seen[s.Value.String()] = true
	}
	assert.Len(t, seen, 4)
}
