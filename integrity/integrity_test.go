package integrity

import (
	"encoding/hex"
	"testing"

	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32(t *testing.T) {
	// Standard IEEE check value.
	assert.Equal(t, uint32(0xcbf43926), CRC32([]byte("123456789")))

	require.NoError(t, VerifyCRC32([]byte("123456789"), 0xcbf43926))

	err := VerifyCRC32([]byte("123456780"), 0xcbf43926)
	assert.ErrorIs(t, err, interfaces.ErrIntegrity)
	assert.ErrorIs(t, err, interfaces.ErrCRCMismatch)
}

func TestHMACSHA256(t *testing.T) {
	// RFC 4231 test case 2.
	tag := HMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", hex.EncodeToString(tag))
	assert.Len(t, tag, MACSize)

	require.NoError(t, VerifyHMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"), tag))

	err := VerifyHMACSHA256([]byte("jefe"), []byte("what do ya want for nothing?"), tag)
	assert.ErrorIs(t, err, interfaces.ErrIntegrity)
	assert.ErrorIs(t, err, interfaces.ErrMACMismatch)

	err = VerifyHMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"), tag[:16])
	assert.ErrorIs(t, err, interfaces.ErrMACMismatch)
}
