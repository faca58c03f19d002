package kms

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/ruteri/shamir-custody/shareformat"
	"github.com/ruteri/shamir-custody/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAdmin struct {
	priv   *ecdsa.PrivateKey
	pubPEM []byte
}

func newAdmins(t *testing.T, n int) ([]testAdmin, [][]byte) {
	t.Helper()
	admins := make([]testAdmin, n)
	pubs := make([][]byte, n)
	for i := range admins {
		privPEM, pubPEM, err := cryptoutils.GenerateAdminKeyPair()
		require.NoError(t, err, "Failed to generate admin key")
		priv, err := cryptoutils.ParsePrivateKey([]byte(privPEM))
		require.NoError(t, err)
		admins[i] = testAdmin{priv: priv, pubPEM: []byte(pubPEM)}
		pubs[i] = []byte(pubPEM)
	}
	return admins, pubs
}

func newMasterKey(t *testing.T) []byte {
	t.Helper()
	masterKey := make([]byte, 32)
	_, err := rand.Read(masterKey)
	require.NoError(t, err, "Failed to generate test master key")
	return masterKey
}

func submit(t *testing.T, k *ShamirKMS, admin testAdmin, share IssuedShare) error {
	t.Helper()
	sig, err := cryptoutils.SignMessage(share.Encoded, admin.priv)
	require.NoError(t, err, "Failed to sign share")
	return k.SubmitShare(ShareSubmission{SessionID: share.SessionID, Encoded: share.Encoded}, sig, admin.pubPEM)
}

func TestShamirKMS_NewShamirKMS(t *testing.T) {
	masterKey := newMasterKey(t)
	_, pubs := newAdmins(t, 5)
	macKey := bytes.Repeat([]byte{0x42}, 32)

	kms, shares, err := NewShamirKMS(masterKey, ShamirConfig{Threshold: 3, AdminPubKeys: pubs, MACKey: macKey})
	require.NoError(t, err, "NewShamirKMS should succeed with valid parameters")
	assert.True(t, kms.IsUnlocked(), "KMS should start in unlocked state when initiated with master key")
	require.Len(t, shares, 5)

	sessionID := kms.Context().SessionID
	assert.NotEmpty(t, sessionID)
	for i, s := range shares {
		assert.Equal(t, i+1, s.Index)
		assert.Equal(t, sessionID, s.SessionID)

		h, _, err := shareformat.Decode(s.Encoded, macKey)
		require.NoError(t, err)
		assert.Equal(t, shareformat.NewHeader(3, 5, i+1), h)
	}

	got, err := kms.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, masterKey, got)

	// The KMS keeps its own copy.
	masterKey[0] ^= 0xff
	got, err = kms.MasterKey()
	require.NoError(t, err)
	assert.NotEqual(t, masterKey[0], got[0])
}

func TestShamirKMS_NewShamirKMSInvalid(t *testing.T) {
	masterKey := newMasterKey(t)
	_, pubs := newAdmins(t, 5)

	_, _, err := NewShamirKMS(masterKey, ShamirConfig{Threshold: 6, AdminPubKeys: pubs})
	assert.ErrorIs(t, err, interfaces.ErrValidation, "Should fail when threshold > total shares")

	_, _, err = NewShamirKMS(masterKey, ShamirConfig{Threshold: 1, AdminPubKeys: pubs})
	assert.Error(t, err, "Should fail when threshold < 2")

	_, _, err = NewShamirKMS(make([]byte, 16), ShamirConfig{Threshold: 3, AdminPubKeys: pubs})
	assert.ErrorIs(t, err, interfaces.ErrValidation, "Should fail with master key < 32 bytes")

	_, _, err = NewShamirKMS(masterKey, ShamirConfig{Threshold: 2, AdminPubKeys: [][]byte{pubs[0], []byte("not-a-valid-pem")}})
	assert.Error(t, err, "Should fail with invalid PEM")

	_, _, err = NewShamirKMS(masterKey, ShamirConfig{Threshold: 2, AdminPubKeys: [][]byte{pubs[0], pubs[0]}})
	assert.Error(t, err, "Should fail with a repeated admin")

	_, shares, err := NewShamirKMS(masterKey, ShamirConfig{Threshold: 2, AdminPubKeys: pubs, DryRun: true})
	assert.ErrorContains(t, err, "DRY_RUN_ACTIVE")
	assert.Nil(t, shares)
}

func TestShamirKMS_NewShamirKMSRecovery(t *testing.T) {
	_, pubs := newAdmins(t, 3)

	kms, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 2, AdminPubKeys: pubs})
	require.NoError(t, err)
	assert.False(t, kms.IsUnlocked(), "KMS should start in locked state")
	assert.Equal(t, Status{Threshold: 2, TotalShares: 3}, kms.Status())

	_, err = kms.MasterKey()
	assert.ErrorIs(t, err, ErrLocked)
	_, err = kms.DeriveKey("app", 32)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = NewShamirKMSRecovery(ShamirConfig{Threshold: 4, AdminPubKeys: pubs})
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestShamirKMS_ShareSubmission(t *testing.T) {
	masterKey := newMasterKey(t)
	admins, pubs := newAdmins(t, 5)
	macKey := bytes.Repeat([]byte{0x07}, 32)

	_, shares, err := NewShamirKMS(masterKey, ShamirConfig{Threshold: 3, AdminPubKeys: pubs, MACKey: macKey})
	require.NoError(t, err, "Failed to create KMS")

	recovery, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 3, AdminPubKeys: pubs, MACKey: macKey})
	require.NoError(t, err)

	// Any three admins will do.
	for _, i := range []int{4, 1, 2} {
		require.NoError(t, submit(t, recovery, admins[i], shares[i]), "Share submission should succeed")
	}

	assert.True(t, recovery.IsUnlocked(), "KMS should be unlocked after threshold shares")
	got, err := recovery.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, masterKey, got)
	assert.Equal(t, shares[0].SessionID, recovery.Status().SessionID)
	assert.Zero(t, recovery.Status().ReceivedShares)

	assert.ErrorIs(t, submit(t, recovery, admins[0], shares[0]), ErrAlreadyUnlocked)
}

func TestShamirKMS_ShareRejections(t *testing.T) {
	masterKey := newMasterKey(t)
	admins, pubs := newAdmins(t, 5)

	_, shares, err := NewShamirKMS(masterKey, ShamirConfig{Threshold: 3, AdminPubKeys: pubs})
	require.NoError(t, err)

	recovery, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 3, AdminPubKeys: pubs})
	require.NoError(t, err)

	t.Run("invalid signature", func(t *testing.T) {
		sub := ShareSubmission{SessionID: shares[0].SessionID, Encoded: shares[0].Encoded}
		err := recovery.SubmitShare(sub, []byte("invalid-signature"), admins[0].pubPEM)
		assert.ErrorIs(t, err, cryptoutils.ErrInvalidSignature)
	})

	t.Run("unregistered admin", func(t *testing.T) {
		outsiders, _ := newAdmins(t, 1)
		assert.ErrorIs(t, submit(t, recovery, outsiders[0], shares[0]), ErrUnknownAdmin)
	})

	t.Run("corrupted share", func(t *testing.T) {
		tampered := bytes.Clone(shares[1].Encoded)
		tampered[shareformat.HeaderSize] ^= 0x01
		err := submit(t, recovery, admins[1], IssuedShare{Index: 2, SessionID: shares[1].SessionID, Encoded: tampered})
		assert.ErrorIs(t, err, interfaces.ErrCRCMismatch)
	})

	t.Run("duplicate index from another admin", func(t *testing.T) {
		require.NoError(t, submit(t, recovery, admins[2], shares[2]))
		err := submit(t, recovery, admins[3], shares[2])
		assert.Equal(t, verify.CodeDuplicateShare, interfaces.ErrorCode(err))
	})

	t.Run("admin submits twice", func(t *testing.T) {
		assert.ErrorIs(t, submit(t, recovery, admins[2], shares[3]), ErrAlreadySubmitted)
	})

	assert.False(t, recovery.IsUnlocked())
	assert.Equal(t, 1, recovery.Status().ReceivedShares)
}

func TestShamirKMS_SessionMismatchResetsSubmissions(t *testing.T) {
	admins, pubs := newAdmins(t, 3)

	_, shares, err := NewShamirKMS(newMasterKey(t), ShamirConfig{Threshold: 2, AdminPubKeys: pubs})
	require.NoError(t, err)

	recovery, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 2, AdminPubKeys: pubs, SessionID: "other-session"})
	require.NoError(t, err)

	require.NoError(t, submit(t, recovery, admins[0], shares[0]))
	err = submit(t, recovery, admins[1], shares[1])
	assert.Equal(t, verify.CodeShareContextMismatch, interfaces.ErrorCode(err))

	assert.False(t, recovery.IsUnlocked())
	assert.Zero(t, recovery.Status().ReceivedShares, "rejected set must be discarded")
}

func TestShamirKMS_ThresholdMismatch(t *testing.T) {
	admins, pubs := newAdmins(t, 3)

	_, shares, err := NewShamirKMS(newMasterKey(t), ShamirConfig{Threshold: 3, AdminPubKeys: pubs})
	require.NoError(t, err)

	// Recovery configured for 2-of-3 while the shares say 3-of-3.
	recovery, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 2, AdminPubKeys: pubs})
	require.NoError(t, err)

	require.NoError(t, submit(t, recovery, admins[0], shares[0]))
	err = submit(t, recovery, admins[1], shares[1])
	assert.Equal(t, verify.CodeShareContextMismatch, interfaces.ErrorCode(err))
}

func TestShamirKMS_DeriveKeyAndLock(t *testing.T) {
	_, pubs := newAdmins(t, 2)

	kms, _, err := NewShamirKMS(newMasterKey(t), ShamirConfig{Threshold: 2, AdminPubKeys: pubs})
	require.NoError(t, err)

	a1, err := kms.DeriveKey("app-a", 32)
	require.NoError(t, err)
	a2, err := kms.DeriveKey("app-a", 32)
	require.NoError(t, err)
	b, err := kms.DeriveKey("app-b", 32)
	require.NoError(t, err)

	assert.Len(t, a1, 32)
	assert.Equal(t, a1, a2, "derivation must be deterministic")
	assert.NotEqual(t, a1, b)

	kms.Lock()
	assert.False(t, kms.IsUnlocked())
	_, err = kms.MasterKey()
	assert.ErrorIs(t, err, ErrLocked)
}

func TestShamirKMS_AdoptedSessionIsForgottenOnFailure(t *testing.T) {
	admins, pubs := newAdmins(t, 3)

	_, good, err := NewShamirKMS(newMasterKey(t), ShamirConfig{Threshold: 2, AdminPubKeys: pubs})
	require.NoError(t, err)

	recovery, err := NewShamirKMSRecovery(ShamirConfig{Threshold: 2, AdminPubKeys: pubs})
	require.NoError(t, err)

	// The first share claims a bogus session, so the set is rejected.
	bogus := good[0]
	bogus.SessionID = "bogus"
	require.NoError(t, submit(t, recovery, admins[0], bogus))
	assert.Equal(t, "bogus", recovery.Status().SessionID)

	err = submit(t, recovery, admins[1], good[1])
	assert.Equal(t, verify.CodeShareContextMismatch, interfaces.ErrorCode(err))
	assert.Empty(t, recovery.Status().SessionID)

	require.NoError(t, submit(t, recovery, admins[0], good[0]))
	require.NoError(t, submit(t, recovery, admins[1], good[1]))
	assert.True(t, recovery.IsUnlocked())
}
