package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShareStore(t *testing.T) (*ShareStore, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)
	return NewShareStore(b, discardLogger()), dir
}

func TestShareStore_RoundTrip(t *testing.T) {
	store, dir := newShareStore(t)
	ctx := context.Background()

	encoded := map[int][]byte{1: []byte("share-one"), 2: []byte("share-two"), 3: []byte("share-three")}
	m, err := store.SaveSet(ctx, "master", Manifest{
		SessionID: "session-1",
		Threshold: 2,
		Total:     3,
		Algorithm: "shamir-p256-v1",
	}, encoded)
	require.NoError(t, err)
	assert.Len(t, m.Shares, 3)
	assert.False(t, m.CreatedAt.IsZero())

	for _, name := range []string{"master.1", "master.2", "master.3", "master.manifest"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	got, shares, err := store.LoadSet(ctx, "master", []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, 2, got.Threshold)
	assert.Equal(t, []int{1, 2, 3}, got.Indices())
	assert.Equal(t, map[int][]byte{1: encoded[1], 3: encoded[3]}, shares)

	_, all, err := store.LoadSet(ctx, "master", nil)
	require.NoError(t, err)
	assert.Equal(t, encoded, all)
}

func TestShareStore_Errors(t *testing.T) {
	store, dir := newShareStore(t)
	ctx := context.Background()

	_, _, err := store.LoadSet(ctx, "absent", nil)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = store.SaveSet(ctx, "../bad", Manifest{}, map[int][]byte{1: {1}})
	assert.ErrorIs(t, err, interfaces.ErrInvalidKey)

	_, err = store.SaveSet(ctx, "empty", Manifest{}, nil)
	assert.Error(t, err)

	_, err = store.SaveSet(ctx, "set", Manifest{SessionID: "s"}, map[int][]byte{1: []byte("a"), 2: []byte("b")})
	require.NoError(t, err)

	_, _, err = store.LoadSet(ctx, "set", []int{5})
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "set.2"), []byte("tampered"), 0600))
	_, _, err = store.LoadSet(ctx, "set", []int{2})
	assert.ErrorIs(t, err, interfaces.ErrIntegrity)
	assert.ErrorIs(t, err, interfaces.ErrDigestMismatch)
}
