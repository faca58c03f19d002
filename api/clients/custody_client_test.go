package clients

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/shamir-custody/api/custody"
	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/ruteri/shamir-custody/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAdmins struct {
	ids     []string
	privPEM map[string][]byte
	pubPEM  map[string][]byte
}

func newTestAdmins(t *testing.T, ids ...string) testAdmins {
	t.Helper()
	a := testAdmins{ids: ids, privPEM: map[string][]byte{}, pubPEM: map[string][]byte{}}
	for _, id := range ids {
		priv, pub, err := cryptoutils.GenerateAdminKeyPair()
		require.NoError(t, err)
		a.privPEM[id] = []byte(priv)
		a.pubPEM[id] = []byte(pub)
	}
	return a
}

func startServer(t *testing.T, admins testAdmins, store *storage.ShareStore) (*custody.AdminHandler, string) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := custody.NewAdminHandler(log, custody.AdminHandlerConfig{
		Threshold:    2,
		AdminIDs:     admins.ids,
		AdminPubKeys: admins.pubPEM,
		MACKey:       []byte("0123456789abcdef0123456789abcdef"),
		Store:        store,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv.URL + "/admin"
}

func (a testAdmins) client(t *testing.T, baseURL, id string) *AdminShareClient {
	t.Helper()
	c, err := NewAdminShareClient(baseURL, id, a.privPEM[id])
	require.NoError(t, err)
	return c
}

func TestAdminShareClient_GenerateAndRecover(t *testing.T) {
	ctx := context.Background()
	admins := newTestAdmins(t, "alice", "bob", "carol")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := storage.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)
	store := storage.NewShareStore(backend, log)

	// Generation: everyone fetches their share, which completes bootstrap.
	genHandler, genURL := startServer(t, admins, store)

	gen, err := admins.client(t, genURL, "alice").InitGenerate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.Threshold)
	assert.Equal(t, 3, gen.TotalShares)
	assert.NotEmpty(t, gen.SessionID)

	shares := map[string]*RetrievedShare{}
	for i, id := range admins.ids {
		share, err := admins.client(t, genURL, id).GetShare(ctx)
		require.NoError(t, err)
		assert.Equal(t, i+1, share.Index)
		assert.Equal(t, gen.SessionID, share.SessionID)
		shares[id] = share
	}

	genKMS, err := genHandler.WaitForBootstrap(ctx)
	require.NoError(t, err)
	masterKey, err := genKMS.MasterKey()
	require.NoError(t, err)

	// Recovery on a fresh server backed by the same store.
	recHandler, recURL := startServer(t, admins, store)

	rec, err := admins.client(t, recURL, "bob").InitRecover(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen.SessionID, rec.SessionID)

	// Carol lost her copy and fetches the stored one.
	stored, err := admins.client(t, recURL, "carol").GetShare(ctx)
	require.NoError(t, err)
	assert.Equal(t, shares["carol"].Encoded, stored.Encoded)

	resp, err := admins.client(t, recURL, "bob").SubmitShare(ctx, shares["bob"].SessionID, shares["bob"].Encoded)
	require.NoError(t, err)
	assert.False(t, resp.Unlocked)

	status, err := admins.client(t, recURL, "alice").GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recovering", status.State)
	assert.Equal(t, 1, status.ReceivedShares)

	resp, err = admins.client(t, recURL, "carol").SubmitShare(ctx, stored.SessionID, stored.Encoded)
	require.NoError(t, err)
	assert.True(t, resp.Unlocked)

	recKMS, err := recHandler.WaitForBootstrap(ctx)
	require.NoError(t, err)
	recovered, err := recKMS.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, masterKey, recovered)
}

func TestAdminShareClient_Errors(t *testing.T) {
	ctx := context.Background()
	admins := newTestAdmins(t, "alice", "bob")
	_, baseURL := startServer(t, admins, nil)

	// Unknown admin signing with a valid key.
	outsider := newTestAdmins(t, "mallory")
	_, err := outsider.client(t, baseURL, "mallory").InitGenerate(ctx)
	assert.ErrorContains(t, err, "status 401")

	// Submitting before recovery was started.
	_, err = admins.client(t, baseURL, "alice").SubmitShare(ctx, "session", []byte("SHAM"))
	assert.ErrorContains(t, err, "status 400")

	_, err = admins.client(t, baseURL, "alice").InitRecover(ctx)
	require.NoError(t, err)

	// Garbage share is rejected but leaves the server recovering.
	_, err = admins.client(t, baseURL, "alice").SubmitShare(ctx, "session", []byte("not a share"))
	assert.ErrorContains(t, err, "status 400")

	status, err := admins.client(t, baseURL, "bob").GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recovering", status.State)

	// No store, so nothing to fetch during recovery.
	_, err = admins.client(t, baseURL, "bob").GetShare(ctx)
	assert.ErrorContains(t, err, "status 404")
}

func TestNewAdminShareClient_InvalidKey(t *testing.T) {
	_, err := NewAdminShareClient("http://localhost", "alice", []byte("not a key"))
	assert.Error(t, err)
}
