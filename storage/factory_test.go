package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageBackendFactory_File(t *testing.T) {
	dir := t.TempDir()
	sf := NewStorageBackendFactory(discardLogger())

	b, err := sf.StorageBackendForURI("file://" + dir)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)
	assert.Equal(t, "file://"+dir, b.LocationURI())
}

func TestStorageBackendFactory_Errors(t *testing.T) {
	sf := NewStorageBackendFactory(discardLogger())

	tests := []string{
		"ftp://example.com/x",
		"onchain://0x1234",
		"s3:///prefix",
		"vault:///secret/x",
		"ipfs://127.0.0.1:5001/x?timeout=soon",
		"::not a uri",
	}
	for _, uri := range tests {
		_, err := sf.StorageBackendForURI(uri)
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, uri)
	}
}

func TestStorageBackendFactory_Builds(t *testing.T) {
	sf := NewStorageBackendFactory(discardLogger())

	s3b, err := sf.StorageBackendForURI("s3://AKID:SECRET@bucket/prefix?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3-bucket", s3b.Name())
	assert.NotContains(t, s3b.LocationURI(), "SECRET")

	ipfsb, err := sf.StorageBackendForURI("ipfs://127.0.0.1:5001/custody?timeout=5s")
	require.NoError(t, err)
	assert.Equal(t, "ipfs-127.0.0.1-5001", ipfsb.Name())

	vb, err := sf.StorageBackendForURI("vault://127.0.0.1:8200/kv/shamir?tls=false&token=t")
	require.NoError(t, err)
	assert.Equal(t, "vault-kv-shamir", vb.Name())
}

func TestStorageBackendFactory_CreateMultiBackend(t *testing.T) {
	sf := NewStorageBackendFactory(discardLogger())
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")

	single, err := sf.CreateMultiBackend([]string{"file://" + a, "bogus://x"})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, single)

	multi, err := sf.CreateMultiBackend([]string{"file://" + a, "file://" + b})
	require.NoError(t, err)
	assert.IsType(t, &MultiStorageBackend{}, multi)

	ctx := context.Background()
	require.NoError(t, multi.Store(ctx, "k", []byte("v")))
	assert.FileExists(t, filepath.Join(a, "k"))
	assert.FileExists(t, filepath.Join(b, "k"))

	_, err = sf.CreateMultiBackend([]string{"bogus://x"})
	assert.Error(t, err)
}

func TestRedactURI(t *testing.T) {
	assert.Equal(t, "s3://***@bucket/p", redactURI("s3://AK:SK@bucket/p"))
	assert.Equal(t, "vault://host/kv?***", redactURI("vault://host/kv?token=abc"))
	assert.Equal(t, "file:///tmp/x", redactURI("file:///tmp/x"))
}

// fakeVault serves the subset of the Vault HTTP API the backend uses.
type fakeVault struct {
	mu   sync.Mutex
	data map[string]map[string]interface{}
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/v1/sys/health" {
		json.NewEncoder(w).Encode(map[string]interface{}{"initialized": true, "sealed": false})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch r.Method {
	case http.MethodGet:
		fields, ok := f.data[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"data": fields}})
	case http.MethodPut, http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.data[path] = req.Data
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"version": 1}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestVaultBackend(t *testing.T) {
	fake := &fakeVault{data: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	b, err := NewVaultBackend(VaultConfig{
		Address:   srv.URL,
		MountPath: "secret",
		DataPath:  "shamir",
		Token:     "test-token",
	}, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, b.Available(ctx))

	_, err = b.Fetch(ctx, "set.1")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	binary := []byte{0x00, 0xff, 'S', 'H', 'A', 'M', 0x80}
	require.NoError(t, b.Store(ctx, "set.1", binary))
	assert.Contains(t, fake.data, "secret/data/shamir/set.1")

	got, err := b.Fetch(ctx, "set.1")
	require.NoError(t, err)
	assert.Equal(t, binary, got)
}
