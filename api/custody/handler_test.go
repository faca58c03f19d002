package custody

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/ruteri/shamir-custody/kms"
	"github.com/ruteri/shamir-custody/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*AdminHandler, map[string]string) {
	t.Helper()
	privs := map[string]string{}
	pubs := map[string][]byte{}
	for _, id := range []string{"alice", "bob"} {
		priv, pub, err := cryptoutils.GenerateAdminKeyPair()
		require.NoError(t, err)
		privs[id] = priv
		pubs[id] = []byte(pub)
	}

	h, err := NewAdminHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), AdminHandlerConfig{
		Threshold:    2,
		AdminIDs:     []string{"alice", "bob"},
		AdminPubKeys: pubs,
	})
	require.NoError(t, err)
	return h, privs
}

func signedRequest(t *testing.T, method, path, body, adminID, privPEM string) *http.Request {
	t.Helper()
	priv, err := cryptoutils.ParsePrivateKey([]byte(privPEM))
	require.NoError(t, err)
	sig, err := cryptoutils.SignMessage([]byte(path+body), priv)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(HeaderAdminID, adminID)
	req.Header.Set(HeaderAdminSignature, base64.StdEncoding.EncodeToString(sig))
	return req
}

func TestNewAdminHandler_Validation(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pubs := map[string][]byte{"a": nil, "b": nil}

	_, err := NewAdminHandler(log, AdminHandlerConfig{Threshold: 1, AdminIDs: []string{"a", "b"}, AdminPubKeys: pubs})
	assert.Error(t, err)

	_, err = NewAdminHandler(log, AdminHandlerConfig{Threshold: 3, AdminIDs: []string{"a", "b"}, AdminPubKeys: pubs})
	assert.Error(t, err)

	_, err = NewAdminHandler(log, AdminHandlerConfig{Threshold: 2, AdminIDs: []string{"a", "c"}, AdminPubKeys: pubs})
	assert.Error(t, err)
}

func TestAdminHandler_VerifyAdmin(t *testing.T) {
	h, privs := newTestHandler(t)

	tests := []struct {
		name string
		req  func() *http.Request
		ok   bool
	}{
		{"valid", func() *http.Request {
			return signedRequest(t, http.MethodPost, "/admin/init/recover", "{}", "alice", privs["alice"])
		}, true},
		{"missing headers", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/admin/init/recover", nil)
		}, false},
		{"unknown admin", func() *http.Request {
			return signedRequest(t, http.MethodPost, "/admin/init/recover", "{}", "mallory", privs["alice"])
		}, false},
		{"wrong key", func() *http.Request {
			return signedRequest(t, http.MethodPost, "/admin/init/recover", "{}", "alice", privs["bob"])
		}, false},
		{"body tampered", func() *http.Request {
			req := signedRequest(t, http.MethodPost, "/admin/init/recover", "{}", "alice", privs["alice"])
			req.Body = io.NopCloser(strings.NewReader(`{"x":1}`))
			return req
		}, false},
		{"bad signature encoding", func() *http.Request {
			req := signedRequest(t, http.MethodPost, "/admin/init/recover", "{}", "alice", privs["alice"])
			req.Header.Set(HeaderAdminSignature, "%%%")
			return req
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req()
			_, ok := h.verifyAdmin(req)
			assert.Equal(t, tt.ok, ok)
			if ok {
				body, err := io.ReadAll(req.Body)
				require.NoError(t, err)
				assert.Equal(t, "{}", string(body), "body must be restored")
			}
		})
	}
}

func TestAdminHandler_StateTransitions(t *testing.T) {
	h, privs := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.handleStatus(rr, httptest.NewRequest(http.MethodGet, "/admin/status", nil))
	assert.JSONEq(t, `{"state":"initial"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.handleGetShare(rr, signedRequest(t, http.MethodGet, "/admin/share", "", "alice", privs["alice"]))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.handleInitGenerate(rr, signedRequest(t, http.MethodPost, "/admin/init/generate", "{}", "alice", privs["alice"]))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, StateGeneratingShares, h.State())
	assert.Nil(t, h.GetKMS(), "KMS is not handed out before every share is retrieved")

	rr = httptest.NewRecorder()
	h.handleInitRecover(rr, signedRequest(t, http.MethodPost, "/admin/init/recover", "{}", "bob", privs["bob"]))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for _, id := range []string{"alice", "bob"} {
		rr = httptest.NewRecorder()
		h.handleGetShare(rr, signedRequest(t, http.MethodGet, "/admin/share", "", id, privs[id]))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Equal(t, StateComplete, h.State())
	assert.NotNil(t, h.GetKMS())
}

func TestSubmissionStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{cryptoutils.ErrInvalidSignature, http.StatusForbidden},
		{kms.ErrUnknownAdmin, http.StatusForbidden},
		{kms.ErrAlreadySubmitted, http.StatusConflict},
		{&interfaces.VerificationError{Code: "DUPLICATE_SHARE", Err: interfaces.ErrDuplicateShare}, http.StatusConflict},
		{operations.Result{ErrorCode: operations.CodeReconstructionFailed}, http.StatusUnprocessableEntity},
		{&interfaces.FormatError{Err: interfaces.ErrInvalidMagic}, http.StatusBadRequest},
		{errors.New("other"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, submissionStatus(tt.err), tt.err.Error())
	}
}
