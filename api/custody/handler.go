package custody

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/ruteri/shamir-custody/kms"
	"github.com/ruteri/shamir-custody/operations"
	"github.com/ruteri/shamir-custody/storage"
	"go.uber.org/atomic"
)

// BootstrapState represents the current state of the KMS bootstrap process.
type BootstrapState int

const (
	// StateInitial is the initial state before any bootstrap action is taken.
	StateInitial BootstrapState = iota

	// StateGeneratingShares indicates the master key has been generated and shares are being distributed.
	StateGeneratingShares

	// StateRecovering indicates the recovery process is underway collecting shares.
	StateRecovering

	// StateComplete indicates the KMS is fully operational.
	StateComplete
)

func (s BootstrapState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateGeneratingShares:
		return "generating_shares"
	case StateRecovering:
		return "recovering"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MasterKeySize is the size of generated master keys.
const MasterKeySize = 32

// Request headers used to authenticate administrators. The signature is over
// sha256(path || body).
const (
	HeaderAdminID        = "X-Admin-ID"
	HeaderAdminSignature = "X-Admin-Signature"
)

// SecureShare is a share sealed for a single administrator.
type SecureShare struct {
	AdminID        string
	ShareIndex     int
	EncryptedShare []byte
	Retrieved      bool
}

// AdminHandlerConfig configures the bootstrap API.
type AdminHandlerConfig struct {
	Threshold int

	// AdminIDs fixes the share assignment: AdminIDs[i] receives share i+1.
	AdminIDs     []string
	AdminPubKeys map[string][]byte

	// MACKey, when set, keys the HMAC on every share.
	MACKey []byte

	// Store, when set, keeps a copy of the sealed shares so administrators
	// can fetch theirs again during recovery. The manifest also tells a
	// recovering server which session to expect.
	Store   *storage.ShareStore
	SetName string
}

// AdminHandler serves the KMS bootstrap API. It implements
// httpserver.RouteRegistrar.
type AdminHandler struct {
	mu           sync.RWMutex
	log          *slog.Logger
	cfg          AdminHandlerConfig
	state        BootstrapState
	adminShares  map[string]*SecureShare
	shamirKMS    *kms.ShamirKMS
	completeChan chan struct{}
	retrieved    atomic.Int32
}

func NewAdminHandler(log *slog.Logger, cfg AdminHandlerConfig) (*AdminHandler, error) {
	if cfg.Threshold < 2 {
		return nil, errors.New("threshold smaller than 2")
	}
	if len(cfg.AdminIDs) < cfg.Threshold {
		return nil, errors.New("threshold larger than total shares")
	}
	for _, id := range cfg.AdminIDs {
		if _, ok := cfg.AdminPubKeys[id]; !ok {
			return nil, fmt.Errorf("no public key for admin %s", id)
		}
	}
	if cfg.Store != nil && cfg.SetName == "" {
		cfg.SetName = "custody"
	}

	return &AdminHandler{
		log:          log,
		cfg:          cfg,
		state:        StateInitial,
		adminShares:  make(map[string]*SecureShare),
		completeChan: make(chan struct{}),
	}, nil
}

// WaitForBootstrap blocks until the KMS is operational or ctx is done.
func (h *AdminHandler) WaitForBootstrap(ctx context.Context) (*kms.ShamirKMS, error) {
	select {
	case <-h.completeChan:
		return h.GetKMS(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetKMS returns the KMS once bootstrap is complete, nil before that.
func (h *AdminHandler) GetKMS() *kms.ShamirKMS {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != StateComplete {
		return nil
	}
	return h.shamirKMS
}

// State returns the current bootstrap state.
func (h *AdminHandler) State() BootstrapState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// RegisterRoutes mounts:
//   - GET /admin/status: bootstrap status
//   - POST /admin/init/generate: generate the master key and seal shares
//   - POST /admin/init/recover: start collecting shares
//   - GET /admin/share: fetch the caller's sealed share
//   - POST /admin/share: submit a share during recovery
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/admin/status", h.handleStatus)
	r.Post("/admin/init/generate", h.handleInitGenerate)
	r.Post("/admin/init/recover", h.handleInitRecover)
	r.Post("/admin/share", h.handleSubmitShare)
	r.Get("/admin/share", h.handleGetShare)
}

type StatusResponse struct {
	State           string `json:"state"`
	RetrievedShares int    `json:"retrieved_shares,omitempty"`
	Threshold       int    `json:"threshold,omitempty"`
	TotalShares     int    `json:"total_shares,omitempty"`
	ReceivedShares  int    `json:"received_shares,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
}

func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := StatusResponse{State: h.state.String(), RetrievedShares: int(h.retrieved.Load())}
	if h.shamirKMS != nil {
		st := h.shamirKMS.Status()
		resp.Threshold = st.Threshold
		resp.TotalShares = st.TotalShares
		resp.ReceivedShares = st.ReceivedShares
		resp.SessionID = st.SessionID
	}
	h.mu.RUnlock()

	writeJSON(w, resp)
}

type ShareAssignment struct {
	AdminID    string `json:"admin_id"`
	ShareIndex int    `json:"share_index"`
}

type InitGenerateResponse struct {
	Message          string            `json:"message"`
	SessionID        string            `json:"session_id"`
	Threshold        int               `json:"threshold"`
	TotalShares      int               `json:"total_shares"`
	ShareAssignments []ShareAssignment `json:"share_assignments"`
}

func (h *AdminHandler) handleInitGenerate(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateInitial {
		http.Error(w, "Bootstrap already in progress or complete", http.StatusBadRequest)
		return
	}

	masterKey := make([]byte, MasterKeySize)
	if _, err := rand.Read(masterKey); err != nil {
		h.log.Error("Failed to generate master key", "err", err, "adminID", adminID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pubKeys := make([][]byte, len(h.cfg.AdminIDs))
	for i, id := range h.cfg.AdminIDs {
		pubKeys[i] = h.cfg.AdminPubKeys[id]
	}

	shamirKMS, shares, err := kms.NewShamirKMS(masterKey, kms.ShamirConfig{
		Threshold:    h.cfg.Threshold,
		AdminPubKeys: pubKeys,
		MACKey:       h.cfg.MACKey,
	})
	wipe(masterKey)
	if err != nil {
		h.log.Error("Failed to create ShamirKMS", "err", err, "adminID", adminID)
		http.Error(w, "Failed to create KMS: "+err.Error(), http.StatusInternalServerError)
		return
	}

	adminShares := make(map[string]*SecureShare, len(shares))
	sealed := make(map[int][]byte, len(shares))
	assignments := make([]ShareAssignment, 0, len(shares))
	for _, share := range shares {
		targetAdminID := h.cfg.AdminIDs[share.Index-1]

		encryptedShare, err := cryptoutils.EncryptWithPublicKey(h.cfg.AdminPubKeys[targetAdminID], share.Encoded)
		if err != nil {
			h.log.Error("Failed to encrypt share", "err", err, "adminID", targetAdminID)
			http.Error(w, "Failed to encrypt shares", http.StatusInternalServerError)
			return
		}

		adminShares[targetAdminID] = &SecureShare{
			AdminID:        targetAdminID,
			ShareIndex:     share.Index,
			EncryptedShare: encryptedShare,
		}
		sealed[share.Index] = encryptedShare
		assignments = append(assignments, ShareAssignment{AdminID: targetAdminID, ShareIndex: share.Index})
	}

	opCtx := shamirKMS.Context()
	if h.cfg.Store != nil {
		_, err := h.cfg.Store.SaveSet(r.Context(), h.cfg.SetName, storage.Manifest{
			SessionID: opCtx.SessionID,
			Threshold: opCtx.Threshold,
			Total:     opCtx.TotalShares,
			Algorithm: opCtx.AlgorithmVersion,
		}, sealed)
		if err != nil {
			h.log.Error("Failed to store sealed shares", "err", err, "adminID", adminID)
			http.Error(w, "Failed to store shares", http.StatusInternalServerError)
			return
		}
	}

	h.state = StateGeneratingShares
	h.shamirKMS = shamirKMS
	h.adminShares = adminShares

	writeJSON(w, InitGenerateResponse{
		Message:          "KMS initialized and shares generated successfully",
		SessionID:        opCtx.SessionID,
		Threshold:        opCtx.Threshold,
		TotalShares:      opCtx.TotalShares,
		ShareAssignments: assignments,
	})

	h.log.Info("Master key generated and shares prepared for distribution", "adminID", adminID,
		"sessionID", opCtx.SessionID, "threshold", opCtx.Threshold, "totalShares", opCtx.TotalShares)
}

type AdminGetShareResponse struct {
	ShareIndex     int    `json:"share_index"`
	SessionID      string `json:"session_id"`
	EncryptedShare string `json:"encrypted_share"` // base64 encoded
}

// handleGetShare returns the caller's sealed share. During distribution it
// serves the in-memory copy and completes bootstrap once every admin has
// fetched theirs. During recovery it serves the stored copy, if any.
func (h *AdminHandler) handleGetShare(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateGeneratingShares:
	case StateRecovering:
		h.serveStoredShare(w, r, adminID)
		return
	default:
		http.Error(w, "No shares available for retrieval", http.StatusBadRequest)
		return
	}

	secureShare, exists := h.adminShares[adminID]
	if !exists {
		http.Error(w, "No share assigned to this admin", http.StatusNotFound)
		return
	}
	if !secureShare.Retrieved {
		secureShare.Retrieved = true
		h.retrieved.Inc()
	}
	allRetrieved := int(h.retrieved.Load()) == len(h.adminShares)

	writeJSON(w, AdminGetShareResponse{
		ShareIndex:     secureShare.ShareIndex,
		SessionID:      h.shamirKMS.Context().SessionID,
		EncryptedShare: base64.StdEncoding.EncodeToString(secureShare.EncryptedShare),
	})
	h.log.Info("Admin retrieved their share", "adminID", adminID, "shareIndex", secureShare.ShareIndex)

	if allRetrieved {
		// Sealed copies are no longer needed in memory.
		h.adminShares = make(map[string]*SecureShare)
		h.complete()
		h.log.Info("All shares have been retrieved, KMS bootstrap complete")
	}
}

// Callers hold h.mu.
func (h *AdminHandler) serveStoredShare(w http.ResponseWriter, r *http.Request, adminID string) {
	if h.cfg.Store == nil {
		http.Error(w, "No share store configured", http.StatusNotFound)
		return
	}

	idx := h.adminIndex(adminID)
	m, shares, err := h.cfg.Store.LoadSet(r.Context(), h.cfg.SetName, []int{idx})
	if err != nil {
		h.log.Error("Failed to load stored share", "err", err, "adminID", adminID, "shareIndex", idx)
		if errors.Is(err, interfaces.ErrContentNotFound) {
			http.Error(w, "No stored share for this admin", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load stored share", http.StatusInternalServerError)
		return
	}

	writeJSON(w, AdminGetShareResponse{
		ShareIndex:     idx,
		SessionID:      m.SessionID,
		EncryptedShare: base64.StdEncoding.EncodeToString(shares[idx]),
	})
	h.log.Info("Admin retrieved their stored share", "adminID", adminID, "shareIndex", idx)
}

type InitRecoverResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Threshold int    `json:"threshold"`
}

func (h *AdminHandler) handleInitRecover(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateInitial {
		http.Error(w, "Bootstrap already in progress or complete", http.StatusBadRequest)
		return
	}

	config := kms.ShamirConfig{
		Threshold: h.cfg.Threshold,
		MACKey:    h.cfg.MACKey,
	}
	for _, id := range h.cfg.AdminIDs {
		config.AdminPubKeys = append(config.AdminPubKeys, h.cfg.AdminPubKeys[id])
	}

	if h.cfg.Store != nil {
		m, err := h.cfg.Store.LoadManifest(r.Context(), h.cfg.SetName)
		switch {
		case err == nil:
			if m.Threshold != config.Threshold || m.Total != len(config.AdminPubKeys) {
				http.Error(w, fmt.Sprintf("stored share set is %d-of-%d, server configured for %d-of-%d",
					m.Threshold, m.Total, config.Threshold, len(config.AdminPubKeys)), http.StatusConflict)
				return
			}
			config.SessionID = m.SessionID
		case errors.Is(err, interfaces.ErrContentNotFound):
			h.log.Warn("No stored manifest, session will be taken from the first share")
		default:
			h.log.Error("Failed to load manifest", "err", err)
			http.Error(w, "Failed to load manifest", http.StatusInternalServerError)
			return
		}
	}

	shamirKMS, err := kms.NewShamirKMSRecovery(config)
	if err != nil {
		http.Error(w, fmt.Errorf("could not initialize kms: %w", err).Error(), http.StatusInternalServerError)
		return
	}

	h.shamirKMS = shamirKMS
	h.state = StateRecovering

	writeJSON(w, InitRecoverResponse{
		Message:   "Recovery mode initiated",
		SessionID: config.SessionID,
		Threshold: config.Threshold,
	})

	h.log.Info("KMS recovery process initiated", "adminID", adminID, "threshold", config.Threshold)
}

// ShareSubmission is the body of POST /admin/share. Signature is over
// sha256 of the decoded share bytes.
type ShareSubmission struct {
	SessionID string `json:"session_id"`
	Share     string `json:"share"`     // base64 encoded
	Signature string `json:"signature"` // base64 encoded
}

type SubmitShareResponse struct {
	Message  string `json:"message"`
	Unlocked bool   `json:"unlocked"`
}

func (h *AdminHandler) handleSubmitShare(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRecovering {
		http.Error(w, "KMS not in recovery mode", http.StatusBadRequest)
		return
	}

	var submission ShareSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	share, err := base64.StdEncoding.DecodeString(submission.Share)
	if err != nil {
		http.Error(w, "Invalid share encoding", http.StatusBadRequest)
		return
	}

	signature, err := base64.StdEncoding.DecodeString(submission.Signature)
	if err != nil {
		http.Error(w, "Invalid signature encoding", http.StatusBadRequest)
		return
	}

	err = h.shamirKMS.SubmitShare(kms.ShareSubmission{SessionID: submission.SessionID, Encoded: share}, signature, h.cfg.AdminPubKeys[adminID])
	if err != nil {
		h.log.Error("Share submission failed", "err", err, "adminID", adminID, "code", interfaces.ErrorCode(err))
		http.Error(w, "Share submission failed: "+err.Error(), submissionStatus(err))
		return
	}

	if h.shamirKMS.IsUnlocked() {
		h.complete()
		writeJSON(w, SubmitShareResponse{Message: "KMS unlocked successfully - recovery complete", Unlocked: true})
		h.log.Info("KMS successfully unlocked - recovery complete", "adminID", adminID)
		return
	}

	writeJSON(w, SubmitShareResponse{Message: "Share accepted, waiting for more shares"})
	h.log.Info("Share accepted", "adminID", adminID)
}

func submissionStatus(err error) int {
	var res operations.Result
	switch {
	case errors.Is(err, cryptoutils.ErrInvalidSignature), errors.Is(err, kms.ErrUnknownAdmin):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrVerification), errors.Is(err, kms.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.As(err, &res) && res.ErrorCode == operations.CodeReconstructionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// Callers hold h.mu.
func (h *AdminHandler) complete() {
	h.state = StateComplete
	close(h.completeChan)
}

func (h *AdminHandler) adminIndex(adminID string) int {
	for i, id := range h.cfg.AdminIDs {
		if id == adminID {
			return i + 1
		}
	}
	return 0
}

// verifyAdmin authenticates the request against the admin whitelist and
// restores the body for the handler.
func (h *AdminHandler) verifyAdmin(r *http.Request) (string, bool) {
	adminID := r.Header.Get(HeaderAdminID)
	adminSignatureStr := r.Header.Get(HeaderAdminSignature)
	if adminID == "" || adminSignatureStr == "" {
		return "", false
	}

	pubKeyPEM, exists := h.cfg.AdminPubKeys[adminID]
	if !exists || h.adminIndex(adminID) == 0 {
		h.log.Warn("Authentication failed: unknown admin ID", "adminID", adminID)
		return adminID, false
	}

	adminSignature, err := base64.StdEncoding.DecodeString(adminSignatureStr)
	if err != nil {
		h.log.Warn("Authentication failed: invalid signature encoding", "adminID", adminID, "err", err)
		return adminID, false
	}

	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, err = io.ReadAll(r.Body)
		if err != nil {
			h.log.Error("Failed to read request body", "err", err)
			return adminID, false
		}
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	message := append([]byte(r.URL.Path), bodyBytes...)
	if err := cryptoutils.VerifyMessage(pubKeyPEM, message, adminSignature); err != nil {
		h.log.Warn("Authentication failed: invalid signature", "adminID", adminID, "err", err)
		return adminID, false
	}

	h.log.Debug("Admin authentication successful", "adminID", adminID)
	return adminID, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
