package kms

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/ruteri/shamir-custody/interfaces"
	"github.com/ruteri/shamir-custody/metrics"
	"github.com/ruteri/shamir-custody/operations"
	"github.com/ruteri/shamir-custody/shamir"
	"github.com/ruteri/shamir-custody/shareformat"
	"github.com/ruteri/shamir-custody/verify"
	"golang.org/x/crypto/hkdf"
)

// MinMasterKeySize is the shortest master key NewShamirKMS accepts.
const MinMasterKeySize = 32

var (
	ErrLocked           = errors.New("KMS is locked - need more shares to unlock")
	ErrAlreadyUnlocked  = errors.New("KMS is already unlocked")
	ErrUnknownAdmin     = errors.New("unregistered admin public key")
	ErrAlreadySubmitted = errors.New("admin already submitted a share")
)

// ShamirKMS keeps a master key that only exists in memory. The key is split
// into SHAM-encoded shares for the administrators at generation time and
// rebuilt from a threshold of signed share submissions at recovery time.
type ShamirKMS struct {
	mu         sync.RWMutex
	masterKey  []byte // only set while unlocked
	isUnlocked bool
	opCtx      operations.OperationContext
	macKey     []byte

	// pinned is false when the session was adopted from a submission and
	// must be forgotten if that set is rejected.
	pinned bool

	// Submissions waiting for the threshold, keyed by share index.
	received map[int]receivedShare

	// Registered admin public keys keyed by fingerprint.
	adminPubKeys map[string][]byte
}

type receivedShare struct {
	fingerprint string
	sessionID   string
	header      shareformat.Header
	payload     []byte
}

// ShamirConfig contains configuration parameters for creating a ShamirKMS instance.
type ShamirConfig struct {
	// Threshold is the minimum number of shares required to reconstruct the master key.
	Threshold int
	// AdminPubKeys lists the administrators in PEM format. Share i goes to AdminPubKeys[i-1].
	AdminPubKeys [][]byte
	// MACKey, when set, keys the HMAC of every encoded share.
	MACKey []byte
	// SessionID pins the session. Generation picks a fresh one when empty;
	// recovery adopts the session of the first accepted share.
	SessionID string
	// DryRun validates the configuration without splitting.
	DryRun bool
}

// IssuedShare is one administrator's share of a freshly generated master key.
type IssuedShare struct {
	Index     int
	SessionID string
	Encoded   []byte
}

// ShareSubmission is a share presented for recovery.
type ShareSubmission struct {
	SessionID string
	Encoded   []byte
}

// Status is a snapshot of the KMS state.
type Status struct {
	Unlocked       bool   `json:"unlocked"`
	Threshold      int    `json:"threshold"`
	TotalShares    int    `json:"total_shares"`
	ReceivedShares int    `json:"received_shares"`
	SessionID      string `json:"session_id,omitempty"`
}

// NewShamirKMS splits masterKey into one share per administrator and returns
// an unlocked KMS holding a private copy of the key.
func NewShamirKMS(masterKey []byte, config ShamirConfig) (*ShamirKMS, []IssuedShare, error) {
	if len(masterKey) < MinMasterKeySize {
		return nil, nil, &interfaces.ValidationError{
			Code: shamir.CodeInvalidSecret,
			Err:  fmt.Errorf("master key must be at least %d bytes", MinMasterKeySize),
		}
	}

	k, err := newShamirKMS(config)
	if err != nil {
		return nil, nil, err
	}
	if k.opCtx.SessionID == "" {
		k.opCtx.SessionID = operations.NewSessionID()
	}

	start := time.Now()
	p, res := operations.Initialize(k.opCtx)
	if !res.Success {
		return nil, nil, res.AsError()
	}

	_, res, payloads := p.Split(masterKey, shamir.SplitBytes)
	metrics.RecordOperation(metrics.OpSplit, start, res.AsError())
	if !res.Success {
		return nil, nil, res.AsError()
	}

	n := k.opCtx.TotalShares
	issued := make([]IssuedShare, 0, n)
	for i := 1; i <= n; i++ {
		encoded, err := shareformat.Encode(shareformat.NewHeader(k.opCtx.Threshold, n, i), payloads[i], k.macKey)
		wipeBytes(payloads[i])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode share %d: %w", i, err)
		}
		issued = append(issued, IssuedShare{Index: i, SessionID: k.opCtx.SessionID, Encoded: encoded})
	}

	k.masterKey = append([]byte(nil), masterKey...)
	k.isUnlocked = true
	k.pinned = true

	return k, issued, nil
}

// NewShamirKMSRecovery creates a locked KMS that unlocks once Threshold
// valid shares have been submitted.
func NewShamirKMSRecovery(config ShamirConfig) (*ShamirKMS, error) {
	k, err := newShamirKMS(config)
	if err != nil {
		return nil, err
	}
	// The context is checked for its shape only; the session may still be unknown.
	probe := k.opCtx
	if probe.SessionID == "" {
		probe.SessionID = "pending"
	}
	if code := probe.Validate(); code != "" {
		return nil, &interfaces.ValidationError{Code: code, Err: errors.New("invalid recovery configuration")}
	}
	return k, nil
}

func newShamirKMS(config ShamirConfig) (*ShamirKMS, error) {
	k := &ShamirKMS{
		macKey:       append([]byte(nil), config.MACKey...),
		received:     make(map[int]receivedShare),
		adminPubKeys: make(map[string][]byte, len(config.AdminPubKeys)),
		pinned:       config.SessionID != "",
		opCtx: operations.OperationContext{
			SessionID:        config.SessionID,
			Threshold:        config.Threshold,
			TotalShares:      len(config.AdminPubKeys),
			AlgorithmVersion: operations.AlgorithmVersion,
			DryRun:           config.DryRun,
		},
	}

	for _, publicKeyPEM := range config.AdminPubKeys {
		if _, err := cryptoutils.ParsePublicKey(publicKeyPEM); err != nil {
			return nil, fmt.Errorf("invalid admin pubkey: %w", err)
		}
		fingerprint := cryptoutils.ComputeFingerprint(publicKeyPEM)
		if _, dup := k.adminPubKeys[fingerprint]; dup {
			return nil, fmt.Errorf("admin pubkey %s registered twice", fingerprint[:16])
		}
		k.adminPubKeys[fingerprint] = publicKeyPEM
	}

	return k, nil
}

// SubmitShare accepts one signed share. The signature must be over
// sha256(sub.Encoded) by a registered administrator. Once Threshold shares
// have been accepted the master key is reconstructed and the KMS unlocks.
//
// Decode and signature failures reject only this share. A failure while
// verifying or reconstructing the full set discards every pending share.
func (k *ShamirKMS) SubmitShare(sub ShareSubmission, signature, adminPubKeyPEM []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.isUnlocked {
		return ErrAlreadyUnlocked
	}

	fingerprint := cryptoutils.ComputeFingerprint(adminPubKeyPEM)
	if _, found := k.adminPubKeys[fingerprint]; !found {
		return ErrUnknownAdmin
	}
	for _, r := range k.received {
		if r.fingerprint == fingerprint {
			return ErrAlreadySubmitted
		}
	}

	if err := cryptoutils.VerifyMessage(adminPubKeyPEM, sub.Encoded, signature); err != nil {
		return err
	}

	start := time.Now()
	header, payload, err := shareformat.Decode(sub.Encoded, k.macKey)
	metrics.RecordOperation(metrics.OpDecode, start, err)
	if err != nil {
		return err
	}

	idx := int(header.ShareIndex)
	if _, dup := k.received[idx]; dup {
		return &interfaces.VerificationError{
			Code: verify.CodeDuplicateShare,
			Err:  fmt.Errorf("%w: index %d already submitted", interfaces.ErrDuplicateShare, idx),
		}
	}

	if k.opCtx.SessionID == "" {
		k.opCtx.SessionID = sub.SessionID
	}

	k.received[idx] = receivedShare{
		fingerprint: fingerprint,
		sessionID:   sub.SessionID,
		header:      header,
		payload:     payload,
	}

	return k.tryReconstruct()
}

// tryReconstruct runs the verification gate and reconstruction once enough
// shares are pending. Callers hold k.mu.
func (k *ShamirKMS) tryReconstruct() error {
	if len(k.received) < k.opCtx.Threshold {
		return nil // Not enough shares yet, but this is not an error
	}
	defer func() {
		if !k.isUnlocked && !k.pinned {
			k.opCtx.SessionID = ""
		}
		k.resetReceived()
	}()

	start := time.Now()

	for idx, r := range k.received {
		if int(r.header.Threshold) != k.opCtx.Threshold || int(r.header.ShareCount) != k.opCtx.TotalShares {
			err := &interfaces.VerificationError{
				Code: verify.CodeShareContextMismatch,
				Err:  fmt.Errorf("%w: share %d is %s", interfaces.ErrContextMismatch, idx, r.header),
			}
			metrics.RecordOperation(metrics.OpVerify, start, err)
			return err
		}
	}

	collected := make([]operations.CollectedShare, 0, len(k.received))
	for idx, r := range k.received {
		collected = append(collected, operations.CollectedShare{
			Share:   verify.Share{ID: idx, SessionID: r.sessionID},
			Payload: r.payload,
		})
	}

	p, res := operations.Initialize(k.opCtx)
	if !res.Success {
		return res.AsError()
	}

	_, res, masterKey := p.Reconstruct(collected, shamir.CombineBytes)
	metrics.RecordOperation(metrics.OpReconstruct, start, res.AsError())
	if !res.Success {
		return res.AsError()
	}

	k.masterKey = masterKey
	k.isUnlocked = true
	return nil
}

func (k *ShamirKMS) resetReceived() {
	for i := range k.received {
		wipeBytes(k.received[i].payload)
	}
	k.received = make(map[int]receivedShare)
}

// IsUnlocked returns whether the KMS has been successfully unlocked.
func (k *ShamirKMS) IsUnlocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.isUnlocked
}

// Status returns a snapshot of the KMS state.
func (k *ShamirKMS) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return Status{
		Unlocked:       k.isUnlocked,
		Threshold:      k.opCtx.Threshold,
		TotalShares:    k.opCtx.TotalShares,
		ReceivedShares: len(k.received),
		SessionID:      k.opCtx.SessionID,
	}
}

// Context returns the operation context the KMS works under.
func (k *ShamirKMS) Context() operations.OperationContext {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.opCtx
}

// MasterKey returns a copy of the master key.
func (k *ShamirKMS) MasterKey() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.isUnlocked {
		return nil, ErrLocked
	}
	return append([]byte(nil), k.masterKey...), nil
}

// DeriveKey derives a purpose-bound subkey from the master key with
// HKDF-SHA256, so the master key itself never has to leave the KMS.
func (k *ShamirKMS) DeriveKey(purpose string, size int) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.isUnlocked {
		return nil, ErrLocked
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid key size %d", size)
	}
	key := make([]byte, size)
	kdf := hkdf.New(sha256.New, k.masterKey, []byte(k.opCtx.SessionID), []byte("shamir-custody/"+purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Lock wipes the master key and any pending shares.
func (k *ShamirKMS) Lock() {
	k.mu.Lock()
	defer k.mu.Unlock()

	wipeBytes(k.masterKey)
	k.masterKey = nil
	k.isUnlocked = false
	k.resetReceived()
}

// Securely wipe data from memory
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
