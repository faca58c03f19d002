package operations

import (
	"github.com/google/uuid"
	"github.com/ruteri/shamir-custody/verify"
)

// AlgorithmVersion identifies the sharing scheme and wire format produced by
// this module.
const AlgorithmVersion = "shamir-p256-v1"

// Context validation codes, in the order they are checked.
const (
	CodeInvalidThreshold            = "INVALID_THRESHOLD"
	CodeInvalidTotalShares          = "INVALID_TOTAL_SHARES"
	CodeThresholdExceedsTotalShares = "THRESHOLD_EXCEEDS_TOTAL_SHARES"
	CodeMissingSessionID            = "MISSING_SESSION_ID"
	CodeMissingAlgorithmVersion     = "MISSING_ALGORITHM_VERSION"
)

// OperationContext carries every parameter of one split or recovery. It is
// passed by value and never modified after construction.
type OperationContext struct {
	SessionID        string `json:"session_id"`
	Threshold        int    `json:"threshold"`
	TotalShares      int    `json:"total_shares"`
	AlgorithmVersion string `json:"algorithm_version"`
	DryRun           bool   `json:"dry_run,omitempty"`
}

// NewContext returns a context for a fresh sharing session with a random
// session id and the current algorithm version.
func NewContext(threshold, totalShares int) OperationContext {
	return OperationContext{
		SessionID:        NewSessionID(),
		Threshold:        threshold,
		TotalShares:      totalShares,
		AlgorithmVersion: AlgorithmVersion,
	}
}

// NewSessionID returns a random UUIDv4 string.
func NewSessionID() string {
	return uuid.NewString()
}

// Validate returns the first structural problem as a stable code, or "".
func (c OperationContext) Validate() string {
	switch {
	case c.Threshold <= 0:
		return CodeInvalidThreshold
	case c.TotalShares <= 0:
		return CodeInvalidTotalShares
	case c.Threshold > c.TotalShares:
		return CodeThresholdExceedsTotalShares
	case c.SessionID == "":
		return CodeMissingSessionID
	case c.AlgorithmVersion == "":
		return CodeMissingAlgorithmVersion
	}
	return ""
}

// VerifyContext projects the fields the verification gate needs.
func (c OperationContext) VerifyContext() verify.Context {
	return verify.Context{SessionID: c.SessionID, Threshold: c.Threshold}
}
