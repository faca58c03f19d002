package interfaces

import (
	"errors"
	"fmt"
)

// Error classes. Every typed error below matches exactly one of these through
// errors.Is, so callers can branch on severity without knowing the cause.
var (
	ErrValidation     = errors.New("validation error")
	ErrFormat         = errors.New("format error")
	ErrIntegrity      = errors.New("integrity error")
	ErrVerification   = errors.New("verification error")
	ErrReconstruction = errors.New("reconstruction error")
)

// Causes wrapped by the typed errors.
var (
	ErrInvalidSecret     = errors.New("secret outside the finite field")
	ErrEmptySecret       = errors.New("empty secret")
	ErrInvalidThreshold  = errors.New("invalid threshold")
	ErrInvalidShareCount = errors.New("invalid share count")

	ErrTruncated       = errors.New("data too short")
	ErrInvalidMagic    = errors.New("invalid magic value")
	ErrInvalidVersion  = errors.New("unsupported format version")
	ErrInvalidHeader   = errors.New("invalid share header")
	ErrEmptyPayload    = errors.New("empty payload")
	ErrInvalidPayload  = errors.New("malformed share payload")
	ErrCRCMismatch     = errors.New("crc32 mismatch")
	ErrMACMismatch     = errors.New("hmac verification failed")
	ErrDigestMismatch  = errors.New("stored share digest mismatch")
	ErrNotEnoughPoints = errors.New("at least two shares are required")
	ErrDuplicatePoint  = errors.New("duplicate share index")
	ErrCorruptSecret   = errors.New("reconstructed value is not a valid secret chunk")

	ErrInsufficientShares = errors.New("insufficient shares")
	ErrDuplicateShare     = errors.New("duplicate share")
	ErrContextMismatch    = errors.New("share context mismatch")
	ErrCorruptedInput     = errors.New("corrupted input")
)

// ValidationError reports bad parameters: threshold, share count or secret range.
type ValidationError struct {
	Code string
	Err  error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %s: %v", e.Code, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FormatError reports malformed wire bytes.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return fmt.Sprintf("share format: %v", e.Err) }
func (e *FormatError) Unwrap() error { return e.Err }
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// IntegrityError reports a CRC or MAC mismatch. Unlike FormatError it means
// the bytes were well formed but altered after encoding.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string { return fmt.Sprintf("share integrity: %v", e.Err) }
func (e *IntegrityError) Unwrap() error { return e.Err }
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// VerificationError is raised by the procedural gate in front of
// reconstruction. Code is one of the stable verifier codes.
type VerificationError struct {
	Code string
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification: %s: %v", e.Code, e.Err)
}
func (e *VerificationError) Unwrap() error { return e.Err }
func (e *VerificationError) Is(target error) bool {
	return target == ErrVerification
}

// ReconstructionError reports that interpolation could not run.
type ReconstructionError struct {
	Err error
}

func (e *ReconstructionError) Error() string { return fmt.Sprintf("reconstruction: %v", e.Err) }
func (e *ReconstructionError) Unwrap() error { return e.Err }
func (e *ReconstructionError) Is(target error) bool {
	return target == ErrReconstruction
}

// ErrorCode extracts the stable code carried by a typed error, or "" when
// the error has none.
func ErrorCode(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	var vferr *VerificationError
	if errors.As(err, &vferr) {
		return vferr.Code
	}
	return ""
}
