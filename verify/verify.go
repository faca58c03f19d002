// Package verify implements the procedural gate that must pass before a
// secret is reconstructed. It checks share lists against an operation
// context without touching any share values.
package verify

import (
	"fmt"

	"github.com/ruteri/shamir-custody/interfaces"
)

// Verification codes, in the order the checks run.
const (
	CodeInsufficientShares   = "INSUFFICIENT_SHARES"
	CodeDuplicateShare       = "DUPLICATE_SHARE"
	CodeShareContextMismatch = "SHARE_CONTEXT_MISMATCH"
	CodeCorruptedInput       = "CORRUPTED_INPUT"
)

// Share is the part of a decoded share the gate looks at. ID zero means the
// identifier was missing or unreadable.
type Share struct {
	ID        int
	SessionID string
}

// Context is the subset of an operation context the gate needs.
type Context struct {
	SessionID string
	Threshold int
}

// Check runs the ordered checks and returns the first failure as a
// *interfaces.VerificationError, or nil. Each check is a full pass over the
// list, so a missing identifier is only reported once the count, duplicate
// and session checks have passed.
func Check(shares []Share, ctx Context) error {
	if len(shares) == 0 || len(shares) < ctx.Threshold {
		return &interfaces.VerificationError{
			Code: CodeInsufficientShares,
			Err:  fmt.Errorf("%w: have %d, need %d", interfaces.ErrInsufficientShares, len(shares), ctx.Threshold),
		}
	}

	seen := make(map[int]struct{}, len(shares))
	for _, s := range shares {
		if s.ID == 0 {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			return &interfaces.VerificationError{
				Code: CodeDuplicateShare,
				Err:  fmt.Errorf("%w: id %d", interfaces.ErrDuplicateShare, s.ID),
			}
		}
		seen[s.ID] = struct{}{}
	}

	for _, s := range shares {
		if s.SessionID != ctx.SessionID {
			return &interfaces.VerificationError{
				Code: CodeShareContextMismatch,
				Err:  fmt.Errorf("%w: share %d belongs to session %q", interfaces.ErrContextMismatch, s.ID, s.SessionID),
			}
		}
	}

	for i, s := range shares {
		if s.ID == 0 {
			return &interfaces.VerificationError{
				Code: CodeCorruptedInput,
				Err:  fmt.Errorf("%w: share at position %d has no identifier", interfaces.ErrCorruptedInput, i),
			}
		}
	}

	return nil
}
