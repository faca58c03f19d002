package verify

import (
	"fmt"

	"github.com/ruteri/shamir-custody/interfaces"
)

// Finding is one problem found by Inspect.
type Finding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ShareID int    `json:"share_id,omitempty"`
}

// Report lists every problem in a share list rather than only the first.
type Report struct {
	ValidShares        int       `json:"valid_shares"`
	InvalidShares      int       `json:"invalid_shares"`
	ThresholdSatisfied bool      `json:"threshold_satisfied"`
	Findings           []Finding `json:"findings,omitempty"`
}

// OK reports whether the list would pass Check.
func (r Report) OK() bool {
	return len(r.Findings) == 0
}

// Err returns the finding Check would have returned, using the same fixed
// code order, as a *interfaces.VerificationError.
func (r Report) Err() error {
	order := []struct {
		code  string
		cause error
	}{
		{CodeInsufficientShares, interfaces.ErrInsufficientShares},
		{CodeDuplicateShare, interfaces.ErrDuplicateShare},
		{CodeShareContextMismatch, interfaces.ErrContextMismatch},
		{CodeCorruptedInput, interfaces.ErrCorruptedInput},
	}
	for _, o := range order {
		for _, f := range r.Findings {
			if f.Code == o.code {
				return &interfaces.VerificationError{Code: o.code, Err: fmt.Errorf("%w: %s", o.cause, f.Message)}
			}
		}
	}
	return nil
}

// Inspect collects all findings for the share list.
func Inspect(shares []Share, ctx Context) Report {
	var r Report

	r.ThresholdSatisfied = len(shares) > 0 && len(shares) >= ctx.Threshold
	if !r.ThresholdSatisfied {
		r.Findings = append(r.Findings, Finding{
			Code:    CodeInsufficientShares,
			Message: fmt.Sprintf("have %d shares, need %d", len(shares), ctx.Threshold),
		})
	}

	invalid := make(map[int]bool)
	counts := make(map[int]int)
	for _, s := range shares {
		if s.ID != 0 {
			counts[s.ID]++
		}
	}
	reported := make(map[int]bool)
	for i, s := range shares {
		switch {
		case s.ID == 0:
			invalid[i] = true
			r.Findings = append(r.Findings, Finding{
				Code:    CodeCorruptedInput,
				Message: fmt.Sprintf("share at position %d has no identifier", i),
			})
		case counts[s.ID] > 1:
			invalid[i] = true
			if !reported[s.ID] {
				reported[s.ID] = true
				r.Findings = append(r.Findings, Finding{
					Code:    CodeDuplicateShare,
					Message: fmt.Sprintf("identifier %d appears %d times", s.ID, counts[s.ID]),
					ShareID: s.ID,
				})
			}
		}
		if s.SessionID != ctx.SessionID {
			invalid[i] = true
			r.Findings = append(r.Findings, Finding{
				Code:    CodeShareContextMismatch,
				Message: fmt.Sprintf("session %q does not match %q", s.SessionID, ctx.SessionID),
				ShareID: s.ID,
			})
		}
	}

	r.InvalidShares = len(invalid)
	r.ValidShares = len(shares) - r.InvalidShares
	return r
}
