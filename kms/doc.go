// Package kms holds a master key in memory under Shamir custody.
//
// At generation time the key is split into one SHAM-encoded share per
// administrator and the KMS starts unlocked. After a restart the KMS starts
// locked and unlocks once a threshold of administrators have each submitted
// a share signed with their registered key:
//
//	k, err := kms.NewShamirKMSRecovery(kms.ShamirConfig{
//	    Threshold:    2,
//	    AdminPubKeys: adminKeys,
//	    MACKey:       macKey,
//	})
//	...
//	err = k.SubmitShare(kms.ShareSubmission{SessionID: sid, Encoded: share}, sig, adminPEM)
//
// Shares are decoded and integrity checked one at a time. The full set goes
// through the verification gate before reconstruction; a rejected set is
// discarded and the administrators have to submit again.
//
// Application keys are derived from the master key with DeriveKey rather
// than handing out the master key itself.
package kms
