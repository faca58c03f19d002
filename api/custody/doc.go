// Package custody serves the administrator API that bootstraps a ShamirKMS.
//
// A fresh deployment is bootstrapped with POST /admin/init/generate: the
// server generates a master key, splits it into SHAM shares and seals each
// share for its administrator with ECIES. Every administrator then fetches
// their sealed share with GET /admin/share; bootstrap completes once all have
// done so.
//
// After a restart an administrator calls POST /admin/init/recover and each
// administrator submits their decrypted share, signed with their key, to
// POST /admin/share. The KMS unlocks as soon as a threshold of valid shares
// passes the verification gate.
//
// Every request carries X-Admin-ID and X-Admin-Signature headers. The
// signature is an ECDSA or ed25519 signature over sha256(path || body).
package custody
