// Package cryptoutils holds the public-key helpers of the custody service:
// ECIES envelopes that protect a share on its way to one administrator, the
// administrator key pairs that sign requests and share submissions, and
// passphrase based key derivation for share MAC keys.
//
// The ECIES envelope uses NIST P-256 ECDH with a fresh ephemeral key per
// message, HKDF-SHA256 bound to the ephemeral public key, and AES-256-GCM:
//
//	[2-byte ephemeral key length][ephemeral public key][12-byte nonce][ciphertext+tag]
//
// Example:
//
//	privPEM, pubPEM, err := cryptoutils.GenerateAdminKeyPair()
//	sealed, err := cryptoutils.EncryptWithPublicKey([]byte(pubPEM), share)
//	share, err := cryptoutils.DecryptWithPrivateKey([]byte(privPEM), sealed)
package cryptoutils
