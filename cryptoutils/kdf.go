package cryptoutils

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

// MACKeySize is the length of keys returned by DeriveMACKey.
const MACKeySize = 32

// DeriveMACKey stretches a passphrase into a share MAC key with Argon2id.
// The same passphrase and salt always give the same key.
func DeriveMACKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("empty passphrase")
	}
	// time=1, memory=64 MiB, threads=4
	return argon2.IDKey(passphrase, append([]byte("SHAM-MAC-KEY-"), salt...), 1, 64*1024, 4, MACKeySize), nil
}
