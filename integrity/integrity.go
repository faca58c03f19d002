// Package integrity provides the checksum and keyed MAC used by the share
// format. It performs no encryption and knows nothing about the sharing math.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash/crc32"

	"github.com/ruteri/shamir-custody/interfaces"
)

// MACSize is the length of an HMAC-SHA256 tag.
const MACSize = sha256.Size

// CRC32 returns the IEEE CRC32 of data. It detects accidental corruption
// only.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyCRC32 returns an IntegrityError when data does not hash to expected.
func VerifyCRC32(data []byte, expected uint32) error {
	if CRC32(data) != expected {
		return &interfaces.IntegrityError{Err: interfaces.ErrCRCMismatch}
	}
	return nil
}

// HMACSHA256 returns the HMAC-SHA256 tag of data under key.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHMACSHA256 compares the expected tag in constant time.
func VerifyHMACSHA256(key, data, expected []byte) error {
	if !hmac.Equal(HMACSHA256(key, data), expected) {
		return &interfaces.IntegrityError{Err: interfaces.ErrMACMismatch}
	}
	return nil
}
