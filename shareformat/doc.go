// Package shareformat is the canonical wire encoding of a single share.
//
// Layout, big-endian:
//
//	MAGIC "SHAM" (4) | VERSION (1) | threshold (1) | share_count (1) |
//	share_index (1) | field_id (1) | payload (var) | crc32 (4) | [hmac (32)]
//
// The CRC32 covers header and payload and is always present. The optional
// HMAC-SHA256 covers everything up to and including the CRC and is only
// appended, and only checked, when a key is supplied; the key is never
// derived here.
//
// Decode separates two failure classes: malformed input (bad magic, version,
// header values, truncation) is an interfaces.FormatError, while a checksum
// or MAC mismatch on otherwise well-formed input is an
// interfaces.IntegrityError.
//
// The header's threshold and share count are not compared with any operation
// context here; that happens at the verification stage.
package shareformat
