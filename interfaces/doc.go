// Package interfaces holds the types shared across the module: the typed
// error taxonomy and the storage backend contract.
//
// # Errors
//
// Every failure raised by the core is one of ValidationError, FormatError,
// IntegrityError, VerificationError or ReconstructionError. Each matches its
// class sentinel (ErrValidation, ErrFormat, ...) through errors.Is and wraps
// a more specific cause such as ErrCRCMismatch. ValidationError and
// VerificationError also carry a stable Code, read with ErrorCode.
//
// # Storage
//
// StorageBackend stores opaque blobs under validated keys. Backends are
// described by StorageBackendLocation URIs:
//
//	file:///var/lib/shamir
//	s3://bucket/prefix?region=eu-west-1
//	ipfs://127.0.0.1:5001/shamir
//	vault://vault.internal:8200/secret/shamir?token=...
package interfaces
