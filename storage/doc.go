// Package storage keeps encoded shares in pluggable, name-addressed backends.
//
// Every backend implements interfaces.StorageBackend: opaque blobs are stored
// and fetched under short keys made of letters, digits, '.', '_' and '-'.
//
//   - FileBackend writes one file per key, atomically via rename
//   - S3Backend stores objects in Amazon S3 or a compatible service
//   - IPFSBackend writes into the mutable file system of an IPFS node
//   - VaultBackend stores base64 values in a Vault KV v2 mount
//
// # Storage URI Format
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/shamir/
//   - s3://[AK:SK@]bucket-name/prefix/?region=us-west-2&endpoint=minio.local:9000
//   - ipfs://127.0.0.1:5001/shamir?timeout=30s
//   - vault://vault.example.com:8200/secret/shamir?token=...&ca_cert=/etc/vault/ca.pem
//
// StorageBackendFactory turns URIs into backends. CreateMultiBackend wraps
// several of them in a MultiStorageBackend, which writes to every available
// backend and reads from the first one holding the key.
//
// # Share Sets
//
// ShareStore lays a split out as "<name>.<index>" blobs plus a
// "<name>.manifest" JSON document carrying the session id, threshold,
// algorithm and the SHA-256 of every share:
//
//	store := storage.NewShareStore(backend, log)
//	manifest, err := store.SaveSet(ctx, "root-key", storage.Manifest{
//		SessionID: opCtx.SessionID,
//		Threshold: opCtx.Threshold,
//		Total:     opCtx.TotalShares,
//		Algorithm: opCtx.AlgorithmVersion,
//	}, encoded)
//
//	manifest, shares, err := store.LoadSet(ctx, "root-key", []int{1, 3, 4})
//
// The manifest only proves a share is the one that was stored; the SHAM
// checksum and MAC still guard the share bytes themselves.
package storage
