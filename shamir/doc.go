// Package shamir implements threshold secret sharing over the prime field
// defined in package field.
//
// # Splitting
//
// Split builds a random polynomial of degree threshold-1 whose constant term
// is the secret and evaluates it at x = 1..n. Every coefficient other than the
// secret is drawn uniformly from [0, P) using the Dealer's random source,
// crypto/rand.Reader by default. Splitting is intentionally
// non-deterministic; a reproducible source may only be injected from tests.
//
// # Reconstruction
//
// Reconstruct runs Lagrange interpolation at x = 0. It needs at least two
// points but does not know the threshold the secret was split with: fewer
// points than the threshold produce a wrong value and no error. The
// verification gate in package verify must run first.
//
// # Byte secrets
//
// SplitBytes and CombineBytes wrap the integer API for arbitrary byte
// strings. The secret is chunked into 31-byte pieces, each mapped to the
// element 0x01 || chunk, and every share payload is the concatenation of the
// 33-byte big-endian elements for that share index.
//
// # Example
//
//	payloads, err := shamir.SplitBytes([]byte("super-secret"), 3, 5)
//	if err != nil {
//	    return err
//	}
//	secret, err := shamir.CombineBytes(map[int][]byte{
//	    1: payloads[1], 3: payloads[3], 5: payloads[5],
//	})
package shamir
