package shamir

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ruteri/shamir-custody/field"
	"github.com/ruteri/shamir-custody/interfaces"
)

// ChunkSize is the number of secret bytes carried by one field element.
// Each chunk is prefixed with chunkMarker before conversion so leading zero
// bytes survive the round trip and the value stays far below P.
const ChunkSize = 31

const chunkMarker = 0x01

// SplitBytes splits an arbitrary byte secret. The secret is cut into
// ChunkSize pieces, each shared with an independent polynomial, and the
// returned payload for share i is the concatenation of its field elements
// in chunk order. Keys of the result are share indices 1..n.
func (d *Dealer) SplitBytes(secret []byte, threshold, n int) (map[int][]byte, error) {
	if len(secret) == 0 {
		return nil, &interfaces.ValidationError{Code: CodeEmptySecret, Err: interfaces.ErrEmptySecret}
	}
	if err := validateParams(threshold, n); err != nil {
		return nil, err
	}

	chunks := (len(secret) + ChunkSize - 1) / ChunkSize
	payloads := make(map[int][]byte, n)
	for i := 1; i <= n; i++ {
		payloads[i] = make([]byte, 0, chunks*field.ElementSize)
	}

	buf := make([]byte, ChunkSize+1)
	for c := 0; c < chunks; c++ {
		end := min((c+1)*ChunkSize, len(secret))
		chunk := secret[c*ChunkSize : end]

		buf = buf[:len(chunk)+1]
		buf[0] = chunkMarker
		copy(buf[1:], chunk)
		value := new(big.Int).SetBytes(buf)

		shares, err := d.Split(value, threshold, n)
		value.SetInt64(0)
		if err != nil {
			return nil, err
		}
		for _, s := range shares {
			payloads[s.Index] = append(payloads[s.Index], field.Bytes(s.Value)...)
		}
	}
	wipeBytes(buf)

	return payloads, nil
}

// CombineBytes reverses SplitBytes. Every payload must hold the same number
// of field elements.
func (d *Dealer) CombineBytes(payloads map[int][]byte) ([]byte, error) {
	if len(payloads) < 2 {
		return nil, &interfaces.ReconstructionError{Err: interfaces.ErrNotEnoughPoints}
	}

	indices := make([]int, 0, len(payloads))
	for idx := range payloads {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	size := len(payloads[indices[0]])
	if size == 0 || size%field.ElementSize != 0 {
		return nil, &interfaces.FormatError{Err: fmt.Errorf("%w: length %d", interfaces.ErrInvalidPayload, size)}
	}
	for _, idx := range indices {
		if len(payloads[idx]) != size {
			return nil, &interfaces.FormatError{Err: fmt.Errorf("%w: share %d length %d differs from %d", interfaces.ErrInvalidPayload, idx, len(payloads[idx]), size)}
		}
	}

	chunks := size / field.ElementSize
	secret := make([]byte, 0, chunks*ChunkSize)
	points := make([]Share, len(indices))
	for c := 0; c < chunks; c++ {
		off := c * field.ElementSize
		for i, idx := range indices {
			v, err := field.FromBytes(payloads[idx][off : off+field.ElementSize])
			if err != nil {
				return nil, &interfaces.FormatError{Err: fmt.Errorf("%w: share %d: %v", interfaces.ErrInvalidPayload, idx, err)}
			}
			points[i] = Share{Index: idx, Value: v}
		}

		value, err := d.Reconstruct(points)
		if err != nil {
			return nil, err
		}
		raw := value.Bytes()
		value.SetInt64(0)
		if len(raw) == 0 || len(raw) > ChunkSize+1 || raw[0] != chunkMarker {
			wipeBytes(secret)
			return nil, &interfaces.ReconstructionError{Err: interfaces.ErrCorruptSecret}
		}
		secret = append(secret, raw[1:]...)
		wipeBytes(raw)
	}

	return secret, nil
}

// SplitBytes uses the default dealer.
func SplitBytes(secret []byte, threshold, n int) (map[int][]byte, error) {
	return defaultDealer.SplitBytes(secret, threshold, n)
}

// CombineBytes uses the default dealer.
func CombineBytes(payloads map[int][]byte) ([]byte, error) {
	return defaultDealer.CombineBytes(payloads)
}

// wipeBytes overwrites a buffer that held secret material.
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
