package shareformat

import (
	"encoding/binary"

	"github.com/ruteri/shamir-custody/integrity"
	"github.com/ruteri/shamir-custody/interfaces"
)

// Encode serializes one share. CRC32 over header||payload is always
// appended. When macKey is non-empty an HMAC-SHA256 over the CRC-terminated
// buffer follows it; a nil or empty key means no MAC.
func Encode(h Header, payload []byte, macKey []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, &interfaces.FormatError{Err: interfaces.ErrEmptyPayload}
	}

	size := HeaderSize + len(payload) + CRCSize
	if len(macKey) > 0 {
		size += MACSize
	}

	out := make([]byte, 0, size)
	out = append(out, h.marshal()...)
	out = append(out, payload...)
	out = binary.BigEndian.AppendUint32(out, integrity.CRC32(out))

	if len(macKey) > 0 {
		out = append(out, integrity.HMACSHA256(macKey, out)...)
	}
	return out, nil
}
