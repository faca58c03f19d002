package shareformat

import (
	"fmt"

	"github.com/ruteri/shamir-custody/interfaces"
)

// Wire constants.
const (
	Magic   = "SHAM"
	Version = 0x01

	// FieldPrime256 tags the 257-bit prime field configuration. Earlier
	// tooling named this value after GF(256); the value is kept for wire
	// compatibility but no byte-oriented field is involved.
	FieldPrime256 = 0x01

	HeaderSize = 9
	CRCSize    = 4
	MACSize    = 32
)

// Header describes one encoded share.
type Header struct {
	Threshold  uint8
	ShareCount uint8
	ShareIndex uint8
	FieldID    uint8
}

// NewHeader returns a header for the prime field.
func NewHeader(threshold, shareCount, shareIndex int) Header {
	return Header{
		Threshold:  uint8(threshold),
		ShareCount: uint8(shareCount),
		ShareIndex: uint8(shareIndex),
		FieldID:    FieldPrime256,
	}
}

// Validate checks 1 <= k <= n, 1 <= i <= n and a known field id.
func (h Header) Validate() error {
	if h.Threshold < 1 || h.Threshold > h.ShareCount {
		return &interfaces.FormatError{Err: fmt.Errorf("%w: threshold %d, share count %d", interfaces.ErrInvalidHeader, h.Threshold, h.ShareCount)}
	}
	if h.ShareIndex < 1 || h.ShareIndex > h.ShareCount {
		return &interfaces.FormatError{Err: fmt.Errorf("%w: share index %d of %d", interfaces.ErrInvalidHeader, h.ShareIndex, h.ShareCount)}
	}
	if h.FieldID != FieldPrime256 {
		return &interfaces.FormatError{Err: fmt.Errorf("%w: unsupported field identifier 0x%02x", interfaces.ErrInvalidHeader, h.FieldID)}
	}
	return nil
}

func (h Header) String() string {
	return fmt.Sprintf("share %d/%d (threshold %d, field 0x%02x)", h.ShareIndex, h.ShareCount, h.Threshold, h.FieldID)
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	buf[4] = Version
	buf[5] = h.Threshold
	buf[6] = h.ShareCount
	buf[7] = h.ShareIndex
	buf[8] = h.FieldID
	return buf
}
