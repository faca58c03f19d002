package shareformat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ruteri/shamir-custody/integrity"
	"github.com/ruteri/shamir-custody/interfaces"
)

// Decode parses and checks one encoded share. The payload is returned as a
// fresh copy. Malformed bytes yield a FormatError; a CRC or MAC mismatch
// yields an IntegrityError. A nil or empty macKey decodes an unkeyed share.
func Decode(data []byte, macKey []byte) (Header, []byte, error) {
	macLen := 0
	if len(macKey) > 0 {
		macLen = MACSize
	}
	if len(data) < HeaderSize+CRCSize+macLen {
		return Header{}, nil, &interfaces.FormatError{Err: fmt.Errorf("%w: %d bytes", interfaces.ErrTruncated, len(data))}
	}

	if !bytes.Equal(data[:4], []byte(Magic)) {
		return Header{}, nil, &interfaces.FormatError{Err: interfaces.ErrInvalidMagic}
	}
	if data[4] != Version {
		return Header{}, nil, &interfaces.FormatError{Err: fmt.Errorf("%w: 0x%02x", interfaces.ErrInvalidVersion, data[4])}
	}

	h := Header{
		Threshold:  data[5],
		ShareCount: data[6],
		ShareIndex: data[7],
		FieldID:    data[8],
	}
	if err := h.Validate(); err != nil {
		return Header{}, nil, err
	}

	payloadEnd := len(data) - CRCSize - macLen
	if payloadEnd <= HeaderSize {
		return Header{}, nil, &interfaces.FormatError{Err: interfaces.ErrEmptyPayload}
	}

	expected := binary.BigEndian.Uint32(data[payloadEnd : payloadEnd+CRCSize])
	if err := integrity.VerifyCRC32(data[:payloadEnd], expected); err != nil {
		return Header{}, nil, err
	}

	if len(macKey) > 0 {
		body := data[:payloadEnd+CRCSize]
		if err := integrity.VerifyHMACSHA256(macKey, body, data[payloadEnd+CRCSize:]); err != nil {
			return Header{}, nil, err
		}
	}

	return h, bytes.Clone(data[HeaderSize:payloadEnd]), nil
}

// ReadHeader parses only the header without checking integrity. It is meant
// for listing and diagnostics; callers must still Decode before use.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, &interfaces.FormatError{Err: fmt.Errorf("%w: %d bytes", interfaces.ErrTruncated, len(data))}
	}
	if !bytes.Equal(data[:4], []byte(Magic)) {
		return Header{}, &interfaces.FormatError{Err: interfaces.ErrInvalidMagic}
	}
	if data[4] != Version {
		return Header{}, &interfaces.FormatError{Err: fmt.Errorf("%w: 0x%02x", interfaces.ErrInvalidVersion, data[4])}
	}
	h := Header{Threshold: data[5], ShareCount: data[6], ShareIndex: data[7], FieldID: data[8]}
	return h, h.Validate()
}
