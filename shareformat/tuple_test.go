package shareformat

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
)

// The tuple codec below is a test convenience for building compact
// index/value fixtures. It is not a supported wire format.

const tupleTextPrefix = "shamir1:"

func encodeTuple(index uint8, value []byte) string {
	buf := make([]byte, 0, 3+len(value))
	buf = append(buf, index)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	buf = append(buf, value...)
	return tupleTextPrefix + base64.RawURLEncoding.EncodeToString(buf)
}

func decodeTuple(text string) (uint8, []byte, error) {
	raw, ok := strings.CutPrefix(text, tupleTextPrefix)
	if !ok {
		return 0, nil, errors.New("invalid tuple prefix")
	}
	buf, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return 0, nil, err
	}
	if len(buf) < 3 || int(binary.BigEndian.Uint16(buf[1:3])) != len(buf)-3 || buf[0] == 0 {
		return 0, nil, errors.New("malformed tuple")
	}
	return buf[0], buf[3:], nil
}
