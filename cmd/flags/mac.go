package flags

import (
	"errors"
	"fmt"
	"os"

	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/urfave/cli/v2"
)

// MinMACKeySize is the shortest key accepted from --mac-key-file.
const MinMACKeySize = 32

// LoadMACKey returns the share HMAC key selected by MACFlags, or nil when
// neither --mac-key-file nor --mac-passphrase is set.
func LoadMACKey(cCtx *cli.Context) ([]byte, error) {
	keyFile := cCtx.String(MACKeyFileFlag.Name)
	passphrase := cCtx.String(MACPassphraseFlag.Name)

	switch {
	case keyFile != "" && passphrase != "":
		return nil, errors.New("--mac-key-file and --mac-passphrase are mutually exclusive")
	case keyFile != "":
		key, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read mac key: %w", err)
		}
		if len(key) < MinMACKeySize {
			return nil, fmt.Errorf("mac key must be at least %d bytes, got %d", MinMACKeySize, len(key))
		}
		return key, nil
	case passphrase != "":
		return cryptoutils.DeriveMACKey([]byte(passphrase), []byte(cCtx.String(MACSaltFlag.Name)))
	default:
		return nil, nil
	}
}
