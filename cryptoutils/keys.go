package cryptoutils

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidSignature = errors.New("invalid signature")

// GenerateAdminKeyPair generates a new P-256 key pair for an administrator
// and returns the private and public keys in PEM format.
func GenerateAdminKeyPair() (string, string, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	publicKeyPEM, err := PublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return "", "", err
	}

	return string(privateKeyPEM), string(publicKeyPEM), nil
}

// PublicKeyPEM encodes a public key as a PKIX PEM block.
func PublicKeyPEM(pub crypto.PublicKey) ([]byte, error) {
	publicKeyBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	}), nil
}

// ParsePrivateKey parses an ECDSA private key in SEC 1 or PKCS#8 PEM form.
func ParsePrivateKey(privateKeyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing private key")
	}

	if privateKey, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return privateKey, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}
	privateKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an ECDSA key")
	}
	return privateKey, nil
}

// ParsePublicKey parses a PKIX PEM public key. Only ECDSA and ed25519 keys
// are accepted.
func ParsePublicKey(publicKeyPEM []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	switch pub.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey:
		return pub, nil
	default:
		return nil, errors.New("public key is neither ECDSA nor ED25519 key")
	}
}

// ParseECDSAPublicKey is ParsePublicKey restricted to ECDSA keys.
func ParseECDSAPublicKey(publicKeyPEM []byte) (*ecdsa.PublicKey, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	return ecdsaPub, nil
}

// ComputeFingerprint returns the hex SHA-256 of the PEM bytes.
func ComputeFingerprint(publicKeyPEM []byte) string {
	h := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(h[:])
}

// SignMessage signs sha256(message) with an administrator's ECDSA key.
func SignMessage(message []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ecdsa.SignASN1(rand.Reader, privateKey, digest[:])
}

// VerifyMessage checks a signature made over sha256(message). ECDSA
// signatures are ASN.1 encoded; ed25519 keys sign the digest directly.
func VerifyMessage(publicKeyPEM, message, signature []byte) error {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return err
	}

	digest := sha256.Sum256(message)
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest[:], signature) {
			return ErrInvalidSignature
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(key, digest[:], signature) {
			return ErrInvalidSignature
		}
	}
	return nil
}

// AdminsConfig is the admin keys file read by LoadAdminKeys.
type AdminsConfig struct {
	Admins []AdminMetadata `json:"admins"`
}

type AdminMetadata struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"`
}

// LoadAdminKeys loads admin public keys from JSON of the form
//
//	{"admins": [{"id": "alice", "pubkey": "-----BEGIN PUBLIC KEY-----\n..."}]}
//
// and returns them keyed by admin ID, in file order.
func LoadAdminKeys(r io.Reader) (map[string][]byte, []string, error) {
	var data AdminsConfig

	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("failed to decode admin keys JSON: %w", err)
	}

	result := make(map[string][]byte, len(data.Admins))
	order := make([]string, 0, len(data.Admins))
	for _, admin := range data.Admins {
		if admin.ID == "" {
			return nil, nil, errors.New("admin entry without id")
		}
		if _, dup := result[admin.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate admin id %s", admin.ID)
		}
		if _, err := ParsePublicKey([]byte(admin.PubKey)); err != nil {
			return nil, nil, fmt.Errorf("invalid public key for admin %s: %w", admin.ID, err)
		}

		result[admin.ID] = []byte(admin.PubKey)
		order = append(order, admin.ID)
	}

	return result, order, nil
}
