package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	eciesNonceSize = 12
	eciesKeySize   = 32
	eciesInfo      = "shamir-custody ecies v1"
)

var ErrInvalidCiphertext = errors.New("encrypted data has invalid format")

// EncryptWithPublicKey encrypts data for the holder of the P-256 public key
// in publicKeyPEM.
func EncryptWithPublicKey(publicKeyPEM []byte, data []byte) ([]byte, error) {
	publicKey, err := ParseECDSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	remote, err := publicKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported public key: %w", err)
	}

	ephemeralKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	shared, err := ephemeralKey.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	ephemeralPub := ephemeralKey.PublicKey().Bytes()
	aead, err := newEnvelopeAEAD(shared, ephemeralPub)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, eciesNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 2, 2+len(ephemeralPub)+eciesNonceSize+len(data)+aead.Overhead())
	binary.BigEndian.PutUint16(out, uint16(len(ephemeralPub)))
	out = append(out, ephemeralPub...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, ephemeralPub), nil
}

// DecryptWithPrivateKey opens an envelope produced by EncryptWithPublicKey.
func DecryptWithPrivateKey(privateKeyPEM []byte, encryptedData []byte) ([]byte, error) {
	privateKey, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	local, err := privateKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported private key: %w", err)
	}

	if len(encryptedData) < 2 {
		return nil, ErrInvalidCiphertext
	}
	keyLen := int(binary.BigEndian.Uint16(encryptedData[:2]))
	if len(encryptedData) < 2+keyLen+eciesNonceSize {
		return nil, ErrInvalidCiphertext
	}

	ephemeralPub := encryptedData[2 : 2+keyLen]
	nonce := encryptedData[2+keyLen : 2+keyLen+eciesNonceSize]
	ciphertext := encryptedData[2+keyLen+eciesNonceSize:]

	remote, err := ecdh.P256().NewPublicKey(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral public key: %w", err)
	}

	shared, err := local.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	aead, err := newEnvelopeAEAD(shared, ephemeralPub)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func newEnvelopeAEAD(shared, ephemeralPub []byte) (cipher.AEAD, error) {
	key := make([]byte, eciesKeySize)
	kdf := hkdf.New(sha256.New, shared, nil, append([]byte(eciesInfo), ephemeralPub...))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
