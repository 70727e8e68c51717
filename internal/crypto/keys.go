package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// SigningKeySize is the length of a credential signing key in bytes.
const SigningKeySize = 32

var ErrInvalidSigningKey = errors.New("invalid signing key")

// GenerateSigningKey returns a random signing key, base64-encoded.
func GenerateSigningKey() (string, error) {
	key := make([]byte, SigningKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeSigningKey decodes a base64 signing key and checks its length.
func DecodeSigningKey(keyB64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidSigningKey)
	}
	if len(key) < SigningKeySize {
		return nil, fmt.Errorf("%w: must be at least %d bytes, got %d", ErrInvalidSigningKey, SigningKeySize, len(key))
	}
	return key, nil
}

// DeriveKey derives a per-namespace key from the master key with
// HKDF-SHA256, so a credential minted for one namespace does not verify
// in another.
func DeriveKey(master []byte, namespace string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte("firesync-credential:"+namespace))
	key := make([]byte, SigningKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
