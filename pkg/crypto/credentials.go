package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	clientIDBytes     = 16
	clientSecretBytes = 32
)

// Credentials is a freshly generated client-id/client-secret pair.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// GenerateCredentials produces a random credential pair from a cryptographically
// secure source. The client id carries 128 bits of entropy, the secret 256.
func GenerateCredentials() (Credentials, error) {
	id := make([]byte, clientIDBytes)
	if _, err := rand.Read(id); err != nil {
		return Credentials{}, fmt.Errorf("crypto: generate client id: %w", err)
	}

	secret := make([]byte, clientSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return Credentials{}, fmt.Errorf("crypto: generate client secret: %w", err)
	}

	return Credentials{
		ClientID:     hex.EncodeToString(id),
		ClientSecret: hex.EncodeToString(secret),
	}, nil
}

// SecretCodec reversibly encodes client secrets for storage. Encode output is
// opaque text that fits the same column as the plaintext would have; decode of
// an encoded value must return the original secret.
type SecretCodec interface {
	Encode(secret string) (string, error)
	Decode(encoded string) (string, error)
}

// Base64Codec is the reversible-encoding placeholder codec. It provides no
// confidentiality against anyone with database access; use the AES codec for
// at-rest protection.
type Base64Codec struct{}

func (Base64Codec) Encode(secret string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(secret)), nil
}

func (Base64Codec) Decode(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("crypto: decode secret: %w", err)
	}
	return string(raw), nil
}

// AESCodec encrypts secrets with AES-256-GCM under an application-level key
// held outside the database.
type AESCodec struct {
	key []byte
}

// NewAESCodec builds an AESCodec from a 32-byte key.
func NewAESCodec(key []byte) (*AESCodec, error) {
	if len(key) != 32 {
		return nil, errors.New("crypto: aes codec requires a 32 byte key")
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return &AESCodec{key: cp}, nil
}

func (c *AESCodec) Encode(secret string) (string, error) {
	return Encrypt([]byte(secret), c.key)
}

func (c *AESCodec) Decode(encoded string) (string, error) {
	raw, err := Decrypt(encoded, c.key)
	if err != nil {
		return "", fmt.Errorf("crypto: decode secret: %w", err)
	}
	return string(raw), nil
}

// NewSecretCodec selects a codec by algorithm name: "base64" or "aes-gcm".
func NewSecretCodec(algorithm string, key []byte) (SecretCodec, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "base64":
		return Base64Codec{}, nil
	case "aes-gcm", "aes-256-gcm":
		return NewAESCodec(key)
	default:
		return nil, fmt.Errorf("crypto: unsupported secret codec %q", algorithm)
	}
}
