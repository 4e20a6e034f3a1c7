// Package secret encrypts small payloads under a user passphrase.
//
// A blob is base64(salt || nonce || ciphertext+tag) where the AES-256-GCM key
// is derived from the passphrase with PBKDF2-HMAC-SHA256.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/slot-automator/internal/errors"
)

const (
	// SaltSize is the length of the random PBKDF2 salt
	SaltSize = 16
	// NonceSize is the length of the random GCM nonce
	NonceSize = 12
	// KeySize selects AES-256
	KeySize = 32
	// DefaultIterations is the PBKDF2 work factor used unless overridden
	DefaultIterations = 100000
)

// Box encrypts and decrypts blobs. It holds no key material and is safe for concurrent use.
type Box struct {
	iterations int
	random     io.Reader
}

// Option configures a Box
type Option func(*Box)

// WithIterations overrides the PBKDF2 iteration count
func WithIterations(n int) Option {
	return func(b *Box) {
		if n > 0 {
			b.iterations = n
		}
	}
}

// WithRandom replaces the source of salts and nonces
func WithRandom(r io.Reader) Option {
	return func(b *Box) {
		if r != nil {
			b.random = r
		}
	}
}

// NewBox creates a Box using crypto/rand and DefaultIterations
func NewBox(opts ...Option) *Box {
	b := &Box{
		iterations: DefaultIterations,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Iterations returns the configured PBKDF2 work factor
func (b *Box) Iterations() int {
	return b.iterations
}

func (b *Box) aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, b.iterations, KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under passphrase with a fresh salt and nonce
func (b *Box) Encrypt(plaintext []byte, passphrase string) (string, error) {
	header := make([]byte, SaltSize+NonceSize)
	if _, err := io.ReadFull(b.random, header); err != nil {
		return "", fmt.Errorf("failed to read randomness: %w", err)
	}
	salt, nonce := header[:SaltSize], header[SaltSize:]

	gcm, err := b.aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(header, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. A wrong passphrase and a damaged
// blob are indistinguishable and both yield an authentication error.
func (b *Box) Decrypt(blob string, passphrase string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, apperrors.NewAuthenticationError("encrypted data is not valid base64", err)
	}
	if len(raw) < SaltSize+NonceSize+16 {
		return nil, apperrors.NewAuthenticationError("encrypted data is too short", nil)
	}

	salt := raw[:SaltSize]
	nonce := raw[SaltSize : SaltSize+NonceSize]
	ciphertext := raw[SaltSize+NonceSize:]

	gcm, err := b.aead(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.NewAuthenticationError("invalid passphrase or corrupted data", err)
	}
	return plaintext, nil
}

// EncryptString is Encrypt for text payloads
func (b *Box) EncryptString(plaintext, passphrase string) (string, error) {
	return b.Encrypt([]byte(plaintext), passphrase)
}

// DecryptString is Decrypt for text payloads
func (b *Box) DecryptString(blob, passphrase string) (string, error) {
	plaintext, err := b.Decrypt(blob, passphrase)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
