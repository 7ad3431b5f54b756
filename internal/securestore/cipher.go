// Package securestore persists JSON values in a key/value backend, encrypted
// with AES-256-GCM under a PBKDF2-derived key.
package securestore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"github.com/Tiliavir/boring-time-tracker/internal/metrics"
)

const (
	// DefaultPassphrase and Salt are fixed so values written by earlier
	// installs stay readable. They obscure data at rest; they are not a
	// secret.
	DefaultPassphrase = "boring-invoice-key"
	Salt              = "boring-invoice-salt"

	// Iterations is the PBKDF2-HMAC-SHA256 work factor.
	Iterations = 100000
	// KeyLength is 256 bits for AES-256.
	KeyLength = 32
	// IVSize is the AES-GCM nonce size.
	IVSize = 12
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// DeriveKey stretches passphrase into a 256-bit key with PBKDF2-HMAC-SHA256
// over the static salt. The result is deterministic.
func DeriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(Salt), Iterations, KeyLength, sha256.New)
}

// Cipher encrypts strings into base64(IV || ciphertext || tag).
type Cipher struct {
	aead   cipher.AEAD
	rand   io.Reader
	logger logrus.FieldLogger
}

// CipherOption configures a Cipher.
type CipherOption func(*Cipher)

// WithRandom replaces the IV source, which defaults to crypto/rand.
func WithRandom(r io.Reader) CipherOption {
	return func(c *Cipher) { c.rand = r }
}

// WithCipherLogger sets the logger used for fallback warnings.
func WithCipherLogger(l logrus.FieldLogger) CipherOption {
	return func(c *Cipher) { c.logger = l }
}

// NewCipher derives the key for passphrase and prepares AES-256-GCM.
func NewCipher(passphrase string, opts ...CipherOption) (*Cipher, error) {
	return NewCipherWithKey(DeriveKey(passphrase), opts...)
}

// NewCipherWithKey prepares AES-GCM for an already derived key.
func NewCipherWithKey(key []byte, opts ...CipherOption) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	c := &Cipher{aead: aead, rand: rand.Reader, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Seal encrypts plaintext under a fresh random IV.
func (c *Cipher) Seal(plaintext string) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}
	out := c.aead.Seal(iv, iv, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (c *Cipher) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < IVSize+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := c.aead.Open(nil, raw[:IVSize], raw[IVSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// Encrypt is Seal with availability fallback: on failure it returns the
// plaintext unchanged and ok=false.
func (c *Cipher) Encrypt(plaintext string) (out string, ok bool) {
	sealed, err := c.Seal(plaintext)
	if err != nil {
		c.fallback("encrypt", err)
		return plaintext, false
	}
	return sealed, true
}

// Decrypt is Open with availability fallback: on failure it returns the
// input unchanged and ok=false, so values stored unencrypted still load.
func (c *Cipher) Decrypt(encoded string) (out string, ok bool) {
	plaintext, err := c.Open(encoded)
	if err != nil {
		c.fallback("decrypt", err)
		return encoded, false
	}
	return plaintext, true
}

func (c *Cipher) fallback(op string, err error) {
	c.logger.WithFields(logrus.Fields{
		"op":    op,
		"error": err,
	}).Warn("crypto failed, passing value through unchanged")
	metrics.RecordCryptoFallback(op)
}
