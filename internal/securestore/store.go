package securestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorruptValue is returned when a stored value does not parse as JSON
// after decryption.
var ErrCorruptValue = errors.New("stored value is not valid JSON")

// Store serializes values to JSON and keeps them encrypted in a KV.
type Store struct {
	kv        KV
	cipher    *Cipher
	plaintext bool
}

// Option configures a Store.
type Option func(*Store)

// WithPlaintext stores values as bare JSON, skipping encryption on write
// and decryption on read.
func WithPlaintext() Option {
	return func(s *Store) { s.plaintext = true }
}

// WithCipher replaces the default cipher derived from DefaultPassphrase.
func WithCipher(c *Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// New returns a Store over kv.
func New(kv KV, opts ...Option) (*Store, error) {
	s := &Store{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	if s.cipher == nil && !s.plaintext {
		c, err := NewCipher(DefaultPassphrase)
		if err != nil {
			return nil, err
		}
		s.cipher = c
	}
	return s, nil
}

// Put stores value under key. Marshal and backend errors are returned; an
// encryption failure is not, the value is then stored unencrypted.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", key, err)
	}
	stored := string(data)
	if !s.plaintext {
		stored, _ = s.cipher.Encrypt(stored)
	}
	if err := s.kv.SetItem(ctx, key, stored); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// Get loads the value under key into dst. It reports false when the key is
// absent or empty. A value that fails to decrypt is parsed as stored.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	stored, ok, err := s.kv.GetItem(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok || stored == "" {
		return false, nil
	}
	if !s.plaintext {
		stored, _ = s.cipher.Decrypt(stored)
	}
	if err := json.Unmarshal([]byte(stored), dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorruptValue, key, err)
	}
	return true, nil
}

// Raw returns the value under key exactly as the backend holds it.
func (s *Store) Raw(ctx context.Context, key string) (string, bool, error) {
	return s.kv.GetItem(ctx, key)
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.kv.RemoveItem(ctx, key); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Load is Get for a typed value; it returns nil when key is absent.
func Load[T any](ctx context.Context, s *Store, key string) (*T, error) {
	var v T
	ok, err := s.Get(ctx, key, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}
