package store

import (
	"context"
	"encoding/base64"
	"fmt"

	"investdesk/internal/security"
)

// SaltKey holds the vault salt. It is stored unsealed.
const SaltKey = "vault.salt"

// Sealed encrypts every value written through it with a passphrase-derived
// key. Keys stay in the clear.
type Sealed struct {
	inner KVStore
	vault *security.Vault
}

// NewSealed wraps inner, creating and persisting a salt on first use.
func NewSealed(ctx context.Context, inner KVStore, passphrase string) (*Sealed, error) {
	encoded, ok, err := inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault salt: %w", err)
	}

	var salt []byte
	if ok {
		salt, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode vault salt: %w", err)
		}
	} else {
		salt, err = security.NewSalt()
		if err != nil {
			return nil, err
		}
		if err := inner.Update(ctx, map[string]string{SaltKey: base64.StdEncoding.EncodeToString(salt)}, nil); err != nil {
			return nil, fmt.Errorf("failed to save vault salt: %w", err)
		}
	}

	vault, err := security.NewVault(passphrase, salt)
	if err != nil {
		return nil, err
	}

	return &Sealed{inner: inner, vault: vault}, nil
}

// Get returns the opened value of key.
func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.vault.Open(v)
	if err != nil {
		return "", false, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return plain, true, nil
}

// GetMany returns the opened values of the present keys.
func (s *Sealed) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	raw, err := s.inner.GetMany(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		plain, err := s.vault.Open(v)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", k, err)
		}
		raw[k] = plain
	}
	return raw, nil
}

// Update seals set and forwards the whole change as one transaction.
func (s *Sealed) Update(ctx context.Context, set map[string]string, del []string) error {
	sealed := make(map[string]string, len(set))
	for k, v := range set {
		enc, err := s.vault.Seal(v)
		if err != nil {
			return fmt.Errorf("failed to seal %s: %w", k, err)
		}
		sealed[k] = enc
	}
	return s.inner.Update(ctx, sealed, del)
}

// Close closes the wrapped store.
func (s *Sealed) Close() error {
	return s.inner.Close()
}

var _ KVStore = (*Sealed)(nil)
