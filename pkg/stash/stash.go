// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-stash.
//
// go-stash is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package stash implements the encrypted secret store: the versioned
// on-disk record, its atomic persistence, and the password operations
// that derive keys and (de)serialize the secret map.
//
// Successful AEAD verification is the sole authoritative test of a correct
// password; no password hash is stored separately.
package stash

import (
	"encoding/json"
	"fmt"

	"github.com/jeremyhahn/go-stash/pkg/envelope"
)

// Stash is the data access layer for the encrypted secret store. It holds
// no session state; the daemon owns the derived key and decrypted map.
type Stash struct {
	store *Store
}

// New creates a Stash backed by the file at path.
func New(path string) *Stash {
	return &Stash{store: NewStore(path)}
}

// Store exposes the underlying record store.
func (s *Stash) Store() *Store {
	return s.store
}

// Exists reports whether the stash file exists.
func (s *Stash) Exists() bool {
	return s.store.Exists()
}

// UnlockResult carries everything a session needs after a successful
// unlock: the derived key, the salt and parameters it was derived under
// (persist reuses them to skip a derivation), and the decrypted secrets.
type UnlockResult struct {
	Key     []byte
	Salt    []byte
	Params  envelope.KDFParams
	Secrets map[string]string
}

// Init creates a new stash encrypted under password with an empty secret
// map and the current default KDF parameters.
func (s *Stash) Init(password []byte) error {
	if s.store.Exists() {
		return ErrAlreadyInitialized
	}
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	key, salt, params, err := deriveFresh(password, envelope.DefaultKDFParams())
	if err != nil {
		return err
	}
	defer envelope.Zero(key)
	return s.encryptAndWrite(map[string]string{}, key, salt, params)
}

// Unlock loads the record, derives the key with the persisted parameters
// and salt, and decrypts the secret map. The stored cost parameters are
// used verbatim even when they differ from current defaults.
func (s *Stash) Unlock(password []byte) (*UnlockResult, error) {
	rec, err := s.store.LoadRecord()
	if err != nil {
		return nil, err
	}
	return s.UnlockRecord(rec, password)
}

// UnlockRecord derives and decrypts against an already loaded record.
// The daemon uses this to run the expensive derivation outside its session
// mutex and revalidate the record before applying the transition.
func (s *Stash) UnlockRecord(rec *Record, password []byte) (*UnlockResult, error) {
	key, err := envelope.DeriveKey(password, rec.Salt, rec.Params)
	if err != nil {
		return nil, err
	}
	plaintext, err := envelope.Decrypt(key, rec.Nonce, rec.Ciphertext)
	if err != nil {
		envelope.Zero(key)
		return nil, ErrWrongPassword
	}
	secrets, err := DecodeSecrets(plaintext)
	envelope.Zero(plaintext)
	if err != nil {
		envelope.Zero(key)
		return nil, err
	}
	return &UnlockResult{
		Key:     key,
		Salt:    append([]byte(nil), rec.Salt...),
		Params:  rec.Params,
		Secrets: secrets,
	}, nil
}

// Persist re-encrypts the secret map under a key freshly derived from
// password with a new salt and writes the record atomically. Returns the
// new key and salt so a caller can keep using them.
func (s *Stash) Persist(secrets map[string]string, password []byte, params envelope.KDFParams) (key, salt []byte, err error) {
	key, salt, params, err = deriveFresh(password, params)
	if err != nil {
		return nil, nil, err
	}
	if err := s.encryptAndWrite(secrets, key, salt, params); err != nil {
		envelope.Zero(key)
		return nil, nil, err
	}
	return key, salt, nil
}

// PersistWithKey re-encrypts the secret map under an existing key and
// writes the record atomically, persisting the salt and parameters the key
// was derived under. The nonce is always fresh; this path skips the scrypt
// call on every add and delete while unlocked.
func (s *Stash) PersistWithKey(secrets map[string]string, key, salt []byte, params envelope.KDFParams) error {
	return s.encryptAndWrite(secrets, key, salt, params)
}

func (s *Stash) encryptAndWrite(secrets map[string]string, key, salt []byte, params envelope.KDFParams) error {
	plaintext, err := EncodeSecrets(secrets)
	if err != nil {
		return err
	}
	nonce, ciphertext, err := envelope.Encrypt(key, plaintext)
	envelope.Zero(plaintext)
	if err != nil {
		return err
	}
	return s.store.WriteRecord(&Record{
		Params:     params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
}

func deriveFresh(password []byte, params envelope.KDFParams) (key, salt []byte, p envelope.KDFParams, err error) {
	salt, err = envelope.NewSalt()
	if err != nil {
		return nil, nil, params, err
	}
	key, err = envelope.DeriveKey(password, salt, params)
	if err != nil {
		return nil, nil, params, err
	}
	return key, salt, params, nil
}

// EncodeSecrets serializes the secret map as UTF-8 JSON. Keys are emitted
// in lexicographic order so successive writes of the same map produce the
// same plaintext.
func EncodeSecrets(secrets map[string]string) ([]byte, error) {
	data, err := json.Marshal(secrets)
	if err != nil {
		return nil, fmt.Errorf("stash: encode secrets: %w", err)
	}
	return data, nil
}

// DecodeSecrets parses the decrypted plaintext back into the secret map.
// The reader does not rely on key ordering.
func DecodeSecrets(plaintext []byte) (map[string]string, error) {
	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("%w: decrypted payload is not a valid secret map", ErrCorrupt)
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return secrets, nil
}
