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

// Package envelope implements the cryptographic envelope for the stash:
// scrypt password-to-key derivation and AES-256-GCM authenticated
// encryption of a single blob.
//
// Authentication failure during decryption is reported as ErrAuthentication
// regardless of cause. A wrong password and a tampered ciphertext are
// indistinguishable through this package.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	// SaltLength is the scrypt salt length in bytes.
	SaltLength = 16

	// KeyLength is the derived key length in bytes (AES-256).
	KeyLength = 32

	// NonceLength is the AES-GCM nonce length in bytes.
	NonceLength = 12

	// TagLength is the AES-GCM authentication tag length in bytes.
	// The tag is appended to the raw ciphertext.
	TagLength = 16
)

var (
	// ErrAuthentication indicates AEAD verification failed: wrong key or
	// tampered ciphertext.
	ErrAuthentication = errors.New("envelope: authentication failed")

	// ErrKDFParams indicates the scrypt cost parameters are out of range.
	ErrKDFParams = errors.New("envelope: invalid KDF parameters")

	// ErrResource indicates the KDF could not allocate the memory its
	// parameters require.
	ErrResource = errors.New("envelope: insufficient resources for KDF")

	// ErrKeyLength indicates a key of the wrong length was supplied.
	ErrKeyLength = errors.New("envelope: key must be 32 bytes")

	// ErrNonceLength indicates a nonce of the wrong length was supplied.
	ErrNonceLength = errors.New("envelope: nonce must be 12 bytes")
)

// KDFParams holds the scrypt cost parameters. They are persisted alongside
// the ciphertext so that files written under older defaults stay readable.
type KDFParams struct {
	N int
	R int
	P int
}

// DefaultKDFParams returns the current scrypt defaults (N=2^20, r=8, p=1).
func DefaultKDFParams() KDFParams {
	return KDFParams{N: 1 << 20, R: 8, P: 1}
}

// Validate checks the scrypt cost parameters against the ranges the
// underlying implementation accepts.
func (p KDFParams) Validate() error {
	if p.N <= 1 || p.N&(p.N-1) != 0 {
		return fmt.Errorf("%w: N must be a power of two > 1, got %d", ErrKDFParams, p.N)
	}
	if p.R <= 0 || p.P <= 0 {
		return fmt.Errorf("%w: r and p must be positive, got r=%d p=%d", ErrKDFParams, p.R, p.P)
	}
	// scrypt rejects r*p >= 2^30 and parameter combinations whose working
	// set exceeds the address space.
	if uint64(p.R)*uint64(p.P) >= 1<<30 {
		return fmt.Errorf("%w: r*p too large", ErrKDFParams)
	}
	return nil
}

// DeriveKey derives a 32-byte key from password and salt using scrypt with
// the given cost parameters. The parameters must match the persisted record
// verbatim; callers never substitute current defaults for stored values.
func DeriveKey(password, salt []byte, params KDFParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(salt) != SaltLength {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKDFParams, SaltLength, len(salt))
	}
	key, err := scrypt.Key(password, salt, params.N, params.R, params.P, KeyLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}
	return key, nil
}

// NewSalt returns a fresh random scrypt salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("envelope: salt generation: %w", err)
	}
	return salt, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// The returned ciphertext has the 16-byte authentication tag appended.
// Associated data is empty.
func Encrypt(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("envelope: nonce generation: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// Decrypt opens ciphertext (tag appended) with AES-256-GCM.
// Returns ErrAuthentication iff the tag does not verify.
func Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceLength {
		return nil, ErrNonceLength
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: GCM init: %w", err)
	}
	return aead, nil
}

// Zero overwrites b with zeros. The subtle copy keeps the compiler from
// eliding the wipe of a buffer that is about to become unreachable.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
