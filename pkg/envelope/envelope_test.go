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

package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Small scrypt parameters keep the test suite fast; production defaults
// are exercised only through DefaultKDFParams validation.
var testParams = KDFParams{N: 1 << 14, R: 8, P: 1}

func TestDeriveKey(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	key1, err := DeriveKey([]byte("hunter2"), salt, testParams)
	require.NoError(t, err)
	assert.Len(t, key1, KeyLength)

	// Same inputs, same key.
	key2, err := DeriveKey([]byte("hunter2"), salt, testParams)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// Different password, different key.
	key3, err := DeriveKey([]byte("hunter3"), salt, testParams)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	// Different salt, different key.
	salt2, err := NewSalt()
	require.NoError(t, err)
	key4, err := DeriveKey([]byte("hunter2"), salt2, testParams)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key4)
}

func TestDeriveKeyParamValidation(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	tests := []struct {
		name   string
		params KDFParams
	}{
		{"zero N", KDFParams{N: 0, R: 8, P: 1}},
		{"N not power of two", KDFParams{N: 1000, R: 8, P: 1}},
		{"N is one", KDFParams{N: 1, R: 8, P: 1}},
		{"zero r", KDFParams{N: 1 << 14, R: 0, P: 1}},
		{"zero p", KDFParams{N: 1 << 14, R: 8, P: 0}},
		{"r*p overflow", KDFParams{N: 1 << 14, R: 1 << 15, P: 1 << 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveKey([]byte("pw"), salt, tt.params)
			assert.ErrorIs(t, err, ErrKDFParams)
		})
	}

	t.Run("short salt", func(t *testing.T) {
		_, err := DeriveKey([]byte("pw"), []byte("short"), testParams)
		assert.ErrorIs(t, err, ErrKDFParams)
	})
}

func TestDefaultKDFParams(t *testing.T) {
	p := DefaultKDFParams()
	assert.Equal(t, 1<<20, p.N)
	assert.Equal(t, 8, p.R)
	assert.Equal(t, 1, p.P)
	assert.NoError(t, p.Validate())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeyLength)
	plaintext := []byte(`{"work/api-key":"s3cr3t"}`)

	nonce, ciphertext, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.Len(t, nonce, NonceLength)
	assert.Len(t, ciphertext, len(plaintext)+TagLength)

	got, err := Decrypt(key, nonce, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeyLength)
	nonce, ciphertext, err := Encrypt(key, []byte("data"))
	require.NoError(t, err)

	wrong := bytes.Repeat([]byte{0x43}, KeyLength)
	_, err = Decrypt(wrong, nonce, ciphertext)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDecryptTamperDetection(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeyLength)
	nonce, ciphertext, err := Encrypt(key, []byte("authentic data"))
	require.NoError(t, err)

	// Flipping any single bit in the ciphertext or nonce must fail
	// verification.
	for i := range ciphertext {
		tampered := append([]byte(nil), ciphertext...)
		tampered[i] ^= 0x01
		_, err := Decrypt(key, nonce, tampered)
		assert.ErrorIs(t, err, ErrAuthentication, "ciphertext byte %d", i)
	}
	for i := range nonce {
		tampered := append([]byte(nil), nonce...)
		tampered[i] ^= 0x01
		_, err := Decrypt(key, tampered, ciphertext)
		assert.ErrorIs(t, err, ErrAuthentication, "nonce byte %d", i)
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeyLength)
	nonce1, ct1, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)
	nonce2, ct2, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, nonce1, nonce2)
	assert.NotEqual(t, ct1, ct2)
}

func TestKeyAndNonceLengthChecks(t *testing.T) {
	_, _, err := Encrypt([]byte("short"), []byte("data"))
	assert.ErrorIs(t, err, ErrKeyLength)

	key := bytes.Repeat([]byte{0x42}, KeyLength)
	_, err = Decrypt(key, []byte("badnonce"), []byte("ciphertext"))
	assert.ErrorIs(t, err, ErrNonceLength)
}

func TestZero(t *testing.T) {
	buf := []byte("sensitive key material")
	Zero(buf)
	assert.Equal(t, make([]byte, len(buf)), buf)

	// Zero on empty and nil slices is a no-op.
	Zero(nil)
	Zero([]byte{})
}
