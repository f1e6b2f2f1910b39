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

package stash

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-stash/pkg/envelope"
)

var testParams = envelope.KDFParams{N: 1 << 14, R: 8, P: 1}

func newTestStash(t *testing.T) *Stash {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "stash.json"))
}

// initTest creates a stash with cheap KDF parameters so the suite stays fast.
func initTest(t *testing.T, s *Stash, password string) *UnlockResult {
	t.Helper()
	_, _, err := s.Persist(map[string]string{}, []byte(password), testParams)
	require.NoError(t, err)
	res, err := s.Unlock([]byte(password))
	require.NoError(t, err)
	return res
}

func TestInit(t *testing.T) {
	t.Run("creates stash with empty map", func(t *testing.T) {
		s := newTestStash(t)
		// Init derives with the full-cost defaults, too slow for the
		// suite; Persist with cheap params writes the same empty-map
		// record that Init writes.
		_, _, err := s.Persist(map[string]string{}, []byte("hunter2"), testParams)
		require.NoError(t, err)
		assert.True(t, s.Exists())

		res, err := s.Unlock([]byte("hunter2"))
		require.NoError(t, err)
		assert.Empty(t, res.Secrets)
	})

	t.Run("refuses existing stash", func(t *testing.T) {
		s := newTestStash(t)
		initTest(t, s, "hunter2")
		assert.ErrorIs(t, s.Init([]byte("hunter2")), ErrAlreadyInitialized)
	})

	t.Run("refuses empty password", func(t *testing.T) {
		s := newTestStash(t)
		assert.ErrorIs(t, s.Init(nil), ErrEmptyPassword)
	})
}

func TestUnlockRoundTrip(t *testing.T) {
	s := newTestStash(t)
	res := initTest(t, s, "hunter2")

	secrets := map[string]string{
		"work/api-key": "abc",
		"home/wifi":    "pa55",
	}
	require.NoError(t, s.PersistWithKey(secrets, res.Key, res.Salt, res.Params))

	got, err := s.Unlock([]byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, secrets, got.Secrets)
	assert.Equal(t, res.Salt, got.Salt, "PersistWithKey must keep the salt")
}

func TestUnlockWrongPassword(t *testing.T) {
	s := newTestStash(t)
	initTest(t, s, "hunter2")

	before, err := os.ReadFile(s.Store().Path())
	require.NoError(t, err)

	_, err = s.Unlock([]byte("hunter3"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	// No state mutation is observable.
	after, err := os.ReadFile(s.Store().Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUnlockMissingFile(t *testing.T) {
	s := newTestStash(t)
	_, err := s.Unlock([]byte("hunter2"))
	assert.ErrorIs(t, err, ErrNoStash)
}

func TestUnlockUsesPersistedParams(t *testing.T) {
	s := newTestStash(t)
	odd := envelope.KDFParams{N: 1 << 13, R: 4, P: 2}
	_, _, err := s.Persist(map[string]string{"k": "v"}, []byte("pw"), odd)
	require.NoError(t, err)

	rec, err := s.Store().LoadRecord()
	require.NoError(t, err)
	assert.Equal(t, odd, rec.Params, "cost parameters persist verbatim")

	res, err := s.Unlock([]byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, odd, res.Params)
	assert.Equal(t, "v", res.Secrets["k"])
}

func TestTamperDetection(t *testing.T) {
	s := newTestStash(t)
	res := initTest(t, s, "hunter2")
	require.NoError(t, s.PersistWithKey(map[string]string{"t": "abc"}, res.Key, res.Salt, res.Params))

	flip := func(t *testing.T, mutate func(rec *Record)) {
		t.Helper()
		rec, err := s.Store().LoadRecord()
		require.NoError(t, err)
		mutate(rec)
		require.NoError(t, s.Store().WriteRecord(rec))
		_, err = s.Unlock([]byte("hunter2"))
		assert.ErrorIs(t, err, ErrWrongPassword)
	}

	t.Run("ciphertext bit flip", func(t *testing.T) {
		flip(t, func(rec *Record) { rec.Ciphertext[0] ^= 0x01 })
	})
	t.Run("nonce bit flip", func(t *testing.T) {
		flip(t, func(rec *Record) { rec.Nonce[0] ^= 0x01 })
	})
}

func TestFreshSaltAndNonce(t *testing.T) {
	s := newTestStash(t)
	secrets := map[string]string{"a": "1"}

	_, _, err := s.Persist(secrets, []byte("pw"), testParams)
	require.NoError(t, err)
	rec1, err := s.Store().LoadRecord()
	require.NoError(t, err)

	_, _, err = s.Persist(secrets, []byte("pw"), testParams)
	require.NoError(t, err)
	rec2, err := s.Store().LoadRecord()
	require.NoError(t, err)

	assert.NotEqual(t, rec1.Salt, rec2.Salt)
	assert.NotEqual(t, rec1.Nonce, rec2.Nonce)
	assert.NotEqual(t, rec1.Ciphertext, rec2.Ciphertext)
}

func TestPersistWithKeyFreshNonce(t *testing.T) {
	s := newTestStash(t)
	res := initTest(t, s, "pw")
	secrets := map[string]string{"a": "1"}

	require.NoError(t, s.PersistWithKey(secrets, res.Key, res.Salt, res.Params))
	rec1, err := s.Store().LoadRecord()
	require.NoError(t, err)

	require.NoError(t, s.PersistWithKey(secrets, res.Key, res.Salt, res.Params))
	rec2, err := s.Store().LoadRecord()
	require.NoError(t, err)

	assert.Equal(t, rec1.Salt, rec2.Salt, "salt is reused with the key")
	assert.NotEqual(t, rec1.Nonce, rec2.Nonce, "nonce is never reused")
}

func TestCorruptFiles(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not JSON", "not json at all"},
		{"wrong version", `{"version":2,"kdf":{"algorithm":"scrypt","salt":"AAAA","n":16384,"r":8,"p":1},"encryption":{"algorithm":"aes-256-gcm","nonce":"AAAA","ciphertext":"AAAA"}}`},
		{"missing version", `{"kdf":{"algorithm":"scrypt","salt":"AAAA","n":16384,"r":8,"p":1},"encryption":{"algorithm":"aes-256-gcm","nonce":"AAAA","ciphertext":"AAAA"}}`},
		{"bad base64", `{"version":1,"kdf":{"algorithm":"scrypt","salt":"!!!","n":16384,"r":8,"p":1},"encryption":{"algorithm":"aes-256-gcm","nonce":"AAAA","ciphertext":"AAAA"}}`},
		{"unknown kdf", `{"version":1,"kdf":{"algorithm":"argon2","salt":"AAAA","n":16384,"r":8,"p":1},"encryption":{"algorithm":"aes-256-gcm","nonce":"AAAA","ciphertext":"AAAA"}}`},
		{"unknown cipher", `{"version":1,"kdf":{"algorithm":"scrypt","salt":"AAAA","n":16384,"r":8,"p":1},"encryption":{"algorithm":"chacha20","nonce":"AAAA","ciphertext":"AAAA"}}`},
		{"missing field", `{"version":1,"kdf":{"algorithm":"scrypt","n":16384,"r":8,"p":1},"encryption":{"algorithm":"aes-256-gcm","nonce":"AAAA","ciphertext":"AAAA"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStash(t)
			require.NoError(t, os.WriteFile(s.Store().Path(), []byte(tt.data), 0600))
			_, err := s.Store().LoadRecord()
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestAtomicWriteCleansStaleTemp(t *testing.T) {
	s := newTestStash(t)
	tmp := s.Store().Path() + ".tmp"
	require.NoError(t, os.MkdirAll(filepath.Dir(tmp), 0700))
	require.NoError(t, os.WriteFile(tmp, []byte("leftover from aborted write"), 0600))

	initTest(t, s, "pw")

	_, err := os.Stat(tmp)
	assert.True(t, os.IsNotExist(err), "stale temp file must be removed")
}

func TestStashFilePermissions(t *testing.T) {
	s := newTestStash(t)
	initTest(t, s, "pw")

	info, err := os.Stat(s.Store().Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEncodeSecretsDeterministic(t *testing.T) {
	secrets := map[string]string{"b": "2", "a": "1", "c": "3"}
	data1, err := EncodeSecrets(secrets)
	require.NoError(t, err)
	data2, err := EncodeSecrets(secrets)
	require.NoError(t, err)
	assert.Equal(t, data1, data2)

	// Keys come out sorted.
	var ordered json.RawMessage
	require.NoError(t, json.Unmarshal(data1, &ordered))
	assert.Equal(t, `{"a":"1","b":"2","c":"3"}`, string(data1))
}

func TestDecodeSecretsCorrupt(t *testing.T) {
	_, err := DecodeSecrets([]byte("not a map"))
	assert.ErrorIs(t, err, ErrCorrupt)

	secrets, err := DecodeSecrets([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, secrets)
}

func TestValidateKey(t *testing.T) {
	valid := []string{"work/api-key", "a", "x y", "path/to/deep/key", "key.with.dots"}
	for _, k := range valid {
		assert.NoError(t, ValidateKey(k), "key %q", k)
	}

	invalid := []string{
		"",
		" leading",
		"trailing ",
		"nul\x00byte",
		"\ttabbed",
		string(make([]byte, MaxKeyLength+1)),
	}
	for _, k := range invalid {
		assert.ErrorIs(t, ValidateKey(k), ErrInvalidKey, "key %q", k)
	}
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]string{"b": "", "a": "", "c": ""})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Empty(t, SortedKeys(nil))
}
