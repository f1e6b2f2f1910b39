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
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/jeremyhahn/go-stash/pkg/envelope"
)

const (
	// FormatVersion is the on-disk record version this implementation
	// reads and writes. Other values are refused.
	FormatVersion = 1

	// KDFAlgorithm is the only supported key derivation algorithm.
	KDFAlgorithm = "scrypt"

	// EncryptionAlgorithm is the only supported AEAD algorithm.
	EncryptionAlgorithm = "aes-256-gcm"
)

// Record is the decoded on-disk stash record: the KDF parameters and salt
// under which the key was derived, and the AEAD nonce and ciphertext
// (authentication tag appended). The plaintext never appears here.
type Record struct {
	Params     envelope.KDFParams
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// wireRecord is the JSON shape of the stash file. Binary fields are base64.
type wireRecord struct {
	Version int `json:"version"`
	KDF     struct {
		Algorithm string `json:"algorithm"`
		Salt      string `json:"salt"`
		N         int    `json:"n"`
		R         int    `json:"r"`
		P         int    `json:"p"`
	} `json:"kdf"`
	Encryption struct {
		Algorithm  string `json:"algorithm"`
		Nonce      string `json:"nonce"`
		Ciphertext string `json:"ciphertext"`
	} `json:"encryption"`
}

// EncodeRecord serializes a record to the on-disk JSON form.
func EncodeRecord(rec *Record) ([]byte, error) {
	var w wireRecord
	w.Version = FormatVersion
	w.KDF.Algorithm = KDFAlgorithm
	w.KDF.Salt = base64.StdEncoding.EncodeToString(rec.Salt)
	w.KDF.N = rec.Params.N
	w.KDF.R = rec.Params.R
	w.KDF.P = rec.Params.P
	w.Encryption.Algorithm = EncryptionAlgorithm
	w.Encryption.Nonce = base64.StdEncoding.EncodeToString(rec.Nonce)
	w.Encryption.Ciphertext = base64.StdEncoding.EncodeToString(rec.Ciphertext)

	data, err := json.MarshalIndent(&w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("stash: encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseRecord decodes the on-disk JSON form, validating version, algorithm
// names, and base64 fields. All failures map to ErrCorrupt.
func ParseRecord(data []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if w.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, w.Version)
	}
	if w.KDF.Algorithm != KDFAlgorithm {
		return nil, fmt.Errorf("%w: unsupported KDF algorithm %q", ErrCorrupt, w.KDF.Algorithm)
	}
	if w.Encryption.Algorithm != EncryptionAlgorithm {
		return nil, fmt.Errorf("%w: unsupported encryption algorithm %q", ErrCorrupt, w.Encryption.Algorithm)
	}
	if w.KDF.Salt == "" || w.Encryption.Nonce == "" || w.Encryption.Ciphertext == "" {
		return nil, fmt.Errorf("%w: missing field", ErrCorrupt)
	}

	salt, err := base64.StdEncoding.DecodeString(w.KDF.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt encoding", ErrCorrupt)
	}
	nonce, err := base64.StdEncoding.DecodeString(w.Encryption.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce encoding", ErrCorrupt)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(w.Encryption.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding", ErrCorrupt)
	}

	return &Record{
		Params:     envelope.KDFParams{N: w.KDF.N, R: w.KDF.R, P: w.KDF.P},
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}
