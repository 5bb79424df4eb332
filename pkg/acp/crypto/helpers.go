// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/mr-tron/base58"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Base64 standard-encodes data.
func Base64(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

// Hex lowercase-hex-encodes data.
func Hex(data []byte) string { return hex.EncodeToString(data) }

// AES256GCMEncrypt seals plaintext under key (must be 32 bytes), returning
// nonce||ciphertext.
func AES256GCMEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "init aes cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "init gcm", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "generate nonce", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// AES256GCMDecrypt is the inverse of AES256GCMEncrypt.
func AES256GCMDecrypt(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "init aes cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "init gcm", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, acperrors.New(acperrors.CertError, "ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "gcm open", err)
	}
	return plaintext, nil
}

// Fingerprint returns a short base58 display fingerprint of a public key,
// derived the same way the pack's blockchain-facing packages base58-encode
// addresses — used only for display (AgentIdentity.Fingerprint, CLI output),
// never consulted by protocol logic.
func Fingerprint(pubKeyBytes []byte) string {
	return base58.Encode(SHA256(pubKeyBytes))
}
