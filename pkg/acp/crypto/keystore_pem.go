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
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

const (
	pbkdf2Iterations = 200_000
	pbkdf2KeyLen     = 32 // AES-256
	pbkdf2SaltLen    = 16
	aesBlockSize     = aes.BlockSize
)

// encryptedKeyBlockType is the PEM block type used for an AES-256-CBC
// wrapped PKCS8 private key: Bytes = salt || iv || ciphertext.
const encryptedKeyBlockType = "ENCRYPTED PRIVATE KEY"

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}

func pkcs7Pad(data []byte) []byte {
	padLen := aesBlockSize - len(data)%aesBlockSize
	pad := make([]byte, padLen)
	for i := range pad {
		pad[i] = byte(padLen)
	}
	return append(data, pad...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aesBlockSize != 0 {
		return nil, acperrors.New(acperrors.CertError, "invalid padded ciphertext length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aesBlockSize || padLen > len(data) {
		return nil, acperrors.New(acperrors.CertError, "invalid pkcs7 padding")
	}
	return data[:len(data)-padLen], nil
}

// SavePrivateKeyPEM encrypts the unencrypted PKCS8 keyPEM with AES-256-CBC
// under a key derived from password via PBKDF2, and writes it atomically
// (write-temp + rename) to path.
func SavePrivateKeyPEM(path string, keyPEM []byte, password string) error {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return acperrors.New(acperrors.CertError, "failed to decode private key PEM")
	}

	salt := make([]byte, pbkdf2SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return acperrors.Wrap(acperrors.CertError, "generate salt", err)
	}
	key := deriveKey(password, salt)

	iv := make([]byte, aesBlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return acperrors.Wrap(acperrors.CertError, "generate iv", err)
	}

	cipherBlock, err := aes.NewCipher(key)
	if err != nil {
		return acperrors.Wrap(acperrors.CertError, "init aes cipher", err)
	}

	plaintext := pkcs7Pad(block.Bytes)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(cipherBlock, iv).CryptBlocks(ciphertext, plaintext)

	envelope := make([]byte, 0, len(salt)+len(iv)+len(ciphertext))
	envelope = append(envelope, salt...)
	envelope = append(envelope, iv...)
	envelope = append(envelope, ciphertext...)

	out := pem.EncodeToMemory(&pem.Block{Type: encryptedKeyBlockType, Bytes: envelope})
	return atomicWriteFile(path, out, 0o600)
}

// LoadPrivateKeyPEM is the inverse of SavePrivateKeyPEM.
func LoadPrivateKeyPEM(path string, password string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.FileError, "read private key file", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil || block.Type != encryptedKeyBlockType {
		return nil, acperrors.New(acperrors.CertError, "not an encrypted private key PEM")
	}
	if len(block.Bytes) < pbkdf2SaltLen+aesBlockSize {
		return nil, acperrors.New(acperrors.CertError, "encrypted key envelope too short")
	}

	salt := block.Bytes[:pbkdf2SaltLen]
	iv := block.Bytes[pbkdf2SaltLen : pbkdf2SaltLen+aesBlockSize]
	ciphertext := block.Bytes[pbkdf2SaltLen+aesBlockSize:]
	if len(ciphertext)%aesBlockSize != 0 {
		return nil, acperrors.New(acperrors.CertError, "ciphertext is not block-aligned")
	}

	key := deriveKey(password, salt)
	cipherBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "init aes cipher", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(cipherBlock, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key (wrong password?): %w", err)
	}
	if _, err := x509.ParsePKCS8PrivateKey(unpadded); err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "decrypt private key (wrong password?)", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: unpadded}), nil
}

// atomicWriteFile writes data to a temp file in the same directory as path
// then renames it into place, so readers never observe a partial write.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return acperrors.Wrap(acperrors.FileError, "create parent directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return acperrors.Wrap(acperrors.FileError, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return acperrors.Wrap(acperrors.FileError, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return acperrors.Wrap(acperrors.FileError, "close temp file", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return acperrors.Wrap(acperrors.FileError, "chmod temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return acperrors.Wrap(acperrors.FileError, "rename temp file into place", err)
	}
	return nil
}
