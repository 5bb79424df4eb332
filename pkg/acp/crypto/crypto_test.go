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

package crypto_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	acpcrypto "github.com/acp-project/acp-go/pkg/acp/crypto"
	"github.com/acp-project/acp-go/pkg/acp/crypto/keys"
)

func TestGenerateP384Key_SignVerify(t *testing.T) {
	pemBytes, kp, err := acpcrypto.GenerateP384Key()
	require.NoError(t, err)
	require.NotNil(t, kp)
	assert.Equal(t, acpcrypto.KeyTypeP384, kp.Type())
	assert.NotEmpty(t, pemBytes)
	assert.NotEmpty(t, kp.ID())

	nonce := []byte("server-issued-nonce")
	sig, err := kp.Sign(nonce)
	require.NoError(t, err)
	assert.Len(t, sig, 96)

	err = kp.Verify(nonce, sig)
	assert.NoError(t, err)
}

func TestP384_VerifyRejectsTamperedMessage(t *testing.T) {
	_, kp, err := acpcrypto.GenerateP384Key()
	require.NoError(t, err)

	sig, err := kp.Sign([]byte("original"))
	require.NoError(t, err)

	err = kp.Verify([]byte("tampered"), sig)
	assert.Error(t, err)
}

func TestParsePrivateKeyPEM_RoundTrip(t *testing.T) {
	pemBytes, kp, err := acpcrypto.GenerateP384Key()
	require.NoError(t, err)

	reloaded, err := acpcrypto.ParsePrivateKeyPEM(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, kp.ID(), reloaded.ID())

	sig, err := reloaded.Sign([]byte("hello"))
	require.NoError(t, err)
	assert.NoError(t, kp.Verify([]byte("hello"), sig))
}

func TestGenerateCSR(t *testing.T) {
	pemBytes, _, err := acpcrypto.GenerateP384Key()
	require.NoError(t, err)

	csr, err := acpcrypto.GenerateCSR("aid:acp:test-agent-001", pemBytes)
	require.NoError(t, err)
	assert.Contains(t, string(csr), "CERTIFICATE REQUEST")
}

func TestSignNonce(t *testing.T) {
	pemBytes, kp, err := acpcrypto.GenerateP384Key()
	require.NoError(t, err)

	sigHex, err := acpcrypto.SignNonce("abc123", pemBytes)
	require.NoError(t, err)
	assert.NotEmpty(t, sigHex)

	sigBytes, err := hex.DecodeString(sigHex)
	require.NoError(t, err)
	assert.NoError(t, kp.Verify([]byte("abc123"), sigBytes))
}

func TestSaveLoadPrivateKeyPEM_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	pemBytes, kp, err := acpcrypto.GenerateP384Key()
	require.NoError(t, err)

	path := dir + "/agent.key"
	err = acpcrypto.SavePrivateKeyPEM(path, pemBytes, "correct horse battery staple")
	require.NoError(t, err)

	loaded, err := acpcrypto.LoadPrivateKeyPEM(path, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, pemBytes, loaded)

	_, err = acpcrypto.LoadPrivateKeyPEM(path, "wrong password")
	assert.Error(t, err)

	reloaded, err := acpcrypto.ParsePrivateKeyPEM(loaded)
	require.NoError(t, err)
	assert.Equal(t, kp.ID(), reloaded.ID())
}

func TestAES256GCM_RoundTrip(t *testing.T) {
	key := acpcrypto.SHA256([]byte("a passphrase derived key of any length"))
	plaintext := []byte("group session payload")

	ciphertext, err := acpcrypto.AES256GCMEncrypt(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := acpcrypto.AES256GCMDecrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestFingerprint_Deterministic(t *testing.T) {
	_, kp, err := acpcrypto.GenerateP384Key()
	require.NoError(t, err)

	pubBytes, err := acpcrypto.PublicKeyBytes(kp)
	require.NoError(t, err)

	fp1 := acpcrypto.Fingerprint(pubBytes)
	fp2 := acpcrypto.Fingerprint(pubBytes)
	assert.Equal(t, fp1, fp2)
	assert.NotEmpty(t, fp1)
}

func TestSecp256k1_GenerateSignVerify(t *testing.T) {
	kp, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	assert.Equal(t, acpcrypto.KeyTypeSecp256k1, kp.Type())

	msg := []byte("checksum anchor payload")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	assert.NoError(t, kp.Verify(msg, sig))
}

func TestKeyRegistry_Generate(t *testing.T) {
	kp, err := keys.Generate(acpcrypto.KeyTypeP384)
	require.NoError(t, err)
	assert.Equal(t, acpcrypto.KeyTypeP384, kp.Type())

	kp, err = keys.Generate(acpcrypto.KeyTypeSecp256k1)
	require.NoError(t, err)
	assert.Equal(t, acpcrypto.KeyTypeSecp256k1, kp.Type())

	_, err = keys.Generate(acpcrypto.KeyType("unknown"))
	assert.Error(t, err)
}

func TestChecksum_Deterministic(t *testing.T) {
	data := []byte("group message body")
	assert.Equal(t, acpcrypto.HexChecksum(data), acpcrypto.HexChecksum(data))
	assert.NotEqual(t, acpcrypto.HexChecksum(data), acpcrypto.HexChecksum([]byte("different body")))
}
