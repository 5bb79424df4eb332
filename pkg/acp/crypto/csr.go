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
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// GenerateCSR builds a PKCS#10 certificate signing request for commonName
// (the AID), signed with keyPEM's private key, subject
// `/C=CN/ST=../L=../O=../CN=<aid>` and SHA256withECDSA.
func GenerateCSR(commonName string, keyPEM []byte) ([]byte, error) {
	kp, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, err
	}
	priv, ok := kp.PrivateKey().(*ecdsa.PrivateKey)
	if !ok {
		return nil, acperrors.New(acperrors.CertError, "CSR signing key must be ECDSA")
	}

	template := &x509.CertificateRequest{
		Subject: pkix.Name{
			Country:            []string{"CN"},
			Province:           []string{"."},
			Locality:           []string{"."},
			Organization:       []string{"."},
			CommonName:         commonName,
		},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, priv)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "create certificate request", err)
	}

	block := &pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// SignNonce signs nonce with keyPEM's private key and hex-encodes the
// result, per spec.md §4.3's round-2 sign-in payload.
func SignNonce(nonce string, keyPEM []byte) (string, error) {
	kp, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return "", err
	}
	sig, err := kp.Sign([]byte(nonce))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}
