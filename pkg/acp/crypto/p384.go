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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

type p384KeyPair struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	id         string
}

// GenerateP384Key generates a new ECDSA P-384 key pair and returns the
// private key PEM-encoded (PKCS8, unencrypted — callers persist it through
// SavePrivateKeyPEM for at-rest encryption).
func GenerateP384Key() (pemBytes []byte, kp KeyPair, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, nil, acperrors.Wrap(acperrors.CertError, "generate p384 key", err)
	}

	derBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, acperrors.Wrap(acperrors.CertError, "marshal pkcs8 private key", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: derBytes}
	return pem.EncodeToMemory(block), newP384KeyPair(privateKey), nil
}

func newP384KeyPair(privateKey *ecdsa.PrivateKey) *p384KeyPair {
	return &p384KeyPair{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		id:         p384KeyID(&privateKey.PublicKey),
	}
}

func p384KeyID(pub *ecdsa.PublicKey) string {
	pubKeyBytes := make([]byte, 1+48+48)
	pubKeyBytes[0] = 0x04
	pub.X.FillBytes(pubKeyBytes[1:49])
	pub.Y.FillBytes(pubKeyBytes[49:97])
	hash := sha256.Sum256(pubKeyBytes)
	return hex.EncodeToString(hash[:8])
}

// ParsePrivateKeyPEM decodes an unencrypted PKCS8 PEM block holding a P-384
// private key into a KeyPair.
func ParsePrivateKeyPEM(pemBytes []byte) (KeyPair, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, acperrors.New(acperrors.CertError, "failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "parse pkcs8 private key", err)
	}

	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, acperrors.New(acperrors.CertError, fmt.Sprintf("unsupported private key type %T", key))
	}
	return newP384KeyPair(priv), nil
}

func (kp *p384KeyPair) PublicKey() crypto.PublicKey   { return kp.publicKey }
func (kp *p384KeyPair) PrivateKey() crypto.PrivateKey { return kp.privateKey }
func (kp *p384KeyPair) Type() KeyType                 { return KeyTypeP384 }
func (kp *p384KeyPair) ID() string                    { return kp.id }

// Sign signs message with ECDSA/SHA-256, returning a 96-byte raw signature
// (48 bytes R + 48 bytes S).
func (kp *p384KeyPair) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, kp.privateKey, hash[:])
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "sign message", err)
	}

	signature := make([]byte, 96)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(signature[48-len(rBytes):48], rBytes)
	copy(signature[96-len(sBytes):96], sBytes)
	return signature, nil
}

func (kp *p384KeyPair) Verify(message, signature []byte) error {
	hash := sha256.Sum256(message)
	r, s, err := deserializeP384Signature(signature)
	if err != nil {
		return err
	}
	if !ecdsa.Verify(kp.publicKey, hash[:], r, s) {
		return acperrors.New(acperrors.InvalidSignature, "signature verification failed")
	}
	return nil
}

func deserializeP384Signature(data []byte) (*big.Int, *big.Int, error) {
	if len(data) != 96 {
		return nil, nil, acperrors.New(acperrors.InvalidSignature, "expected 96-byte raw signature")
	}
	r := new(big.Int).SetBytes(data[:48])
	s := new(big.Int).SetBytes(data[48:])
	return r, s, nil
}
