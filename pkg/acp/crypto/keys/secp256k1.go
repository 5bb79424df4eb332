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

// Package keys adds key types beyond the SDK's default P-384 AID key: the
// pluggable Secp256k1 alternative a group authority may require for
// cross-AP checksum anchoring (SPEC_FULL.md §2).
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	acpcrypto "github.com/acp-project/acp-go/pkg/acp/crypto"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

type secp256k1KeyPair struct {
	privateKey *secp256k1.PrivateKey
	publicKey  *secp256k1.PublicKey
	id         string
}

// GenerateSecp256k1KeyPair generates a new Secp256k1 key pair, signing
// Ethereum-style with a Keccak256 message hash.
func GenerateSecp256k1KeyPair() (acpcrypto.KeyPair, error) {
	privateKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "generate secp256k1 key", err)
	}

	publicKey := privateKey.PubKey()
	hash := sha256.Sum256(publicKey.SerializeCompressed())
	id := hex.EncodeToString(hash[:8])

	return &secp256k1KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

func (kp *secp256k1KeyPair) PublicKey() crypto.PublicKey   { return kp.publicKey.ToECDSA() }
func (kp *secp256k1KeyPair) PrivateKey() crypto.PrivateKey { return kp.privateKey.ToECDSA() }
func (kp *secp256k1KeyPair) Type() acpcrypto.KeyType       { return acpcrypto.KeyTypeSecp256k1 }
func (kp *secp256k1KeyPair) ID() string                    { return kp.id }

// Sign signs message Ethereum-style: Keccak256 hash, then a 65-byte
// signature with trailing recovery byte.
func (kp *secp256k1KeyPair) Sign(message []byte) ([]byte, error) {
	privateKey := kp.privateKey.ToECDSA()
	hash := ethcrypto.Keccak256(message)

	signature, err := ethcrypto.Sign(hash, privateKey)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "sign message", err)
	}
	return signature, nil
}

func (kp *secp256k1KeyPair) Verify(message, signature []byte) error {
	hash := ethcrypto.Keccak256(message)

	if len(signature) == 65 {
		signature = signature[:64]
	}

	r, s, err := deserializeSignature(signature)
	if err != nil {
		return err
	}

	if !ecdsa.Verify(kp.publicKey.ToECDSA(), hash, r, s) {
		return acperrors.New(acperrors.InvalidSignature, "signature verification failed")
	}
	return nil
}

func deserializeSignature(data []byte) (*big.Int, *big.Int, error) {
	if len(data) != 64 {
		return nil, nil, acperrors.New(acperrors.InvalidSignature, "expected 64-byte raw signature")
	}
	r := new(big.Int).SetBytes(data[:32])
	s := new(big.Int).SetBytes(data[32:])
	return r, s, nil
}
