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

// Package crypto implements the primitives an AID's identity rests on:
// P-384 keygen, CSR construction, nonce signing and encrypted key I/O.
package crypto

import "crypto"

// KeyType identifies the algorithm family backing an AID's key pair.
type KeyType string

const (
	KeyTypeP384      KeyType = "P384"
	KeyTypeSecp256k1 KeyType = "Secp256k1"
)

// KeyPair is the minimal signing/identity surface every key type exposes,
// regardless of which curve backs it.
type KeyPair interface {
	PublicKey() crypto.PublicKey
	PrivateKey() crypto.PrivateKey
	Type() KeyType
	Sign(message []byte) ([]byte, error)
	Verify(message, signature []byte) error
	ID() string
}
