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

package keys

import (
	"sync"

	acpcrypto "github.com/acp-project/acp-go/pkg/acp/crypto"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// Generator builds a fresh KeyPair for one algorithm.
type Generator func() (acpcrypto.KeyPair, error)

var (
	registryMu sync.RWMutex
	registry   = map[acpcrypto.KeyType]Generator{
		acpcrypto.KeyTypeP384: func() (acpcrypto.KeyPair, error) {
			_, kp, err := acpcrypto.GenerateP384Key()
			return kp, err
		},
		acpcrypto.KeyTypeSecp256k1: GenerateSecp256k1KeyPair,
	}
)

// Register adds or replaces the generator for keyType. Narrowed to the two
// key types this SDK actually issues (P-384, Secp256k1); callers that need
// a third type register it here rather than forking the registry.
func Register(keyType acpcrypto.KeyType, gen Generator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[keyType] = gen
}

// Generate creates a new key pair of keyType.
func Generate(keyType acpcrypto.KeyType) (acpcrypto.KeyPair, error) {
	registryMu.RLock()
	gen, ok := registry[keyType]
	registryMu.RUnlock()
	if !ok {
		return nil, acperrors.New(acperrors.InvalidArgument, "unsupported key type: "+string(keyType))
	}
	return gen()
}
