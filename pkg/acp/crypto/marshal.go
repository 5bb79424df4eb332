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
	"fmt"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// PublicKeyBytes returns the uncompressed point encoding (0x04||X||Y) of an
// ECDSA-backed KeyPair's public key, used for fingerprinting and wire
// exchange of a raw public key.
func PublicKeyBytes(kp KeyPair) ([]byte, error) {
	pub, ok := kp.PublicKey().(*ecdsa.PublicKey)
	if !ok {
		return nil, acperrors.New(acperrors.CertError, fmt.Sprintf("unsupported public key type %T", kp.PublicKey()))
	}
	byteLen := (pub.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 1+2*byteLen)
	out[0] = 0x04
	pub.X.FillBytes(out[1 : 1+byteLen])
	pub.Y.FillBytes(out[1+byteLen:])
	return out, nil
}
