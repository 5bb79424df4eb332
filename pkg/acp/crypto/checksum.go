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

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

// Checksum hashes data with Keccak256. It is a standalone helper: the
// group client's get_checksum/get_message_checksum calls return the
// checksum the server reports and do not call it.
func Checksum(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}

// HexChecksum is Checksum, hex-encoded.
func HexChecksum(data []byte) string {
	return Hex(Checksum(data))
}
