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

// Package heartbeat is the UDP varint-framed keepalive channel: a
// HEARTBEAT_REQ every 5s (or at the server's next_beat hint), miss-of-3
// dead-channel detection, and INVITE_REQ/INVITE_RESP handling.
package heartbeat

import (
	"encoding/binary"
	"io"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// Message types, exactly as spec.md §4.4/§6.
const (
	TypeHeartbeatResp uint16 = 258
	TypeInviteReq     uint16 = 259
	TypeHeartbeatReq  uint16 = 513
	TypeInviteResp    uint16 = 516
)

// Header is {mask: varint, seq: varint, type: u16, payload_size: u16}.
type Header struct {
	Mask   uint64
	Seq    uint64
	Type   uint16
	PayLen uint16
}

func writeVarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func readVarint(r io.ByteReader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, acperrors.Wrap(acperrors.StreamClosed, "read varint", err)
	}
	return v, nil
}

func writeHeader(w io.Writer, h Header) error {
	if err := writeVarint(w, h.Mask); err != nil {
		return err
	}
	if err := writeVarint(w, h.Seq); err != nil {
		return err
	}
	var fixed [4]byte
	binary.BigEndian.PutUint16(fixed[0:2], h.Type)
	binary.BigEndian.PutUint16(fixed[2:4], h.PayLen)
	_, err := w.Write(fixed[:])
	return err
}

func readHeader(r interface {
	io.Reader
	io.ByteReader
}) (Header, error) {
	mask, err := readVarint(r)
	if err != nil {
		return Header{}, err
	}
	seq, err := readVarint(r)
	if err != nil {
		return Header{}, err
	}
	var fixed [4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Header{}, acperrors.Wrap(acperrors.StreamClosed, "read header fixed fields", err)
	}
	return Header{
		Mask:   mask,
		Seq:    seq,
		Type:   binary.BigEndian.Uint16(fixed[0:2]),
		PayLen: binary.BigEndian.Uint16(fixed[2:4]),
	}, nil
}

// HeartbeatReq is sent by the client every interval.
type HeartbeatReq struct {
	AID        string
	SignCookie uint64
}

// HeartbeatResp carries the server's next_beat hint (0 if unspecified).
type HeartbeatResp struct {
	NextBeat uint64
}

// InviteReq is pushed by the server to notify of a pending P2P invite.
type InviteReq struct {
	Inviter          string
	InviteCode       string
	InviteCodeExpire int64
	SessionID        string
	MessageServer    string
}

// InviteResp is sent to accept an invite over the heartbeat channel.
type InviteResp struct {
	AID       string
	Inviter   string
	SessionID string
	SignCookie uint64
}

func writeLenPrefixedString(w io.Writer, s string) error {
	if err := writeVarint(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// maxLenPrefixedString bounds a single decoded string to the largest
// payload a frame can ever carry (PayLen is a uint16), so a forged
// length prefix can't force an oversized allocation before the
// io.ReadFull below would fail anyway.
const maxLenPrefixedString = 1 << 16

func readLenPrefixedString(r interface {
	io.Reader
	io.ByteReader
}) (string, error) {
	n, err := readVarint(r)
	if err != nil {
		return "", err
	}
	if n > maxLenPrefixedString {
		return "", acperrors.New(acperrors.Internal, "length-prefixed string exceeds max frame size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", acperrors.Wrap(acperrors.StreamClosed, "read length-prefixed string", err)
	}
	return string(buf), nil
}
