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

package heartbeat

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// EncodeHeartbeatReq serializes a HEARTBEAT_REQ frame.
func EncodeHeartbeatReq(seq uint64, req HeartbeatReq) ([]byte, error) {
	var payload bytes.Buffer
	if err := writeLenPrefixedString(&payload, req.AID); err != nil {
		return nil, err
	}
	var cookie [8]byte
	binary.BigEndian.PutUint64(cookie[:], req.SignCookie)
	payload.Write(cookie[:])

	return encodeFrame(seq, TypeHeartbeatReq, payload.Bytes())
}

// EncodeHeartbeatResp serializes a HEARTBEAT_RESP frame.
func EncodeHeartbeatResp(seq uint64, resp HeartbeatResp) ([]byte, error) {
	var payload bytes.Buffer
	if err := writeVarint(&payload, resp.NextBeat); err != nil {
		return nil, err
	}
	return encodeFrame(seq, TypeHeartbeatResp, payload.Bytes())
}

// DecodeHeartbeatResp parses a HEARTBEAT_RESP payload.
func DecodeHeartbeatResp(payload []byte) (HeartbeatResp, error) {
	r := bufio.NewReader(bytes.NewReader(payload))
	nextBeat, err := readVarint(r)
	if err != nil {
		return HeartbeatResp{}, err
	}
	return HeartbeatResp{NextBeat: nextBeat}, nil
}

// DecodeInviteReq parses an INVITE_REQ payload.
func DecodeInviteReq(payload []byte) (InviteReq, error) {
	r := bufio.NewReader(bytes.NewReader(payload))

	inviter, err := readLenPrefixedString(r)
	if err != nil {
		return InviteReq{}, err
	}
	inviteCode, err := readLenPrefixedString(r)
	if err != nil {
		return InviteReq{}, err
	}
	var expireBuf [8]byte
	if _, err := io.ReadFull(r, expireBuf[:]); err != nil {
		return InviteReq{}, acperrors.Wrap(acperrors.StreamClosed, "read invite expire", err)
	}
	sessionID, err := readLenPrefixedString(r)
	if err != nil {
		return InviteReq{}, err
	}
	messageServer, err := readLenPrefixedString(r)
	if err != nil {
		return InviteReq{}, err
	}

	return InviteReq{
		Inviter:          inviter,
		InviteCode:       inviteCode,
		InviteCodeExpire: int64(binary.BigEndian.Uint64(expireBuf[:])),
		SessionID:        sessionID,
		MessageServer:    messageServer,
	}, nil
}

// EncodeInviteResp serializes an INVITE_RESP frame accepting the invite.
func EncodeInviteResp(seq uint64, resp InviteResp) ([]byte, error) {
	var payload bytes.Buffer
	if err := writeLenPrefixedString(&payload, resp.AID); err != nil {
		return nil, err
	}
	if err := writeLenPrefixedString(&payload, resp.Inviter); err != nil {
		return nil, err
	}
	if err := writeLenPrefixedString(&payload, resp.SessionID); err != nil {
		return nil, err
	}
	var cookie [8]byte
	binary.BigEndian.PutUint64(cookie[:], resp.SignCookie)
	payload.Write(cookie[:])

	return encodeFrame(seq, TypeInviteResp, payload.Bytes())
}

func encodeFrame(seq uint64, msgType uint16, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	h := Header{Mask: 0, Seq: seq, Type: msgType, PayLen: uint16(len(payload))}
	if err := writeHeader(&buf, h); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeFrame splits a raw UDP datagram into its header and payload.
func DecodeFrame(data []byte) (Header, []byte, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	h, err := readHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	payload := make([]byte, h.PayLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, acperrors.Wrap(acperrors.StreamClosed, "read frame payload", err)
	}
	return h, payload, nil
}
