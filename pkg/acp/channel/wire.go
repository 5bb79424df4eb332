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

// Package channel is the persistent WebSocket message channel: JSON
// {cmd, data} frames, request/ack correlation keyed by request_id, a
// raw-frame pre-dispatch hook for the group protocol, and a 5-step
// fast-retry reconnection policy.
package channel

import (
	"encoding/json"
	"time"
)

// Frame is the wire shape of every message exchanged on the channel.
type Frame struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// ackSuffix is appended to a request cmd to form its matching ack cmd,
// e.g. "create_session_req" -> "create_session_ack".
const ackSuffix = "_ack"

func ackCmdFor(reqCmd string) string {
	const reqSuffix = "_req"
	if len(reqCmd) > len(reqSuffix) && reqCmd[len(reqCmd)-len(reqSuffix):] == reqSuffix {
		return reqCmd[:len(reqCmd)-len(reqSuffix)] + ackSuffix
	}
	return reqCmd + ackSuffix
}

// envelope is embedded in every frame's data payload.
type envelope struct {
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
}

func newEnvelope(requestID string) envelope {
	return envelope{RequestID: requestID, Timestamp: time.Now().UnixMilli()}
}

func decodeRequestID(data json.RawMessage) string {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return ""
	}
	return e.RequestID
}
