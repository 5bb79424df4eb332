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

// Package group is the Group Client protocol engine: a request/response
// RPC layer speaking over the message channel's raw frames to a
// group-authority AID, plus the notification dispatch and cursor-based
// incremental-sync engine built on top of it.
package group

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// rpcRequest is {type:"group_rpc_req", method, request_id, params}.
type rpcRequest struct {
	Type      string          `json:"type"`
	Method    string          `json:"method"`
	RequestID string          `json:"request_id"`
	Params    json.RawMessage `json:"params"`
}

// rpcResponse is {type:"group_rpc_resp", request_id, status, data|error}.
type rpcResponse struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is the minimal shape used to classify an inbound raw frame
// payload before unmarshalling it into its concrete notification type.
type envelope struct {
	Type string `json:"type"`
}

// Message is one stored group message, ordered by MsgID.
type Message struct {
	MsgID  int64           `json:"msg_id"`
	Sender string          `json:"sender"`
	SentAt int64           `json:"sent_at"`
	Body   json.RawMessage `json:"body"`
}

// Event is one stored group event, ordered by EventID.
type Event struct {
	EventID int64           `json:"event_id"`
	Type    string          `json:"type"`
	At      int64           `json:"at"`
	Body    json.RawMessage `json:"body"`
}

// MessageBatch is the payload of a group_message_batch notification.
type MessageBatch struct {
	GroupID     string    `json:"group_id"`
	StartMsgID  int64     `json:"start_msg_id"`
	LatestMsgID int64     `json:"latest_msg_id"`
	Count       int       `json:"count"`
	Messages    []Message `json:"messages"`
	HasMore     bool      `json:"has_more"`
}

// GroupURL is the result of parsing an invite/join URL.
type GroupURL struct {
	TargetAID string
	GroupID   string
	Code      string
}

// ParseGroupURL parses "https://<target_aid>/<group_id>?code=<c>".
func ParseGroupURL(raw string) (GroupURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return GroupURL{}, fmt.Errorf("parse group url: %w", err)
	}
	if u.Host == "" {
		return GroupURL{}, fmt.Errorf("parse group url: missing target aid host in %q", raw)
	}
	groupID := strings.Trim(u.Path, "/")
	if groupID == "" {
		return GroupURL{}, fmt.Errorf("parse group url: missing group id in %q", raw)
	}
	return GroupURL{
		TargetAID: u.Host,
		GroupID:   groupID,
		Code:      u.Query().Get("code"),
	}, nil
}

// AuthorityAID returns the group-authority AID for an issuer domain, i.e.
// "group.<issuer-domain>".
func AuthorityAID(issuerDomain string) string {
	return "group." + issuerDomain
}
