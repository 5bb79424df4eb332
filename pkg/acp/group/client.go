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

package group

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/internal/metrics"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
	"github.com/acp-project/acp-go/pkg/acp/channel"
)

const defaultRPCTimeout = 30 * time.Second

// NewMessageHandler fires on a new_message notification.
type NewMessageHandler func(groupID string, latestMsgID int64, sender, preview string)

// NewEventHandler fires on a new_event notification.
type NewEventHandler func(groupID string, latestEventID int64, eventType, summary string)

// GroupMessageBatchHandler fires on a group_message_batch notification.
// The default handler (wired by the sync engine) stores the batch and
// acks the highest msg_id.
type GroupMessageBatchHandler func(batch MessageBatch)

// GroupEventHandler fires on a group_event notification.
type GroupEventHandler func(groupID string, event Event)

// InviteHandler fires on group_invite/join_approved/join_rejected/
// join_request_received notifications.
type InviteHandler func(notificationType string, payload json.RawMessage)

// Client is the Group Client protocol engine: it speaks group_rpc_req/resp
// over one dedicated session on the message channel, and dispatches
// inbound notifications to registered handlers.
type Client struct {
	aid          string
	authorityAID string
	sessionID    string
	ch           *channel.Client
	log          logger.Logger

	waitersMu sync.Mutex
	waiters   map[string]chan rpcResponse

	onNewMessage  NewMessageHandler
	onNewEvent    NewEventHandler
	onBatch       GroupMessageBatchHandler
	onGroupEvent  GroupEventHandler
	onInvite      InviteHandler
}

// Option configures a Client.
type Option func(*Client)

// WithLogger substitutes the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithNewMessageHandler installs the new_message notification callback.
func WithNewMessageHandler(h NewMessageHandler) Option {
	return func(c *Client) { c.onNewMessage = h }
}

// WithNewEventHandler installs the new_event notification callback.
func WithNewEventHandler(h NewEventHandler) Option {
	return func(c *Client) { c.onNewEvent = h }
}

// WithGroupMessageBatchHandler installs the group_message_batch callback.
func WithGroupMessageBatchHandler(h GroupMessageBatchHandler) Option {
	return func(c *Client) { c.onBatch = h }
}

// WithGroupEventHandler installs the group_event callback.
func WithGroupEventHandler(h GroupEventHandler) Option {
	return func(c *Client) { c.onGroupEvent = h }
}

// WithInviteHandler installs the group_invite/join_approved/join_rejected/
// join_request_received callback.
func WithInviteHandler(h InviteHandler) Option {
	return func(c *Client) { c.onInvite = h }
}

// Init builds the Group Client for aid, addressed to the group authority
// for issuerDomain over sessionID (established by the caller's
// init_group_client session creation). It does not touch ch's hooks: the
// caller installs RawFrameHook (or HandleIncoming) as ch's raw-frame
// pre-dispatch hook.
func Init(aid, issuerDomain, sessionID string, ch *channel.Client, opts ...Option) *Client {
	c := &Client{
		aid:          aid,
		authorityAID: AuthorityAID(issuerDomain),
		sessionID:    sessionID,
		ch:           ch,
		log:          logger.NewDefaultLogger(),
		waiters:      make(map[string]chan rpcResponse),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RawFrameHook returns the hook to install via
// channel.WithRawFrameHook(client.RawFrameHook()).
func (c *Client) RawFrameHook() channel.RawFrameHook {
	return c.HandleIncoming
}

// SendRPC implements spec.md §4.7's outbound contract: allocate a fresh
// request_id, send {type:"group_rpc_req", method, request_id, params} as
// a raw (non-URL-encoded) session_message, and suspend until the matching
// group_rpc_resp arrives or the timeout elapses. Once 256 RPCs are
// waiting for a response, further calls fail at once with WS_SEND_FAILED.
func (c *Client) SendRPC(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.Internal, "marshal rpc params", err)
	}

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")
	req := rpcRequest{Type: "group_rpc_req", Method: method, RequestID: requestID, Params: paramsJSON}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.Internal, "marshal rpc request", err)
	}

	const maxInFlightRPCs = 256
	respCh := make(chan rpcResponse, 1)
	c.waitersMu.Lock()
	if len(c.waiters) >= maxInFlightRPCs {
		c.waitersMu.Unlock()
		return nil, acperrors.New(acperrors.WSSendFailed, "too many group rpcs in flight: "+method)
	}
	c.waiters[requestID] = respCh
	c.waitersMu.Unlock()
	defer func() {
		c.waitersMu.Lock()
		delete(c.waiters, requestID)
		c.waitersMu.Unlock()
	}()

	start := time.Now()
	if err := c.sendRaw(payload); err != nil {
		metrics.GroupRPCsSent.WithLabelValues(method, "send_failed").Inc()
		return nil, err
	}

	select {
	case resp := <-respCh:
		metrics.GroupRPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if resp.Status == "ok" {
			metrics.GroupRPCsSent.WithLabelValues(method, "ok").Inc()
			return resp.Data, nil
		}
		metrics.GroupRPCsSent.WithLabelValues(method, "err").Inc()
		code, msg := "", "group rpc failed"
		if resp.Error != nil {
			code, msg = resp.Error.Code, resp.Error.Message
		}
		return nil, acperrors.New(acperrors.Internal, msg).WithContext("method", method).WithContext("server_code", code)
	case <-ctx.Done():
		metrics.GroupRPCsSent.WithLabelValues(method, "ctx_done").Inc()
		return nil, ctx.Err()
	case <-time.After(timeout):
		metrics.GroupRPCsSent.WithLabelValues(method, "timeout").Inc()
		return nil, acperrors.New(acperrors.WSTimeout, "group rpc timed out: "+method)
	}
}

// sendRaw emits payload as a session_message frame whose message field is
// raw JSON, not URL-encoded, per spec.md §4.7 step 3.
func (c *Client) sendRaw(payload []byte) error {
	if c.ch == nil || !c.ch.IsConnected() {
		return acperrors.New(acperrors.WSDisconnected, "message channel not connected")
	}
	return c.ch.Send("session_message", map[string]interface{}{
		"session_id": c.sessionID,
		"target_aid": c.authorityAID,
		"message":    json.RawMessage(payload),
		"timestamp":  time.Now().UnixMilli(),
	})
}

// HandleIncoming dispatches an inbound raw frame on "type". It is
// registered as the message channel's raw-frame pre-dispatch hook and
// returns true ("handled") for every frame it recognises as belonging to
// the group protocol, per spec.md §4.7's interception contract.
func (c *Client) HandleIncoming(f channel.Frame) bool {
	if f.Cmd != "session_message" {
		return false
	}

	var outer struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(f.Data, &outer); err != nil || len(outer.Message) == 0 {
		return false
	}

	var env envelope
	if err := json.Unmarshal(outer.Message, &env); err != nil || env.Type == "" {
		return false
	}

	switch env.Type {
	case "group_rpc_resp":
		c.handleRPCResp(outer.Message)
	case "new_message":
		c.handleNewMessage(outer.Message)
	case "new_event":
		c.handleNewEvent(outer.Message)
	case "group_message_batch":
		c.handleBatch(outer.Message)
	case "group_event":
		c.handleGroupEvent(outer.Message)
	case "group_invite", "join_approved", "join_rejected", "join_request_received":
		c.handleInvite(env.Type, outer.Message)
	default:
		return false
	}

	metrics.GroupNotificationsReceived.WithLabelValues(env.Type).Inc()
	return true
}

func (c *Client) handleRPCResp(raw json.RawMessage) {
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Warn("decode group_rpc_resp failed", logger.Error(err))
		return
	}
	c.waitersMu.Lock()
	ch, ok := c.waiters[resp.RequestID]
	if ok {
		delete(c.waiters, resp.RequestID)
	}
	c.waitersMu.Unlock()

	if !ok {
		metrics.GroupDuplicatesSuppressed.Inc()
		return
	}
	select {
	case ch <- resp:
	default:
		metrics.GroupDuplicatesSuppressed.Inc()
	}
}

func (c *Client) handleNewMessage(raw json.RawMessage) {
	if c.onNewMessage == nil {
		return
	}
	var body struct {
		GroupID     string `json:"group_id"`
		LatestMsgID int64  `json:"latest_msg_id"`
		Sender      string `json:"sender"`
		Preview     string `json:"preview"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	c.onNewMessage(body.GroupID, body.LatestMsgID, body.Sender, body.Preview)
}

func (c *Client) handleNewEvent(raw json.RawMessage) {
	if c.onNewEvent == nil {
		return
	}
	var body struct {
		GroupID       string `json:"group_id"`
		LatestEventID int64  `json:"latest_event_id"`
		EventType     string `json:"event_type"`
		Summary       string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	c.onNewEvent(body.GroupID, body.LatestEventID, body.EventType, body.Summary)
}

func (c *Client) handleBatch(raw json.RawMessage) {
	if c.onBatch == nil {
		return
	}
	var batch MessageBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		c.log.Warn("decode group_message_batch failed", logger.Error(err))
		return
	}
	c.onBatch(batch)
}

func (c *Client) handleGroupEvent(raw json.RawMessage) {
	if c.onGroupEvent == nil {
		return
	}
	var body struct {
		GroupID string `json:"group_id"`
		Event   Event  `json:"event"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	c.onGroupEvent(body.GroupID, body.Event)
}

func (c *Client) handleInvite(notificationType string, raw json.RawMessage) {
	if c.onInvite == nil {
		return
	}
	c.onInvite(notificationType, raw)
}
