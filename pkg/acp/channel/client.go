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

package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/internal/metrics"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

var fastRetryDelays = []time.Duration{
	1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second,
}

const defaultAckTimeout = 10 * time.Second

// RawFrameHook is invoked for every inbound frame before ack dispatch, so
// C8's group protocol engine can recognise and consume frames addressed to
// it without competing with the session waiter map. Returning true marks
// the frame "handled": normal ack/session dispatch is skipped.
type RawFrameHook func(Frame) bool

// ReconnectNeededHandler is invoked once fast retries are exhausted after a
// previously successful connection, so the Supervisor can re-run sign-in.
type ReconnectNeededHandler func()

// SessionMessageHandler is invoked for an inbound session_message frame
// not claimed by the raw-frame hook, i.e. ordinary P2P traffic that the
// Session Manager should route (existing session, or auto-create incoming).
type SessionMessageHandler func(Frame)

// Client is the persistent WebSocket message channel for one AID.
type Client struct {
	url string
	log logger.Logger

	dialTimeout  time.Duration
	writeTimeout time.Duration

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool
	everConnected bool

	waitersMu sync.Mutex
	waiters   map[string]chan Frame

	failMu sync.Mutex
	failCh chan struct{}

	onRawFrame        RawFrameHook
	onSessionMessage  SessionMessageHandler
	onReconnectNeeded ReconnectNeededHandler

	closed chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithRawFrameHook installs the pre-dispatch hook for the group protocol.
func WithRawFrameHook(h RawFrameHook) Option {
	return func(c *Client) { c.onRawFrame = h }
}

// WithSessionMessageHandler installs the callback for unclaimed inbound
// session_message frames.
func WithSessionMessageHandler(h SessionMessageHandler) Option {
	return func(c *Client) { c.onSessionMessage = h }
}

// WithReconnectNeededHandler installs the callback fired when fast retries
// are exhausted after a previously successful connection.
func WithReconnectNeededHandler(h ReconnectNeededHandler) Option {
	return func(c *Client) { c.onReconnectNeeded = h }
}

// WithLogger substitutes the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a channel Client bound to url (not yet connected).
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		log:          logger.NewDefaultLogger(),
		dialTimeout:  30 * time.Second,
		writeTimeout: 10 * time.Second,
		waiters:      make(map[string]chan Frame),
		failCh:       make(chan struct{}),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the WebSocket endpoint and starts the read pump.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := &websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return acperrors.Wrap(acperrors.WSConnectFailed, "dial message channel", err).
			WithContext("status_code", status)
	}

	c.conn = conn
	c.connected = true
	c.everConnected = true
	go c.readLoop()
	return nil
}

func (c *Client) isConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

func (c *Client) setDisconnected() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
}

// Send writes a {cmd, data} frame without waiting for an ack.
func (c *Client) Send(cmd string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return acperrors.Wrap(acperrors.Internal, "marshal frame data", err)
	}
	return c.writeFrame(Frame{Cmd: cmd, Data: raw})
}

func (c *Client) writeFrame(f Frame) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return acperrors.New(acperrors.WSDisconnected, "message channel not connected")
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return acperrors.Wrap(acperrors.WSSendFailed, "set write deadline", err)
	}
	if err := conn.WriteJSON(f); err != nil {
		c.connected = false
		return acperrors.Wrap(acperrors.WSSendFailed, "write frame", err)
	}
	return nil
}

// SendAndWaitAck sends a request frame, registers a waiter on the embedded
// request_id, and blocks until the matching *_ack frame arrives, timeout
// elapses, or the channel is closed.
func (c *Client) SendAndWaitAck(ctx context.Context, cmd string, data map[string]interface{}, timeout time.Duration) (Frame, error) {
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	requestID := uuid.New().String()
	if data == nil {
		data = make(map[string]interface{})
	}
	data["request_id"] = requestID
	data["timestamp"] = time.Now().UnixMilli()

	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, acperrors.Wrap(acperrors.Internal, "marshal frame data", err)
	}

	ackCh := make(chan Frame, 1)
	c.waitersMu.Lock()
	c.waiters[requestID] = ackCh
	c.waitersMu.Unlock()
	defer func() {
		c.waitersMu.Lock()
		delete(c.waiters, requestID)
		c.waitersMu.Unlock()
	}()

	c.failMu.Lock()
	failCh := c.failCh
	c.failMu.Unlock()

	if err := c.writeFrame(Frame{Cmd: cmd, Data: raw}); err != nil {
		return Frame{}, err
	}

	select {
	case ack := <-ackCh:
		return ack, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-time.After(timeout):
		metrics.ChannelAckTimeouts.WithLabelValues(cmd).Inc()
		return Frame{}, acperrors.New(acperrors.WSTimeout, "timed out waiting for ack: "+ackCmdFor(cmd))
	case <-failCh:
		metrics.ChannelAckTimeouts.WithLabelValues(cmd).Inc()
		return Frame{}, acperrors.New(acperrors.WSTimeout, "connection failed while waiting for ack: "+ackCmdFor(cmd))
	case <-c.closed:
		return Frame{}, acperrors.New(acperrors.WSDisconnected, "message channel closed")
	}
}

func (c *Client) readLoop() {
	defer c.setDisconnected()
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			c.log.Warn("message channel read error", logger.Error(err))
			c.setDisconnected()
			go c.reconnectWithFastRetry()
			return
		}

		start := time.Now()
		c.dispatch(f)
		metrics.ChannelMessageProcessingDuration.Observe(time.Since(start).Seconds())
	}
}

const ackCmdSuffix = "_ack"

func isAckCmd(cmd string) bool {
	return len(cmd) > len(ackCmdSuffix) && cmd[len(cmd)-len(ackCmdSuffix):] == ackCmdSuffix
}

func (c *Client) dispatch(f Frame) {
	if c.onRawFrame != nil && c.onRawFrame(f) {
		metrics.ChannelMessagesProcessed.WithLabelValues(f.Cmd, "handled_by_hook").Inc()
		return
	}

	if isAckCmd(f.Cmd) {
		c.dispatchAck(f)
		return
	}

	if f.Cmd == "session_message" {
		if c.onSessionMessage != nil {
			c.onSessionMessage(f)
			metrics.ChannelMessagesProcessed.WithLabelValues(f.Cmd, "ok").Inc()
			return
		}
	}

	metrics.ChannelMessagesProcessed.WithLabelValues(f.Cmd, "unhandled").Inc()
}

func (c *Client) dispatchAck(f Frame) {
	requestID := decodeRequestID(f.Data)
	if requestID == "" {
		metrics.ChannelMessagesProcessed.WithLabelValues(f.Cmd, "no_request_id").Inc()
		return
	}

	c.waitersMu.Lock()
	ch, ok := c.waiters[requestID]
	if ok {
		delete(c.waiters, requestID)
	}
	c.waitersMu.Unlock()

	if !ok {
		metrics.ChannelDuplicatesDropped.Inc()
		return
	}

	select {
	case ch <- f:
		metrics.ChannelMessagesProcessed.WithLabelValues(f.Cmd, "ok").Inc()
	default:
		metrics.ChannelDuplicatesDropped.Inc()
	}
}

// reconnectWithFastRetry implements spec.md §4.5's 5-step retry policy: on
// unclean close, reattempt the dial at 1s,2s,3s,4s,5s. If all five fail
// after a previously successful connection, it raises reconnect-needed so
// the Supervisor can re-run sign-in; in-flight waiters are resolved with
// WS_TIMEOUT rather than left hanging.
func (c *Client) reconnectWithFastRetry() {
	c.failAllWaiters()

	for _, delay := range fastRetryDelays {
		select {
		case <-c.closed:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			c.log.Info("message channel reconnected")
			return
		}
		c.log.Warn("message channel fast retry failed", logger.Error(err))
	}

	if c.everConnected && c.onReconnectNeeded != nil {
		c.onReconnectNeeded()
	}
}

// failAllWaiters resolves every SendAndWaitAck call currently blocked on
// this connection generation with WS_TIMEOUT, by closing the shared failCh
// they each selected on at registration, then swaps in a fresh failCh so
// waiters registered after a successful reconnect aren't immediately failed.
func (c *Client) failAllWaiters() {
	c.failMu.Lock()
	close(c.failCh)
	c.failCh = make(chan struct{})
	c.failMu.Unlock()

	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	for id := range c.waiters {
		delete(c.waiters, id)
	}
}

// Close shuts the connection down cleanly and stops any in-flight retry loop.
func (c *Client) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	c.connected = false
	if err != nil {
		return acperrors.Wrap(acperrors.WSSendFailed, "close connection", err)
	}
	return nil
}

// IsConnected reports whether the underlying WebSocket is currently open.
func (c *Client) IsConnected() bool {
	return c.isConnected()
}
