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
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/internal/metrics"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

const (
	defaultInterval    = 5 * time.Second
	defaultRespTimeout = 4 * time.Second
	maxConsecutiveMiss = 3
)

// InviteHandler is invoked when an INVITE_REQ is received. Returning true
// causes the Client to reply with INVITE_RESP accepting the invite.
type InviteHandler func(InviteReq) bool

// DeadHandler is invoked once the channel is declared dead after three
// consecutive missed responses.
type DeadHandler func()

// Client is one UDP heartbeat channel for a single AID.
type Client struct {
	serverAddr string
	aid        string
	signCookie uint64

	conn net.Conn
	log  logger.Logger

	seq uint64

	mu              sync.Mutex
	nextBeat        time.Duration
	consecutiveMiss int32
	ackCh           chan struct{}

	stop chan struct{}
	done chan struct{}

	onInvite InviteHandler
	onDead   DeadHandler
}

// Option configures a Client.
type Option func(*Client)

// WithInviteHandler installs the callback fired on INVITE_REQ.
func WithInviteHandler(h InviteHandler) Option {
	return func(c *Client) { c.onInvite = h }
}

// WithDeadHandler installs the callback fired when the channel is declared dead.
func WithDeadHandler(h DeadHandler) Option {
	return func(c *Client) { c.onDead = h }
}

// WithLogger substitutes the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Dial opens the UDP socket to serverAddr for aid, identified by signCookie
// (the sign-in-derived cookie the server uses to correlate this channel).
func Dial(serverAddr, aid string, signCookie uint64, opts ...Option) (*Client, error) {
	conn, err := net.Dial("udp", serverAddr)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.HBAuthFailed, "dial heartbeat server", err)
	}

	c := &Client{
		serverAddr: serverAddr,
		aid:        aid,
		signCookie: signCookie,
		conn:       conn,
		log:        logger.NewDefaultLogger(),
		nextBeat:   defaultInterval,
		ackCh:      make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run starts the send loop; it blocks until Offline() is called or the
// channel is declared dead. Received HEARTBEAT_RESP/INVITE_REQ frames are
// processed concurrently by a reader goroutine.
func (c *Client) Run() {
	go c.readLoop()

	ticker := time.NewTicker(c.currentInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			close(c.done)
			return
		case <-ticker.C:
			c.sendBeat()
			if atomic.LoadInt32(&c.consecutiveMiss) >= maxConsecutiveMiss {
				close(c.done)
				return
			}
			ticker.Reset(c.currentInterval())
		}
	}
}

func (c *Client) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextBeat > 0 {
		return c.nextBeat
	}
	return defaultInterval
}

func (c *Client) sendBeat() {
	seq := atomic.AddUint64(&c.seq, 1)
	frame, err := EncodeHeartbeatReq(seq, HeartbeatReq{AID: c.aid, SignCookie: c.signCookie})
	if err != nil {
		c.log.Error("encode heartbeat req", logger.Error(err))
		return
	}

	// Drain any stale ack left over from a prior round before sending, so
	// this round only ever observes an ack triggered by its own request.
	select {
	case <-c.ackCh:
	default:
	}

	start := time.Now()
	if _, err := c.conn.Write(frame); err != nil {
		c.log.Error("send heartbeat req", logger.Error(err))
		c.recordMiss()
		return
	}
	metrics.HeartbeatsSent.Inc()

	select {
	case <-c.ackCh:
		c.recordHit(time.Since(start))
	case <-time.After(defaultRespTimeout):
		c.recordMiss()
	case <-c.stop:
	}
}

func (c *Client) recordMiss() {
	metrics.HeartbeatsMissed.Inc()
	misses := atomic.AddInt32(&c.consecutiveMiss, 1)
	if misses >= maxConsecutiveMiss {
		metrics.HeartbeatChannelDead.Inc()
		if c.onDead != nil {
			c.onDead()
		}
	}
}

func (c *Client) recordHit(rtt time.Duration) {
	atomic.StoreInt32(&c.consecutiveMiss, 0)
	metrics.HeartbeatRoundTrip.Observe(rtt.Seconds())
}

func (c *Client) readLoop() {
	buf := make([]byte, 1500)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(defaultRespTimeout))
		n, err := c.conn.Read(buf)
		if err != nil {
			continue
		}

		h, payload, err := DecodeFrame(buf[:n])
		if err != nil {
			continue
		}

		switch h.Type {
		case TypeHeartbeatResp:
			resp, err := DecodeHeartbeatResp(payload)
			if err != nil {
				continue
			}
			select {
			case c.ackCh <- struct{}{}:
			default:
			}
			if resp.NextBeat > 0 {
				c.mu.Lock()
				c.nextBeat = time.Duration(resp.NextBeat) * time.Millisecond
				c.mu.Unlock()
			}
		case TypeInviteReq:
			req, err := DecodeInviteReq(payload)
			if err != nil {
				continue
			}
			c.handleInvite(req)
		}
	}
}

func (c *Client) handleInvite(req InviteReq) {
	if c.onInvite == nil || !c.onInvite(req) {
		return
	}
	seq := atomic.AddUint64(&c.seq, 1)
	frame, err := EncodeInviteResp(seq, InviteResp{
		AID:        c.aid,
		Inviter:    req.Inviter,
		SessionID:  req.SessionID,
		SignCookie: c.signCookie,
	})
	if err != nil {
		c.log.Error("encode invite resp", logger.Error(err))
		return
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.log.Error("send invite resp", logger.Error(err))
	}
}

// Offline sets the stop flag the send loop observes before its next tick.
func (c *Client) Offline() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	_ = c.conn.Close()
}
