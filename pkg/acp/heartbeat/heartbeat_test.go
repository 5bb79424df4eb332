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

package heartbeat_test

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acp-project/acp-go/pkg/acp/heartbeat"
)

func TestEncodeDecodeHeartbeatReqRoundTrip(t *testing.T) {
	frame, err := heartbeat.EncodeHeartbeatReq(7, heartbeat.HeartbeatReq{AID: "did:acp:agent1", SignCookie: 42})
	require.NoError(t, err)

	h, payload, err := heartbeat.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, heartbeat.TypeHeartbeatReq, h.Type)
	assert.Equal(t, uint64(7), h.Seq)
	assert.NotEmpty(t, payload)
}

func TestEncodeDecodeHeartbeatRespRoundTrip(t *testing.T) {
	frame, err := heartbeat.EncodeHeartbeatResp(4, heartbeat.HeartbeatResp{NextBeat: 7000})
	require.NoError(t, err)

	h, payload, err := heartbeat.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, heartbeat.TypeHeartbeatResp, h.Type)

	resp, err := heartbeat.DecodeHeartbeatResp(payload)
	require.NoError(t, err)
	assert.EqualValues(t, 7000, resp.NextBeat)
}

func TestEncodeDecodeInviteRespRoundTrip(t *testing.T) {
	frame, err := heartbeat.EncodeInviteResp(3, heartbeat.InviteResp{
		AID:        "did:acp:agent2",
		Inviter:    "did:acp:agent1",
		SessionID:  "sess-1",
		SignCookie: 99,
	})
	require.NoError(t, err)

	h, _, err := heartbeat.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, heartbeat.TypeInviteResp, h.Type)
}

// echoServer answers every HEARTBEAT_REQ datagram with a HEARTBEAT_RESP
// carrying a 100ms next_beat hint, and counts the requests it answered.
type echoServer struct {
	conn     *net.UDPConn
	answered int32
}

func newEchoServer(t *testing.T) (*echoServer, string) {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	conn, err := net.ListenUDP("udp", addr)
	require.NoError(t, err)
	return &echoServer{conn: conn}, conn.LocalAddr().String()
}

func (s *echoServer) serve() {
	buf := make([]byte, 1500)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		h, _, err := heartbeat.DecodeFrame(buf[:n])
		if err != nil || h.Type != heartbeat.TypeHeartbeatReq {
			continue
		}
		resp, err := heartbeat.EncodeHeartbeatResp(h.Seq, heartbeat.HeartbeatResp{NextBeat: 100})
		if err != nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(resp, raddr); err == nil {
			atomic.AddInt32(&s.answered, 1)
		}
	}
}

func TestClient_RunReceivesHeartbeatResp(t *testing.T) {
	srv, addr := newEchoServer(t)
	defer srv.conn.Close()
	go srv.serve()

	client, err := heartbeat.Dial(addr, "did:acp:agent1", 1)
	require.NoError(t, err)
	go client.Run()
	defer client.Offline()

	// The first beat goes out after the default 5s interval; only once the
	// client has read a response carrying the 100ms hint do beats follow
	// every 100ms, so a third answered request shows a response arrived.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&srv.answered) >= 3
	}, 12*time.Second, 50*time.Millisecond)
}

func TestClient_DeclaresDeadAfterConsecutiveMisses(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	var dead int32
	deadCh := make(chan struct{})
	client, err := heartbeat.Dial(conn.LocalAddr().String(), "did:acp:agent1", 1,
		heartbeat.WithDeadHandler(func() {
			if atomic.CompareAndSwapInt32(&dead, 0, 1) {
				close(deadCh)
			}
		}),
	)
	require.NoError(t, err)
	go client.Run()
	defer client.Offline()

	select {
	case <-deadCh:
	case <-time.After(35 * time.Second):
		t.Fatal("expected channel to be declared dead after three consecutive misses")
	}
}
