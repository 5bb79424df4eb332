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

package group_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acp-project/acp-go/pkg/acp/channel"
	"github.com/acp-project/acp-go/pkg/acp/group"
)

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

type outerMessage struct {
	SessionID string          `json:"session_id"`
	TargetAID string          `json:"target_aid"`
	Message   json.RawMessage `json:"message"`
}

// rpcEchoServer upgrades a single connection and, for every
// group_rpc_req it decodes from a session_message frame, replies with a
// group_rpc_resp{status:"ok"} echoing a fixed data payload.
func rpcEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			var f channel.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Cmd != "session_message" {
				continue
			}
			var outer outerMessage
			require.NoError(t, json.Unmarshal(f.Data, &outer))

			var req struct {
				Type      string `json:"type"`
				Method    string `json:"method"`
				RequestID string `json:"request_id"`
			}
			require.NoError(t, json.Unmarshal(outer.Message, &req))
			if req.Type != "group_rpc_req" {
				continue
			}

			data, _ := json.Marshal(map[string]string{"group_id": "g1", "method_seen": req.Method})
			resp, _ := json.Marshal(map[string]interface{}{
				"type":       "group_rpc_resp",
				"request_id": req.RequestID,
				"status":     "ok",
				"data":       json.RawMessage(data),
			})
			reply, _ := json.Marshal(map[string]interface{}{
				"session_id": outer.SessionID,
				"message":    json.RawMessage(resp),
			})
			_ = conn.WriteJSON(channel.Frame{Cmd: "session_message", Data: reply})
		}
	}))
}

// newConnectedGroupClient wires a group.Client to a live channel.Client
// dialed at srv, registering the group client's hook on that channel —
// the same chicken-and-egg wiring the Supervisor performs at bring-up
// (build the channel, then the group client, referencing each other).
func newConnectedGroupClient(t *testing.T, srv *httptest.Server) (*channel.Client, *group.Client) {
	t.Helper()
	var gc *group.Client
	ch := channel.New(wsURL(srv.URL), channel.WithRawFrameHook(func(f channel.Frame) bool {
		return gc.HandleIncoming(f)
	}))
	require.NoError(t, ch.Connect(context.Background()))
	gc = group.Init("did:acp:agent1", "example.com", "sess-1", ch)
	return ch, gc
}

func TestClient_SendRPC_RoundTrip(t *testing.T) {
	srv := rpcEchoServer(t)
	defer srv.Close()

	ch, gc := newConnectedGroupClient(t, srv)
	defer ch.Close()

	ops := group.NewOps(gc)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := ops.RegisterOnline(ctx, "g1")
	require.NoError(t, err)
}

func TestClient_HandleIncoming_DispatchesNewMessage(t *testing.T) {
	var got struct {
		groupID     string
		latestMsgID int64
		sender      string
	}
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	gc := group.Init("did:acp:agent1", "example.com", "sess-1", nil,
		group.WithNewMessageHandler(func(groupID string, latestMsgID int64, sender, preview string) {
			mu.Lock()
			got.groupID, got.latestMsgID, got.sender = groupID, latestMsgID, sender
			mu.Unlock()
			done <- struct{}{}
		}),
	)

	payload, _ := json.Marshal(map[string]interface{}{
		"type": "new_message", "group_id": "g1", "latest_msg_id": int64(42), "sender": "did:acp:agent2",
	})
	outer, _ := json.Marshal(outerMessage{SessionID: "sess-1", Message: payload})

	handled := gc.HandleIncoming(channel.Frame{Cmd: "session_message", Data: outer})
	assert.True(t, handled)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("new message handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "g1", got.groupID)
	assert.Equal(t, int64(42), got.latestMsgID)
	assert.Equal(t, "did:acp:agent2", got.sender)
}

func TestClient_HandleIncoming_IgnoresNonGroupFrames(t *testing.T) {
	gc := group.Init("did:acp:agent1", "example.com", "sess-1", nil)
	handled := gc.HandleIncoming(channel.Frame{Cmd: "create_session_ack", Data: json.RawMessage(`{}`)})
	assert.False(t, handled)
}

// pagingRPCServer answers pull_messages with two pre-set pages in
// sequence, exercising PullAndStore's has_more loop end-to-end against a
// real Ops/Client rather than a mocked interface.
func pagingRPCServer(t *testing.T, pages [][]group.Message, hasMore []bool) *httptest.Server {
	t.Helper()
	var callCount int
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			var f channel.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Cmd != "session_message" {
				continue
			}
			var outer outerMessage
			require.NoError(t, json.Unmarshal(f.Data, &outer))
			var req struct {
				Type      string `json:"type"`
				Method    string `json:"method"`
				RequestID string `json:"request_id"`
			}
			require.NoError(t, json.Unmarshal(outer.Message, &req))
			if req.Type != "group_rpc_req" {
				continue
			}

			var data json.RawMessage
			status := "ok"
			switch req.Method {
			case "pull_messages":
				mu.Lock()
				idx := callCount
				callCount++
				mu.Unlock()
				batch := group.MessageBatch{
					GroupID:  "g1",
					Messages: pages[idx],
					HasMore:  hasMore[idx],
				}
				if len(pages[idx]) > 0 {
					batch.LatestMsgID = pages[idx][len(pages[idx])-1].MsgID
				}
				data, _ = json.Marshal(batch)
			case "ack_messages":
				data, _ = json.Marshal(map[string]bool{"ok": true})
			default:
				data, _ = json.Marshal(map[string]string{})
			}

			resp, _ := json.Marshal(map[string]interface{}{
				"type": "group_rpc_resp", "request_id": req.RequestID, "status": status, "data": data,
			})
			reply, _ := json.Marshal(outerMessage{SessionID: outer.SessionID, Message: resp})
			_ = conn.WriteJSON(channel.Frame{Cmd: "session_message", Data: reply})
		}
	}))
}

type memStore struct {
	mu       sync.Mutex
	appended map[string][]group.Message
}

func newMemStore() *memStore { return &memStore{appended: make(map[string][]group.Message)} }

func (s *memStore) LastLocalMsgID(groupID string) (int64, error) { return 0, nil }

func (s *memStore) AppendMessages(groupID string, messages []group.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended[groupID] = append(s.appended[groupID], messages...)
	return nil
}

func TestSync_PullAndStore_PaginatesUntilHasMoreFalse(t *testing.T) {
	page1 := []group.Message{{MsgID: 1}, {MsgID: 2}}
	page2 := []group.Message{{MsgID: 3}}
	srv := pagingRPCServer(t, [][]group.Message{page1, page2}, []bool{true, false})
	defer srv.Close()

	ch, gc := newConnectedGroupClient(t, srv)
	defer ch.Close()

	ops := group.NewOps(gc)
	store := newMemStore()
	syncEngine := group.NewSync(gc, ops, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, syncEngine.PullAndStore(ctx, "g1", 0, 50))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.appended["g1"], 3)
}
