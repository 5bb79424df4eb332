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

package supervisor_test

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
	"github.com/acp-project/acp-go/pkg/acp/groupstore"
	"github.com/acp-project/acp-go/pkg/acp/identity"
	"github.com/acp-project/acp-go/pkg/acp/supervisor"
)

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

type outerMessage struct {
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

// wsServer answers create_session_req with a fixed session id and, for
// any group_rpc_req carried in a session_message frame, an empty
// group_rpc_resp so register_online/pull_messages/ack_messages all
// succeed without exercising group protocol semantics (those are C8/C9's
// own tests' job) — this one only has to prove the Supervisor wires a
// group.Client/Sync through to a live channel.
func wsServer(t *testing.T) *httptest.Server {
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
			switch f.Cmd {
			case "create_session_req":
				var body struct {
					RequestID string `json:"request_id"`
				}
				_ = json.Unmarshal(f.Data, &body)
				data, _ := json.Marshal(map[string]string{"request_id": body.RequestID, "session_id": "sess-1"})
				_ = conn.WriteJSON(channel.Frame{Cmd: "create_session_ack", Data: data})
			case "session_message":
				var outer outerMessage
				if err := json.Unmarshal(f.Data, &outer); err != nil {
					continue
				}
				var req struct {
					Type      string `json:"type"`
					Method    string `json:"method"`
					RequestID string `json:"request_id"`
				}
				if err := json.Unmarshal(outer.Message, &req); err != nil || req.Type != "group_rpc_req" {
					continue
				}
				var data json.RawMessage
				if req.Method == "pull_messages" {
					data, _ = json.Marshal(map[string]interface{}{"group_id": "g1", "has_more": false})
				} else {
					data, _ = json.Marshal(map[string]string{})
				}
				resp, _ := json.Marshal(map[string]interface{}{
					"type": "group_rpc_resp", "request_id": req.RequestID, "status": "ok", "data": data,
				})
				reply, _ := json.Marshal(outerMessage{SessionID: outer.SessionID, Message: resp})
				_ = conn.WriteJSON(channel.Frame{Cmd: "session_message", Data: reply})
			}
		}
	}))
}

// caAP stands up the CA/AP HTTP contract, pointing message_server at the
// already-running wsURL and heartbeat_server at an arbitrary UDP address
// (heartbeat.Dial never fails to bind a local UDP socket, so no real
// heartbeat listener is needed for Online to succeed).
func caAP(t *testing.T, wsURL string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/accesspoint/sign_cert", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"certificate": "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----"})
	})
	mux.HandleFunc("/api/accesspoint/sign_in", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["nonce"]; ok {
			_ = json.NewEncoder(w).Encode(map[string]string{"signature": "session-token"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"nonce": "abc123"})
	})
	mux.HandleFunc("/api/accesspoint/get_accesspoint_config", func(w http.ResponseWriter, r *http.Request) {
		inner, _ := json.Marshal(map[string]string{
			"heartbeat_server": "127.0.0.1:39191",
			"message_server":   wsURL + "/session",
		})
		_ = json.NewEncoder(w).Encode(map[string]string{"config": string(inner)})
	})
	return httptest.NewServer(mux)
}

func newOnlineSupervisor(t *testing.T, opts ...supervisor.Option) (*supervisor.Supervisor, func()) {
	t.Helper()
	ws := wsServer(t)
	ca := caAP(t, wsURL(ws.URL))

	dir := t.TempDir()
	mgr := identity.New(dir)
	id, err := mgr.CreateAID(context.Background(), ca.URL, "alice.ex.com", "pw")
	require.NoError(t, err)

	sup := supervisor.New(mgr, id, ca.URL, ca.URL, opts...)
	cleanup := func() { ws.Close(); ca.Close() }
	return sup, cleanup
}

func TestSupervisor_Online_BringsUpHeartbeatAndChannel(t *testing.T) {
	sup, cleanup := newOnlineSupervisor(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Online(ctx))

	assert.Equal(t, supervisor.StateOnline, sup.CurrentState())
	assert.True(t, sup.EntrypointReachable())
	assert.True(t, sup.HeartbeatAlive())
	assert.True(t, sup.ChannelConnected())
	assert.NotNil(t, sup.SessionManager())
	assert.Nil(t, sup.GroupSync())
}

func TestSupervisor_Online_WithGroupStore_WiresGroupSync(t *testing.T) {
	dir := t.TempDir()
	store := groupstore.New(dir, "alice.ex.com")
	sup, cleanup := newOnlineSupervisor(t, supervisor.WithGroupStore(store))
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Online(ctx))

	require.NotNil(t, sup.GroupSync())
	require.NoError(t, sup.GroupSync().JoinGroupSession(ctx, "g1"))
	assert.Equal(t, []string{"g1"}, sup.GroupSync().OnlineGroups())
}

func TestSupervisor_Offline_TearsDownLinksAndSignsOut(t *testing.T) {
	var signOutCalls int
	var mu sync.Mutex

	ws := wsServer(t)
	defer ws.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/accesspoint/sign_cert", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"certificate": "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----"})
	})
	mux.HandleFunc("/api/accesspoint/sign_in", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["nonce"]; ok {
			_ = json.NewEncoder(w).Encode(map[string]string{"signature": "session-token"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"nonce": "abc123"})
	})
	mux.HandleFunc("/api/accesspoint/get_accesspoint_config", func(w http.ResponseWriter, r *http.Request) {
		inner, _ := json.Marshal(map[string]string{
			"heartbeat_server": "127.0.0.1:39192",
			"message_server":   wsURL(ws.URL) + "/session",
		})
		_ = json.NewEncoder(w).Encode(map[string]string{"config": string(inner)})
	})
	mux.HandleFunc("/api/accesspoint/sign_out", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		signOutCalls++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	ca := httptest.NewServer(mux)
	defer ca.Close()

	dir := t.TempDir()
	mgr := identity.New(dir)
	id, err := mgr.CreateAID(context.Background(), ca.URL, "alice.ex.com", "pw")
	require.NoError(t, err)

	sup := supervisor.New(mgr, id, ca.URL, ca.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Online(ctx))
	require.Equal(t, supervisor.StateOnline, sup.CurrentState())

	require.NoError(t, sup.Offline(ctx))
	assert.Equal(t, supervisor.StateOffline, sup.CurrentState())
	assert.False(t, sup.ChannelConnected())
	assert.Nil(t, sup.SessionManager())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, signOutCalls)
}
