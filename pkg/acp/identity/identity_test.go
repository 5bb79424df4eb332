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

package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
	"github.com/acp-project/acp-go/pkg/acp/identity"
)

// newCAAP stands up a single test server backing both the CA and AP
// contracts used by CreateAID/SignIn/GetEntrypointConfig.
func newCAAP(t *testing.T) *httptest.Server {
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
		inner, _ := json.Marshal(map[string]string{"heartbeat_server": "hb.ex.com:9000", "message_server": "wss://msg.ex.com/ws"})
		_ = json.NewEncoder(w).Encode(map[string]string{"config": string(inner)})
	})
	return httptest.NewServer(mux)
}

func TestCreateAID_PersistsAndDetectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	server := newCAAP(t)
	defer server.Close()

	mgr := identity.New(dir)
	id, err := mgr.CreateAID(context.Background(), server.URL, "alice.ex.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice.ex.com", id.AID)
	assert.NotEmpty(t, id.CertPEM)

	aids, err := mgr.ListAIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice.ex.com"}, aids)

	_, err = mgr.CreateAID(context.Background(), server.URL, "alice.ex.com", "pw")
	require.Error(t, err)
	assert.Equal(t, acperrors.AIDAlreadyExists, acperrors.CodeOf(err))
}

func TestLoadAID_NotFound(t *testing.T) {
	dir := t.TempDir()
	mgr := identity.New(dir)

	_, err := mgr.LoadAID("nobody.ex.com", "pw")
	require.Error(t, err)
	assert.Equal(t, acperrors.AIDNotFound, acperrors.CodeOf(err))
}

func TestOnline_ProducesConnectionConfig(t *testing.T) {
	dir := t.TempDir()
	server := newCAAP(t)
	defer server.Close()

	mgr := identity.New(dir)
	id, err := mgr.CreateAID(context.Background(), server.URL, "alice.ex.com", "pw")
	require.NoError(t, err)

	cfg, err := mgr.Online(context.Background(), id, server.URL, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "hb.ex.com:9000", cfg.HeartbeatServer)
	assert.Equal(t, "wss://msg.ex.com/ws", cfg.MessageServer)
	assert.Equal(t, "session-token", cfg.MessageSignature)

	rt := mgr.Runtime("alice.ex.com")
	assert.Equal(t, identity.StateAuthenticating, rt.State())
}

func TestDeleteAID_InvalidatesRuntime(t *testing.T) {
	dir := t.TempDir()
	server := newCAAP(t)
	defer server.Close()

	mgr := identity.New(dir)
	_, err := mgr.CreateAID(context.Background(), server.URL, "alice.ex.com", "pw")
	require.NoError(t, err)

	_ = mgr.Runtime("alice.ex.com")
	require.NoError(t, mgr.DeleteAID("alice.ex.com"))

	_, err = mgr.LoadAID("alice.ex.com", "pw")
	require.Error(t, err)
	assert.Equal(t, acperrors.AIDNotFound, acperrors.CodeOf(err))
}
