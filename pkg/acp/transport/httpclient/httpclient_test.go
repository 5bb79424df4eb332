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

package httpclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acp-project/acp-go/pkg/acp/transport/httpclient"
)

func TestSignCert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/accesspoint/sign_cert", r.URL.Path)
		var req httpclient.SignCertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice.ex.com", req.ID)

		_ = json.NewEncoder(w).Encode(httpclient.SignCertResponse{Certificate: "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----"})
	}))
	defer server.Close()

	c := httpclient.New()
	resp, err := c.SignCert(context.Background(), server.URL, httpclient.SignCertRequest{ID: "alice.ex.com", CSR: "csr-pem"})
	require.NoError(t, err)
	assert.Contains(t, resp.Certificate, "CERTIFICATE")
}

func TestSignInTwoRounds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if bytes.Contains(body, []byte(`"nonce"`)) {
			_ = json.NewEncoder(w).Encode(httpclient.SignInRound2Response{Signature: "session-token"})
			return
		}
		_ = json.NewEncoder(w).Encode(httpclient.SignInRound1Response{Nonce: "server-nonce"})
	}))
	defer server.Close()

	c := httpclient.New()
	round1, err := c.SignInRound1(context.Background(), server.URL, httpclient.SignInRound1Request{AgentID: "alice.ex.com", RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "server-nonce", round1.Nonce)

	round2, err := c.SignInRound2(context.Background(), server.URL, httpclient.SignInRound2Request{
		AgentID: "alice.ex.com", RequestID: "r1", Nonce: round1.Nonce, Signature: "sig",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-token", round2.Signature)
}

func TestSignInRound1_EmptyNonceFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpclient.SignInRound1Response{})
	}))
	defer server.Close()

	c := httpclient.New()
	_, err := c.SignInRound1(context.Background(), server.URL, httpclient.SignInRound1Request{AgentID: "a"})
	assert.Error(t, err)
}

func TestGetEntrypointConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner, _ := json.Marshal(httpclient.EntrypointConfig{HeartbeatServer: "hb.ex.com:9000", MessageServer: "wss://msg.ex.com/ws"})
		_ = json.NewEncoder(w).Encode(map[string]string{"config": string(inner)})
	}))
	defer server.Close()

	c := httpclient.New()
	cfg, err := c.GetEntrypointConfig(context.Background(), server.URL, "alice.ex.com")
	require.NoError(t, err)
	assert.Equal(t, "hb.ex.com:9000", cfg.HeartbeatServer)
	assert.Equal(t, "wss://msg.ex.com/ws", cfg.MessageServer)
}

func TestPostJSON_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad signature"}`))
	}))
	defer server.Close()

	c := httpclient.New()
	err := c.PostJSON(context.Background(), server.URL, map[string]string{"a": "b"}, nil)
	assert.Error(t, err)
}

func TestUploadAndDownloadFile(t *testing.T) {
	var uploaded []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/oss/upload_file":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "alice.ex.com", r.FormValue("agent_id"))
			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			uploaded, _ = io.ReadAll(file)
			w.WriteHeader(http.StatusOK)
		case "/api/oss/download_file":
			assert.Equal(t, "report.txt", r.URL.Query().Get("file_name"))
			_, _ = w.Write(uploaded)
		}
	}))
	defer server.Close()

	c := httpclient.New()
	err := c.UploadFile(context.Background(), server.URL, "alice.ex.com", "sig", "report.txt", bytes.NewReader([]byte("hello oss")))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = c.DownloadFile(context.Background(), server.URL, "alice.ex.com", "sig", "report.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "hello oss", buf.String())
}

func TestFetchAgentCard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent.md", r.URL.Path)
		_, _ = w.Write([]byte("---\ntype: assistant\nname: Alice\n---\n"))
	}))
	defer server.Close()

	c := httpclient.New()
	data, err := c.FetchAgentCard(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Alice")
}

func TestFetchAgentCard_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := httpclient.New()
	_, err := c.FetchAgentCard(context.Background(), server.URL)
	assert.Error(t, err)
}
