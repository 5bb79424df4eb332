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

package httpclient

import (
	"context"
	"encoding/json"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// SignCertRequest is the CA's sign_cert request body.
type SignCertRequest struct {
	ID  string `json:"id"`
	CSR string `json:"csr"`
}

// SignCertResponse carries the issued PEM certificate.
type SignCertResponse struct {
	Certificate string `json:"certificate"`
}

// SignCert posts a CSR to caBase/api/accesspoint/sign_cert.
func (c *Client) SignCert(ctx context.Context, caBase string, req SignCertRequest) (*SignCertResponse, error) {
	var resp SignCertResponse
	if err := c.PostJSON(ctx, caBase+"/api/accesspoint/sign_cert", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignInRound1Request starts the two-round sign-in handshake.
type SignInRound1Request struct {
	AgentID    string `json:"agent_id"`
	RequestID  string `json:"request_id"`
	ClientInfo string `json:"client_info,omitempty"`
}

// SignInRound1Response carries the server-issued nonce.
type SignInRound1Response struct {
	Nonce string `json:"nonce"`
}

// SignInRound2Request proves possession of the AID's private key.
type SignInRound2Request struct {
	AgentID   string `json:"agent_id"`
	RequestID string `json:"request_id"`
	Nonce     string `json:"nonce"`
	PublicKey string `json:"public_key"`
	Cert      string `json:"cert"`
	Signature string `json:"signature"`
}

// SignInRound2Response carries the session token.
type SignInRound2Response struct {
	Signature string `json:"signature"`
}

// SignInRound1 performs round 1 of sign_in: request a nonce.
func (c *Client) SignInRound1(ctx context.Context, base string, req SignInRound1Request) (*SignInRound1Response, error) {
	var resp SignInRound1Response
	if err := c.PostJSON(ctx, base+"/api/accesspoint/sign_in", req, &resp); err != nil {
		return nil, err
	}
	if resp.Nonce == "" {
		return nil, acperrors.New(acperrors.AuthFailed, "sign_in round 1: empty nonce")
	}
	return &resp, nil
}

// SignInRound2 performs round 2 of sign_in: prove key possession, receive token.
func (c *Client) SignInRound2(ctx context.Context, base string, req SignInRound2Request) (*SignInRound2Response, error) {
	var resp SignInRound2Response
	if err := c.PostJSON(ctx, base+"/api/accesspoint/sign_in", req, &resp); err != nil {
		return nil, err
	}
	if resp.Signature == "" {
		return nil, acperrors.New(acperrors.AuthFailed, "sign_in round 2: empty token")
	}
	return &resp, nil
}

// EntrypointConfig is the decoded inner JSON of get_accesspoint_config.
type EntrypointConfig struct {
	HeartbeatServer string `json:"heartbeat_server"`
	MessageServer   string `json:"message_server"`
}

type getAccessPointConfigResponse struct {
	Config string `json:"config"`
}

// GetEntrypointConfig calls get_accesspoint_config and decodes the
// double-encoded JSON-string config field.
func (c *Client) GetEntrypointConfig(ctx context.Context, base, agentID string) (*EntrypointConfig, error) {
	var raw getAccessPointConfigResponse
	if err := c.PostJSON(ctx, base+"/api/accesspoint/get_accesspoint_config", map[string]string{"agent_id": agentID}, &raw); err != nil {
		return nil, err
	}
	var cfg EntrypointConfig
	if err := json.Unmarshal([]byte(raw.Config), &cfg); err != nil {
		return nil, acperrors.Wrap(acperrors.Internal, "decode entrypoint config", err)
	}
	return &cfg, nil
}

// SignOut posts sign_out for agentID.
func (c *Client) SignOut(ctx context.Context, base, agentID string) error {
	return c.PostJSON(ctx, base+"/api/accesspoint/sign_out", map[string]string{"agent_id": agentID}, nil)
}

// GuestCert is the response shape of sign_guest_cert.
type GuestCert struct {
	GuestAID string `json:"guest_aid"`
	Key      string `json:"key"`
	Cert     string `json:"cert"`
}

// SignGuestCert fetches an ephemeral guest AID from the access point.
func (c *Client) SignGuestCert(ctx context.Context, apBase string) (*GuestCert, error) {
	var resp GuestCert
	if err := c.GetJSON(ctx, apBase+"/sign_guest_cert", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
