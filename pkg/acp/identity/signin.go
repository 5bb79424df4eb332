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

package identity

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/internal/metrics"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
	acpcrypto "github.com/acp-project/acp-go/pkg/acp/crypto"
	"github.com/acp-project/acp-go/pkg/acp/transport/httpclient"
)

// SignIn runs the two-round nonce sign-in protocol against baseURL for id,
// returning the server-issued message_signature token.
func (m *Manager) SignIn(ctx context.Context, id *AgentIdentity, baseURL string) (string, error) {
	start := timeNow()
	requestID := newRequestID()
	metrics.SignInsInitiated.WithLabelValues("init").Inc()

	round1, err := m.http.SignInRound1(ctx, baseURL, httpclient.SignInRound1Request{
		AgentID:    id.AID,
		RequestID:  requestID,
		ClientInfo: clientInfo(),
	})
	if err != nil {
		metrics.SignInsFailed.WithLabelValues("auth_failed").Inc()
		return "", err
	}
	metrics.SignInDuration.WithLabelValues("init").Observe(time.Since(start).Seconds())

	kp, err := id.KeyPair(m.store.PrivateKeyPath(id.AID))
	if err != nil {
		return "", err
	}

	sigBytes, err := kp.Sign([]byte(round1.Nonce))
	if err != nil {
		return "", acperrors.Wrap(acperrors.InvalidSignature, "sign nonce", err)
	}
	signature := acpcrypto.Hex(sigBytes)

	round2Start := timeNow()
	metrics.SignInsInitiated.WithLabelValues("verify").Inc()
	round2, err := m.http.SignInRound2(ctx, baseURL, httpclient.SignInRound2Request{
		AgentID:   id.AID,
		RequestID: requestID,
		Nonce:     round1.Nonce,
		PublicKey: base64.StdEncoding.EncodeToString(mustPublicKeyBytes(kp)),
		Cert:      string(id.CertPEM),
		Signature: signature,
	})
	if err != nil {
		metrics.SignInsFailed.WithLabelValues("invalid_signature").Inc()
		return "", err
	}
	metrics.SignInDuration.WithLabelValues("verify").Observe(time.Since(round2Start).Seconds())
	metrics.SignInsCompleted.WithLabelValues("ok").Inc()

	return round2.Signature, nil
}

func mustPublicKeyBytes(kp acpcrypto.KeyPair) []byte {
	b, err := acpcrypto.PublicKeyBytes(kp)
	if err != nil {
		return nil
	}
	return b
}

// tokenExpiry opportunistically parses an exp claim out of token if it is
// JWT-shaped, so a revoked/expiring signature can be marked TOKEN_EXPIRED
// without a round trip. A non-JWT opaque token yields a zero time.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// GetEntrypointConfig fetches {heartbeat_server, message_server} for aid.
func (m *Manager) GetEntrypointConfig(ctx context.Context, base, aid string) (*httpclient.EntrypointConfig, error) {
	return m.http.GetEntrypointConfig(ctx, base, aid)
}

// Online runs the full sign-in flow: CA sign-in, AP sign-in, entrypoint
// fetch, producing a ConnectionConfig and marking the runtime Authenticating
// then handing control back to the caller (the Supervisor brings up
// heartbeat + message channel and transitions to Online).
func (m *Manager) Online(ctx context.Context, id *AgentIdentity, caBase, apBase string, log logger.Logger) (*ConnectionConfig, error) {
	rt := m.Runtime(id.AID)
	rt.SetState(StateConnecting)

	if log == nil {
		log = m.log
	}

	rt.SetState(StateAuthenticating)

	if _, err := m.SignIn(ctx, id, caBase); err != nil {
		rt.SetState(StateError)
		return nil, err
	}

	apSignature, err := m.SignIn(ctx, id, apBase)
	if err != nil {
		rt.SetState(StateError)
		return nil, err
	}

	entrypoint, err := m.GetEntrypointConfig(ctx, apBase, id.AID)
	if err != nil {
		rt.SetState(StateError)
		return nil, err
	}

	cfg := &ConnectionConfig{
		MessageServer:     entrypoint.MessageServer,
		HeartbeatServer:   entrypoint.HeartbeatServer,
		MessageSignature:  apSignature,
		MessageSigExpires: tokenExpiry(apSignature),
	}
	rt.setConnectionConfig(cfg)

	log.Info("identity online", logger.String("aid", id.AID), logger.String("message_server", cfg.MessageServer))
	return cfg, nil
}

// SignOut notifies the access point that this AID is going offline.
func (m *Manager) SignOut(ctx context.Context, apBase, aid string) error {
	return m.http.SignOut(ctx, apBase, aid)
}

var timeNow = time.Now
