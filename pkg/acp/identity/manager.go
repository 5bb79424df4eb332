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
	"sync"

	"github.com/google/uuid"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/internal/metrics"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
	acpcrypto "github.com/acp-project/acp-go/pkg/acp/crypto"
	"github.com/acp-project/acp-go/pkg/acp/store"
	"github.com/acp-project/acp-go/pkg/acp/transport/httpclient"
	"github.com/acp-project/acp-go/pkg/version"
)

// Manager provides a unified interface for AID lifecycle and CA/AP
// sign-in, generalized from a multi-chain DID registry to a single-issuer
// identity store plus CA/AP sign-in.
type Manager struct {
	store    *store.Store
	http     *httpclient.Client
	log      logger.Logger
	runtimes map[string]*AgentRuntime
	mu       sync.RWMutex
}

// New builds a Manager rooted at the given store base path.
func New(basePath string, opts ...Option) *Manager {
	m := &Manager{
		store:    store.New(basePath),
		http:     httpclient.New(),
		log:      logger.NewDefaultLogger(),
		runtimes: make(map[string]*AgentRuntime),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient substitutes the HTTP client used for CA/AP calls.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(m *Manager) { m.http = c }
}

// WithLogger substitutes the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// CreateAID generates a key and CSR, signs it at the CA, and persists the
// resulting identity. Fails AID_ALREADY_EXISTS, CERT_ERROR, NETWORK_ERROR.
func (m *Manager) CreateAID(ctx context.Context, caBase, aid, seedPassword string) (*AgentIdentity, error) {
	if err := store.ValidateAID(aid); err != nil {
		return nil, err
	}
	if m.store.Exists(m.store.CertPath(aid)) {
		return nil, acperrors.New(acperrors.AIDAlreadyExists, "aid already exists: "+aid)
	}

	keyPEM, kp, err := acpcrypto.GenerateP384Key()
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "generate key", err)
	}

	csrPEM, err := acpcrypto.GenerateCSR(aid, keyPEM)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.CertError, "generate csr", err)
	}

	resp, err := m.http.SignCert(ctx, caBase, httpclient.SignCertRequest{ID: aid, CSR: string(csrPEM)})
	if err != nil {
		metrics.SignInsFailed.WithLabelValues("sign_cert").Inc()
		return nil, err
	}
	certPEM := []byte(resp.Certificate)

	if err := m.store.WriteFile(m.store.CSRPath(aid), csrPEM, 0o600); err != nil {
		return nil, err
	}
	if err := acpcrypto.SavePrivateKeyPEM(m.store.PrivateKeyPath(aid), keyPEM, seedPassword); err != nil {
		return nil, err
	}
	if err := m.store.WriteFile(m.store.CertPath(aid), certPEM, 0o644); err != nil {
		return nil, err
	}
	encryptedKeyPEM, err := m.store.ReadFile(m.store.PrivateKeyPath(aid))
	if err != nil {
		return nil, err
	}

	pubBytes, err := acpcrypto.PublicKeyBytes(kp)
	fingerprint := ""
	if err == nil {
		fingerprint = acpcrypto.Fingerprint(pubBytes)
	}

	return &AgentIdentity{
		AID:           aid,
		CertPEM:       certPEM,
		PrivateKeyPEM: encryptedKeyPEM,
		CSRPEM:        csrPEM,
		KeyType:       acpcrypto.KeyTypeP384,
		Fingerprint:   fingerprint,
		seedPassword:  seedPassword,
		decryptedKey:  kp,
	}, nil
}

// LoadAID loads a persisted identity. Fails AID_NOT_FOUND if the cert is
// missing; the private key is decrypted lazily on first Sign/KeyPair use.
func (m *Manager) LoadAID(aid, seedPassword string) (*AgentIdentity, error) {
	if err := store.ValidateAID(aid); err != nil {
		return nil, err
	}
	certPEM, err := m.store.ReadFile(m.store.CertPath(aid))
	if err != nil {
		return nil, err
	}
	if certPEM == nil {
		return nil, acperrors.New(acperrors.AIDNotFound, "aid not found: "+aid)
	}

	encryptedKeyPEM, err := m.store.ReadFile(m.store.PrivateKeyPath(aid))
	if err != nil {
		return nil, err
	}
	csrPEM, _ := m.store.ReadFile(m.store.CSRPath(aid))

	return &AgentIdentity{
		AID:           aid,
		CertPEM:       certPEM,
		PrivateKeyPEM: encryptedKeyPEM,
		CSRPEM:        csrPEM,
		KeyType:       acpcrypto.KeyTypeP384,
		seedPassword:  seedPassword,
	}, nil
}

// KeyPair lazily decrypts and parses the identity's private key.
func (id *AgentIdentity) KeyPair(path string) (acpcrypto.KeyPair, error) {
	id.decryptedKeyMu.Lock()
	defer id.decryptedKeyMu.Unlock()
	if id.decryptedKey != nil {
		return id.decryptedKey, nil
	}

	keyPEM, err := acpcrypto.LoadPrivateKeyPEM(path, id.seedPassword)
	if err != nil {
		return nil, err
	}
	kp, err := acpcrypto.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, err
	}
	pubBytes, err := acpcrypto.PublicKeyBytes(kp)
	if err == nil {
		id.Fingerprint = acpcrypto.Fingerprint(pubBytes)
	}
	id.decryptedKey = kp
	return kp, nil
}

// ListAIDs returns the set of AIDs with both a key and a certificate on disk.
func (m *Manager) ListAIDs() ([]string, error) {
	return m.store.ListAIDs()
}

// DeleteAID wipes the on-disk directory and invalidates any runtime handle.
func (m *Manager) DeleteAID(aid string) error {
	m.mu.Lock()
	delete(m.runtimes, aid)
	m.mu.Unlock()
	return m.store.DeleteAIDDir(aid)
}

// Runtime returns (creating if absent) the AgentRuntime for aid. The
// Identity Manager is the map's single writer; other components only look
// up entries, never control their lifetime.
func (m *Manager) Runtime(aid string) *AgentRuntime {
	m.mu.RLock()
	rt, ok := m.runtimes[aid]
	m.mu.RUnlock()
	if ok {
		return rt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[aid]; ok {
		return rt
	}
	rt = newAgentRuntime(aid)
	m.runtimes[aid] = rt
	return rt
}

func newRequestID() string {
	return uuid.New().String()
}

func clientInfo() string {
	return version.UserAgent()
}
