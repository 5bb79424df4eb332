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

// Package identity manages the per-agent AID lifecycle: create/load/list/
// delete, CA/AP sign-in, and entrypoint discovery.
package identity

import (
	"sync"
	"time"

	acpcrypto "github.com/acp-project/acp-go/pkg/acp/crypto"
)

// State is the connection state of one AgentRuntime.
type State int

const (
	StateOffline State = iota
	StateConnecting
	StateAuthenticating
	StateOnline
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "Offline"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateOnline:
		return "Online"
	case StateReconnecting:
		return "Reconnecting"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// AgentIdentity's fields do not change after creation, except that a
// loaded identity's Fingerprint is filled in when KeyPair first decrypts
// its key.
type AgentIdentity struct {
	AID            string
	CertPEM        []byte
	PrivateKeyPEM  []byte // AES-encrypted PKCS#8, decrypted lazily on first use
	CSRPEM         []byte
	KeyType        acpcrypto.KeyType
	Fingerprint    string
	seedPassword   string
	decryptedKey   acpcrypto.KeyPair
	decryptedKeyMu sync.Mutex
}

// ConnectionConfig is the ephemeral result of a successful Online() flow.
type ConnectionConfig struct {
	MessageServer     string
	HeartbeatServer   string
	MessageSignature  string
	MessageSigExpires time.Time // zero if the token carries no exp claim
}

// AgentRuntime tracks the live connection state for one online AID.
type AgentRuntime struct {
	AID   string
	mu    sync.RWMutex
	state State
	conn  *ConnectionConfig
}

func newAgentRuntime(aid string) *AgentRuntime {
	return &AgentRuntime{AID: aid, state: StateOffline}
}

// State returns the runtime's current connection state.
func (r *AgentRuntime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// SetState transitions the runtime to a new state.
func (r *AgentRuntime) SetState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

// ConnectionConfig returns the runtime's current connection config, or nil
// if never signed in.
func (r *AgentRuntime) ConnectionConfig() *ConnectionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

func (r *AgentRuntime) setConnectionConfig(cfg *ConnectionConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn = cfg
}
