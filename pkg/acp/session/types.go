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

// Package session is the P2P Session Manager: create/invite/join/leave/
// close/eject over the message channel's session_* commands, plus
// auto-creation of incoming sessions for unsolicited session_message
// frames.
package session

import (
	"sync"
	"time"
)

// Kind distinguishes how a Session came to exist locally.
type Kind string

const (
	// KindPublic is a session created via create_session and acknowledged
	// by the server.
	KindPublic Kind = "public"
	// KindOrphan is a locally generated session created while the message
	// channel was down; the server will not route it until rejoined.
	KindOrphan Kind = "orphan"
	// KindIncoming is auto-created on receipt of a session_message whose
	// session_id has no local record.
	KindIncoming Kind = "incoming"
)

// Role is a member's standing within a Session.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RolePeer   Role = "peer"
)

// Message is one entry in a session's append-only log.
type Message struct {
	From      string    `json:"from"`
	Blocks    string    `json:"blocks"`
	SentAt    time.Time `json:"sent_at"`
	Incoming  bool      `json:"incoming"`
}

// Session is one P2P conversation, identified by a server- or locally-
// generated session_id.
type Session struct {
	ID     string
	Kind   Kind
	Closed bool

	mu      sync.RWMutex
	members map[string]Role
	log     []Message
}

func newSession(id string, kind Kind) *Session {
	return &Session{
		ID:      id,
		Kind:    kind,
		members: make(map[string]Role),
	}
}

// Members returns a snapshot of agent_id -> role.
func (s *Session) Members() map[string]Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Role, len(s.members))
	for id, role := range s.members {
		out[id] = role
	}
	return out
}

func (s *Session) addMember(aid string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[aid]; exists {
		return
	}
	s.members[aid] = role
}

func (s *Session) removeMember(aid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, aid)
}

func (s *Session) appendLog(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, msg)
}

// Log returns a snapshot of the session's message log.
func (s *Session) Log() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.log))
	copy(out, s.log)
	return out
}
