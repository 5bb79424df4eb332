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

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/pkg/acp/acperrors"
	"github.com/acp-project/acp-go/pkg/acp/channel"
	"github.com/acp-project/acp-go/pkg/acp/store"
)

const createSessionAckTimeout = 10 * time.Second

// Manager owns the set of P2P sessions for a single AID and mirrors server
// acks into local state.
type Manager struct {
	aid string
	ch  *channel.Client
	st  *store.Store
	log logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	orphanCounter int64
}

// New builds a Manager for aid, sending session_* commands over ch and
// persisting message logs under st.
func New(aid string, ch *channel.Client, st *store.Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Manager{
		aid:      aid,
		ch:       ch,
		st:       st,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Get returns an existing session by ID.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// List returns every locally known session ID.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CreateSession creates a session containing members (excluding self). If
// the message channel is connected it round-trips create_session_req and
// invites the remaining members one by one; otherwise it falls back to a
// locally generated orphan session id.
func (m *Manager) CreateSession(ctx context.Context, members []string) (*Session, error) {
	if m.ch == nil || !m.ch.IsConnected() {
		return m.createOrphanSession(members), nil
	}

	ack, err := m.ch.SendAndWaitAck(ctx, "create_session_req", map[string]interface{}{
		"type": "public",
	}, createSessionAckTimeout)
	if err != nil {
		m.log.Warn("create_session_req failed, falling back to orphan session", logger.Error(err))
		return m.createOrphanSession(members), nil
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(ack.Data, &body); err != nil || body.SessionID == "" {
		return nil, acperrors.Wrap(acperrors.Internal, "decode create_session_ack", err)
	}

	sess := newSession(body.SessionID, KindPublic)
	sess.addMember(m.aid, RoleOwner)
	m.put(sess)

	for _, memberID := range members {
		if memberID == m.aid {
			continue
		}
		if err := m.InviteAgent(ctx, sess.ID, memberID); err != nil {
			m.log.Warn("invite_agent during create_session failed",
				logger.String("session_id", sess.ID), logger.String("agent_id", memberID), logger.Error(err))
		}
	}
	return sess, nil
}

func (m *Manager) createOrphanSession(members []string) *Session {
	n := atomic.AddInt64(&m.orphanCounter, 1)
	id := fmt.Sprintf("session-%d-%d", time.Now().UnixMilli(), n)
	sess := newSession(id, KindOrphan)
	sess.addMember(m.aid, RoleOwner)
	for _, memberID := range members {
		if memberID != m.aid {
			sess.addMember(memberID, RoleMember)
		}
	}
	m.put(sess)
	return sess
}

// InviteAgent sends invite_agent_req and optimistically records the
// invitee as a member, deduplicated by agent_id.
func (m *Manager) InviteAgent(ctx context.Context, sessionID, agentID string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return acperrors.New(acperrors.SessionNotFound, "session not found: "+sessionID)
	}

	if m.ch != nil && m.ch.IsConnected() {
		if err := m.ch.Send("invite_agent_req", map[string]interface{}{
			"session_id": sessionID,
			"agent_id":   agentID,
			"request_id": newRequestID(),
			"timestamp":  time.Now().UnixMilli(),
		}); err != nil {
			return acperrors.Wrap(acperrors.WSSendFailed, "send invite_agent_req", err)
		}
	}
	sess.addMember(agentID, RoleMember)
	return nil
}

// JoinSession sends join_session_req and records self as a member.
func (m *Manager) JoinSession(ctx context.Context, sessionID string) error {
	if m.ch == nil || !m.ch.IsConnected() {
		return acperrors.New(acperrors.WSDisconnected, "message channel not connected")
	}
	if err := m.ch.Send("join_session_req", map[string]interface{}{
		"session_id": sessionID,
		"request_id": newRequestID(),
		"timestamp":  time.Now().UnixMilli(),
	}); err != nil {
		return acperrors.Wrap(acperrors.WSSendFailed, "send join_session_req", err)
	}

	sess, ok := m.Get(sessionID)
	if !ok {
		sess = newSession(sessionID, KindPublic)
		m.put(sess)
	}
	sess.addMember(m.aid, RoleMember)
	return nil
}

// LeaveSession sends leave_session_req and removes self from the session.
func (m *Manager) LeaveSession(ctx context.Context, sessionID string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return acperrors.New(acperrors.SessionNotFound, "session not found: "+sessionID)
	}
	if m.ch != nil && m.ch.IsConnected() {
		if err := m.ch.Send("leave_session_req", map[string]interface{}{
			"session_id": sessionID,
			"request_id": newRequestID(),
			"timestamp":  time.Now().UnixMilli(),
		}); err != nil {
			return acperrors.Wrap(acperrors.WSSendFailed, "send leave_session_req", err)
		}
	}
	sess.removeMember(m.aid)
	return nil
}

// CloseSession sends close_session_req and marks the session closed.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return acperrors.New(acperrors.SessionNotFound, "session not found: "+sessionID)
	}
	if m.ch != nil && m.ch.IsConnected() {
		if err := m.ch.Send("close_session_req", map[string]interface{}{
			"session_id": sessionID,
			"request_id": newRequestID(),
			"timestamp":  time.Now().UnixMilli(),
		}); err != nil {
			return acperrors.Wrap(acperrors.WSSendFailed, "send close_session_req", err)
		}
	}
	sess.mu.Lock()
	sess.Closed = true
	sess.mu.Unlock()
	return nil
}

// EjectAgent sends eject_agent_req and removes the member locally.
func (m *Manager) EjectAgent(ctx context.Context, sessionID, agentID string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return acperrors.New(acperrors.SessionNotFound, "session not found: "+sessionID)
	}
	if _, member := sess.Members()[agentID]; !member {
		return acperrors.New(acperrors.MemberNotFound, "member not found: "+agentID)
	}
	if m.ch != nil && m.ch.IsConnected() {
		if err := m.ch.Send("eject_agent_req", map[string]interface{}{
			"session_id": sessionID,
			"agent_id":   agentID,
			"request_id": newRequestID(),
			"timestamp":  time.Now().UnixMilli(),
		}); err != nil {
			return acperrors.Wrap(acperrors.WSSendFailed, "send eject_agent_req", err)
		}
	}
	sess.removeMember(agentID)
	return nil
}

// GetMemberList sends get_member_list_req and waits for the ack, updating
// local membership to match the server's authoritative answer.
func (m *Manager) GetMemberList(ctx context.Context, sessionID string) (map[string]Role, error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return nil, acperrors.New(acperrors.SessionNotFound, "session not found: "+sessionID)
	}
	if m.ch == nil || !m.ch.IsConnected() {
		return sess.Members(), nil
	}

	ack, err := m.ch.SendAndWaitAck(ctx, "get_member_list_req", map[string]interface{}{
		"session_id": sessionID,
	}, createSessionAckTimeout)
	if err != nil {
		return nil, err
	}

	var body struct {
		Members []struct {
			AgentID string `json:"agent_id"`
			Role    string `json:"role"`
		} `json:"members"`
	}
	if err := json.Unmarshal(ack.Data, &body); err != nil {
		return nil, acperrors.Wrap(acperrors.Internal, "decode get_member_list_ack", err)
	}

	members := make(map[string]Role, len(body.Members))
	for _, mem := range body.Members {
		members[mem.AgentID] = Role(mem.Role)
	}
	sess.mu.Lock()
	sess.members = members
	sess.mu.Unlock()
	return sess.Members(), nil
}

// SendMessage URL-encodes blocks (a JSON array) and emits a session_message
// frame. Refuses on a closed session.
func (m *Manager) SendMessage(ctx context.Context, sessionID string, blocks interface{}, instruction string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return acperrors.New(acperrors.SessionNotFound, "session not found: "+sessionID)
	}
	sess.mu.RLock()
	closed := sess.Closed
	sess.mu.RUnlock()
	if closed {
		return acperrors.New(acperrors.SessionClosed, "session closed: "+sessionID)
	}
	if m.ch == nil || !m.ch.IsConnected() {
		return acperrors.New(acperrors.WSDisconnected, "message channel not connected")
	}

	blocksJSON, err := json.Marshal(blocks)
	if err != nil {
		return acperrors.Wrap(acperrors.Internal, "marshal message blocks", err)
	}
	encoded := url.QueryEscape(string(blocksJSON))

	payload := map[string]interface{}{
		"session_id": sessionID,
		"message":    encoded,
		"request_id": newRequestID(),
		"timestamp":  time.Now().UnixMilli(),
	}
	if instruction != "" {
		payload["instruction"] = instruction
	}
	if err := m.ch.Send("session_message", payload); err != nil {
		return acperrors.Wrap(acperrors.WSSendFailed, "send session_message", err)
	}

	sess.appendLog(Message{From: m.aid, Blocks: string(blocksJSON), SentAt: time.Now()})
	m.persistLog(sess, Message{From: m.aid, Blocks: string(blocksJSON), SentAt: time.Now()})
	return nil
}

// HandleIncoming is the raw-frame hook's fallback path for session_message
// frames the group protocol didn't claim: it locates the session or
// auto-creates an "incoming" one with the sender as peer, then appends to
// the log.
func (m *Manager) HandleIncoming(sessionID, from, encodedBlocks string) {
	sess, ok := m.Get(sessionID)
	if !ok {
		sess = newSession(sessionID, KindIncoming)
		sess.addMember(m.aid, RoleOwner)
		sess.addMember(from, RolePeer)
		m.put(sess)
	}

	decoded, err := url.QueryUnescape(encodedBlocks)
	if err != nil {
		decoded = encodedBlocks
	}
	msg := Message{From: from, Blocks: decoded, SentAt: time.Now(), Incoming: true}
	sess.appendLog(msg)
	m.persistLog(sess, msg)
}

func (m *Manager) put(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
}

func (m *Manager) persistLog(sess *Session, msg Message) {
	if m.st == nil {
		return
	}
	f, err := m.st.AppendFile(m.st.SessionLogPath(m.aid, sess.ID))
	if err != nil {
		m.log.Warn("persist session log failed", logger.Error(err))
		return
	}
	defer f.Close()

	line, err := json.Marshal(msg)
	if err != nil {
		return
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		m.log.Warn("write session log line failed", logger.Error(err))
	}
}

func newRequestID() string {
	return uuid.New().String()
}

// ChannelHandler adapts HandleIncoming into a channel.SessionMessageHandler,
// for wiring into channel.New(..., channel.WithSessionMessageHandler(...)).
func (m *Manager) ChannelHandler() channel.SessionMessageHandler {
	return func(f channel.Frame) {
		var body struct {
			SessionID string `json:"session_id"`
			Message   string `json:"message"`
			From      string `json:"from"`
		}
		if err := json.Unmarshal(f.Data, &body); err != nil {
			m.log.Warn("decode inbound session_message failed", logger.Error(err))
			return
		}
		m.HandleIncoming(body.SessionID, body.From, body.Message)
	}
}
