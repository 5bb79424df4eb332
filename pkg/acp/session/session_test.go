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

package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acp-project/acp-go/pkg/acp/session"
)

// With no channel client wired, CreateSession must fall back to a locally
// generated orphan session id per spec.md §4.6.
func TestCreateSession_FallsBackToOrphanWhenDisconnected(t *testing.T) {
	mgr := session.New("did:acp:agent1", nil, nil, nil)

	sess, err := mgr.CreateSession(context.Background(), []string{"did:acp:agent1", "did:acp:agent2"})
	require.NoError(t, err)
	assert.Equal(t, session.KindOrphan, sess.Kind)

	members := sess.Members()
	assert.Equal(t, session.RoleOwner, members["did:acp:agent1"])
	assert.Equal(t, session.RoleMember, members["did:acp:agent2"])
}

func TestSendMessage_RefusesOnClosedSession(t *testing.T) {
	mgr := session.New("did:acp:agent1", nil, nil, nil)
	sess, err := mgr.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, mgr.CloseSession(context.Background(), sess.ID))

	err = mgr.SendMessage(context.Background(), sess.ID, []string{"hello"}, "")
	assert.Error(t, err)
}

func TestHandleIncoming_AutoCreatesSession(t *testing.T) {
	mgr := session.New("did:acp:agent1", nil, nil, nil)

	mgr.HandleIncoming("session-remote-1", "did:acp:agent2", "%5B%22hi%22%5D")

	sess, ok := mgr.Get("session-remote-1")
	require.True(t, ok)
	assert.Equal(t, session.KindIncoming, sess.Kind)

	log := sess.Log()
	require.Len(t, log, 1)
	assert.Equal(t, "did:acp:agent2", log[0].From)
	assert.True(t, log[0].Incoming)
	assert.Equal(t, `["hi"]`, log[0].Blocks)
}

func TestEjectAgent_FailsForUnknownMember(t *testing.T) {
	mgr := session.New("did:acp:agent1", nil, nil, nil)
	sess, err := mgr.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	err = mgr.EjectAgent(context.Background(), sess.ID, "did:acp:unknown")
	assert.Error(t, err)
}
