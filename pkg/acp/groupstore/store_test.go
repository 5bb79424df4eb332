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

package groupstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acp-project/acp-go/pkg/acp/group"
	"github.com/acp-project/acp-go/pkg/acp/groupstore"
)

func TestAppendMessages_SortsAndDropsAlreadyKnown(t *testing.T) {
	dir := t.TempDir()
	st := groupstore.New(dir, "did:acp:agent1")

	err := st.AppendMessages("g1", []group.Message{
		{MsgID: 3}, {MsgID: 1}, {MsgID: 2},
	})
	require.NoError(t, err)

	stored, err := st.ReadMessages("g1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{stored[0].MsgID, stored[1].MsgID, stored[2].MsgID})

	last, err := st.LastLocalMsgID("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)

	// Re-appending a mix of already-known and new ids keeps only the new.
	err = st.AppendMessages("g1", []group.Message{{MsgID: 2}, {MsgID: 4}})
	require.NoError(t, err)

	stored, err = st.ReadMessages("g1")
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Equal(t, int64(4), stored[3].MsgID)
}

func TestAppendMessages_EvictsOldestOnceOverCap(t *testing.T) {
	dir := t.TempDir()
	st := groupstore.New(dir, "did:acp:agent1").WithCaps(3, 3)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, st.AppendMessages("g1", []group.Message{{MsgID: i}}))
	}

	stored, err := st.ReadMessages("g1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{stored[0].MsgID, stored[1].MsgID, stored[2].MsgID})
}

func TestCursor_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	st1 := groupstore.New(dir, "did:acp:agent1")
	require.NoError(t, st1.AppendMessages("g1", []group.Message{{MsgID: 1}, {MsgID: 2}}))

	st2 := groupstore.New(dir, "did:acp:agent1")
	cursor, err := st2.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursor.CurrentMsgID)
	assert.Equal(t, int64(2), cursor.LatestMsgID)
	assert.Equal(t, int64(1), cursor.StartMsgID)
}
