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

// Package groupstore is the per-group JSONL message/event log and cursor
// persistence layer behind pkg/acp/group's Store interface.
package groupstore

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
	"github.com/acp-project/acp-go/pkg/acp/group"
	fsstore "github.com/acp-project/acp-go/pkg/acp/store"
)

const (
	defaultMessageCap = 5000
	defaultEventCap   = 2000
)

// Cursor is the persisted sync position for one group, mirroring
// group.Cursor's wire shape.
type Cursor struct {
	StartMsgID   int64 `json:"start_msg_id"`
	CurrentMsgID int64 `json:"current_msg_id"`
	LatestMsgID  int64 `json:"latest_msg_id"`
	UnreadCount  int64 `json:"unread_count"`

	StartEventID   int64 `json:"start_event_id"`
	CurrentEventID int64 `json:"current_event_id"`
	LatestEventID  int64 `json:"latest_event_id"`
}

// CursorStore persists per-group cursors. groupstore.PostgresCursorStore
// implements it, for agents that want cursor state to survive a
// local-disk wipe. Store does not implement it: Store keeps its own
// cursors in .cursors.json through Get/Set keyed by group id alone.
type CursorStore interface {
	Get(aid, groupID string) (Cursor, error)
	Set(aid, groupID string, c Cursor) error
}

// Store is the file-backed groupstore.Store: JSONL append-only message
// and event logs with cap-based eviction, plus per-group cursors
// rewritten atomically in .cursors.json on each advance. It satisfies
// group.Store.
type Store struct {
	fs      *fsstore.Store
	aid     string
	msgCap  int
	eventCap int

	mu        sync.Mutex
	cursors   map[string]Cursor // in-memory mirror of .cursors.json, keyed by group id
	loadedCur bool
}

// New builds a Store rooted at basePath/AIDs/<aid>/groups, with the
// spec's default caps (5000 messages / 2000 events per group).
func New(basePath, aid string) *Store {
	return &Store{
		fs:       fsstore.New(basePath),
		aid:      aid,
		msgCap:   defaultMessageCap,
		eventCap: defaultEventCap,
		cursors:  make(map[string]Cursor),
	}
}

// WithCaps overrides the default message/event line caps (for tests).
func (s *Store) WithCaps(msgCap, eventCap int) *Store {
	s.msgCap = msgCap
	s.eventCap = eventCap
	return s
}

// LastLocalMsgID implements group.Store: the locally persisted
// latest_msg_id, used to resume pull_and_store after a restart.
func (s *Store) LastLocalMsgID(groupID string) (int64, error) {
	c, err := s.Get(groupID)
	if err != nil {
		return 0, err
	}
	return c.LatestMsgID, nil
}

// AppendMessages implements group.Store: sort by msg_id, drop anything
// at or below the last known msg_id, append survivors one JSON line
// each, then evict from the front if the cap is exceeded. Per spec.md
// §4.10.
func (s *Store) AppendMessages(groupID string, messages []group.Message) error {
	if err := fsstore.ValidateGroupID(groupID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	sorted := make([]group.Message, len(messages))
	copy(sorted, messages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MsgID < sorted[j].MsgID })

	cursor, err := s.Get(groupID)
	if err != nil {
		return err
	}

	survivors := make([]group.Message, 0, len(sorted))
	for _, m := range sorted {
		if m.MsgID <= cursor.CurrentMsgID {
			continue
		}
		survivors = append(survivors, m)
	}
	if len(survivors) == 0 {
		return nil
	}

	path := s.fs.GroupMessagesPath(s.aid, groupID)
	if err := s.appendLines(path, survivors); err != nil {
		return err
	}
	if err := s.evictIfOverCap(path, s.msgCap); err != nil {
		return err
	}

	latest := survivors[len(survivors)-1].MsgID
	cursor.CurrentMsgID = latest
	if latest > cursor.LatestMsgID {
		cursor.LatestMsgID = latest
	}
	if cursor.StartMsgID == 0 {
		cursor.StartMsgID = survivors[0].MsgID
	}
	return s.Set(groupID, cursor)
}

// AppendEvents mirrors AppendMessages for the event log.
func (s *Store) AppendEvents(groupID string, events []group.Event) error {
	if err := fsstore.ValidateGroupID(groupID); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	sorted := make([]group.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EventID < sorted[j].EventID })

	cursor, err := s.Get(groupID)
	if err != nil {
		return err
	}

	survivors := make([]group.Event, 0, len(sorted))
	for _, e := range sorted {
		if e.EventID <= cursor.CurrentEventID {
			continue
		}
		survivors = append(survivors, e)
	}
	if len(survivors) == 0 {
		return nil
	}

	path := s.fs.GroupEventsPath(s.aid, groupID)
	if err := s.appendLines(path, survivors); err != nil {
		return err
	}
	if err := s.evictIfOverCap(path, s.eventCap); err != nil {
		return err
	}

	latest := survivors[len(survivors)-1].EventID
	cursor.CurrentEventID = latest
	if latest > cursor.LatestEventID {
		cursor.LatestEventID = latest
	}
	if cursor.StartEventID == 0 {
		cursor.StartEventID = survivors[0].EventID
	}
	return s.Set(groupID, cursor)
}

func (s *Store) appendLines(path string, items interface{}) error {
	f, err := s.fs.AppendFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	switch v := items.(type) {
	case []group.Message:
		for _, m := range v {
			line, err := json.Marshal(m)
			if err != nil {
				return acperrors.Wrap(acperrors.Internal, "marshal message line", err)
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return acperrors.Wrap(acperrors.FileError, "write message line", err)
			}
		}
	case []group.Event:
		for _, e := range v {
			line, err := json.Marshal(e)
			if err != nil {
				return acperrors.Wrap(acperrors.Internal, "marshal event line", err)
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return acperrors.Wrap(acperrors.FileError, "write event line", err)
			}
		}
	}
	return w.Flush()
}

// evictIfOverCap shifts the oldest lines out on the next write once the
// log exceeds capacity lines, per spec.md §4.10.
func (s *Store) evictIfOverCap(path string, capacity int) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	if len(lines) <= capacity {
		return nil
	}
	kept := lines[len(lines)-capacity:]
	data := make([]byte, 0, len(kept)*64)
	for _, l := range kept {
		data = append(data, l...)
		data = append(data, '\n')
	}
	return s.fs.WriteFile(path, data, 0o600)
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, acperrors.Wrap(acperrors.FileError, "open log for eviction scan", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, acperrors.Wrap(acperrors.FileError, "scan log for eviction", err)
	}
	return lines, nil
}

// ReadMessages returns every stored message for groupID, in file order
// (already ascending by msg_id since AppendMessages only ever appends
// in sorted order).
func (s *Store) ReadMessages(groupID string) ([]group.Message, error) {
	if err := fsstore.ValidateGroupID(groupID); err != nil {
		return nil, err
	}
	lines, err := readLines(s.fs.GroupMessagesPath(s.aid, groupID))
	if err != nil {
		return nil, err
	}
	messages := make([]group.Message, 0, len(lines))
	for _, line := range lines {
		var m group.Message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, acperrors.Wrap(acperrors.Internal, "decode stored message", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Get returns the persisted cursor for groupID, or a zero Cursor if
// none has been recorded yet.
func (s *Store) Get(groupID string) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadCursorsLocked(); err != nil {
		return Cursor{}, err
	}
	return s.cursors[groupID], nil
}

// Set persists cursor for groupID, rewriting .cursors.json atomically.
func (s *Store) Set(groupID string, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadCursorsLocked(); err != nil {
		return err
	}
	s.cursors[groupID] = c
	return s.saveCursorsLocked()
}

func (s *Store) loadCursorsLocked() error {
	if s.loadedCur {
		return nil
	}
	data, err := s.fs.ReadFile(s.fs.CursorsPath(s.aid))
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.cursors); err != nil {
			return acperrors.Wrap(acperrors.Internal, "decode cursors file", err)
		}
	}
	s.loadedCur = true
	return nil
}

func (s *Store) saveCursorsLocked() error {
	data, err := json.Marshal(s.cursors)
	if err != nil {
		return acperrors.Wrap(acperrors.Internal, "marshal cursors file", err)
	}
	return s.fs.WriteFile(s.fs.CursorsPath(s.aid), data, 0o600)
}
