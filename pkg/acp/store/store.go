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

// Package store owns the on-disk AID directory layout:
//
//	AIDs/<aid>/private/<aid>.key        # encrypted
//	AIDs/<aid>/private/<aid>.csr
//	AIDs/<aid>/public/<aid>.crt
//	AIDs/<aid>/sessions/_index.json
//	AIDs/<aid>/sessions/<session_id>.jsonl
//	AIDs/<aid>/groups/_index.json
//	AIDs/<aid>/groups/.cursors.json
//	AIDs/<aid>/groups/<group_id>/messages.jsonl
//	AIDs/<aid>/groups/<group_id>/events.jsonl
package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// Store roots an AID tree at a configurable base path.
type Store struct {
	basePath string
}

// New builds a Store rooted at basePath/AIDs.
func New(basePath string) *Store {
	return &Store{basePath: filepath.Join(basePath, "AIDs")}
}

// ValidateAID rejects AIDs that would escape the AIDs/ directory tree.
func ValidateAID(aid string) error {
	if aid == "" || strings.ContainsAny(aid, "/\\") || strings.Contains(aid, "..") {
		return acperrors.New(acperrors.InvalidArgument, "invalid aid: "+aid)
	}
	return nil
}

// ValidateGroupID rejects group ids that would escape the
// AIDs/<aid>/groups/ directory tree. Group ids arrive over the wire from
// the group authority/message server, not a local trust boundary, so they
// get the same scrutiny as ValidateAID before being joined into a path.
func ValidateGroupID(groupID string) error {
	if groupID == "" || strings.ContainsAny(groupID, "/\\") || strings.Contains(groupID, "..") {
		return acperrors.New(acperrors.InvalidArgument, "invalid group id: "+groupID)
	}
	return nil
}

func (s *Store) aidDir(aid string) string { return filepath.Join(s.basePath, aid) }

// PrivateKeyPath is AIDs/<aid>/private/<aid>.key.
func (s *Store) PrivateKeyPath(aid string) string {
	return filepath.Join(s.aidDir(aid), "private", aid+".key")
}

// CSRPath is AIDs/<aid>/private/<aid>.csr.
func (s *Store) CSRPath(aid string) string {
	return filepath.Join(s.aidDir(aid), "private", aid+".csr")
}

// CertPath is AIDs/<aid>/public/<aid>.crt.
func (s *Store) CertPath(aid string) string {
	return filepath.Join(s.aidDir(aid), "public", aid+".crt")
}

// SessionsIndexPath is AIDs/<aid>/sessions/_index.json.
func (s *Store) SessionsIndexPath(aid string) string {
	return filepath.Join(s.aidDir(aid), "sessions", "_index.json")
}

// SessionLogPath is AIDs/<aid>/sessions/<session_id>.jsonl.
func (s *Store) SessionLogPath(aid, sessionID string) string {
	return filepath.Join(s.aidDir(aid), "sessions", sessionID+".jsonl")
}

// GroupsIndexPath is AIDs/<aid>/groups/_index.json.
func (s *Store) GroupsIndexPath(aid string) string {
	return filepath.Join(s.aidDir(aid), "groups", "_index.json")
}

// CursorsPath is AIDs/<aid>/groups/.cursors.json.
func (s *Store) CursorsPath(aid string) string {
	return filepath.Join(s.aidDir(aid), "groups", ".cursors.json")
}

// GroupMessagesPath is AIDs/<aid>/groups/<group_id>/messages.jsonl.
func (s *Store) GroupMessagesPath(aid, groupID string) string {
	return filepath.Join(s.aidDir(aid), "groups", groupID, "messages.jsonl")
}

// GroupEventsPath is AIDs/<aid>/groups/<group_id>/events.jsonl.
func (s *Store) GroupEventsPath(aid, groupID string) string {
	return filepath.Join(s.aidDir(aid), "groups", groupID, "events.jsonl")
}

// WriteFile creates parent directories recursively and atomically writes
// data (write-temp + rename), per spec.md §4.2's "writes must create
// parent directories recursively" and §2's atomic read/write requirement.
func (s *Store) WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return acperrors.Wrap(acperrors.FileError, "create parent directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return acperrors.Wrap(acperrors.FileError, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return acperrors.Wrap(acperrors.FileError, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return acperrors.Wrap(acperrors.FileError, "close temp file", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return acperrors.Wrap(acperrors.FileError, "chmod temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return acperrors.Wrap(acperrors.FileError, "rename temp file into place", err)
	}
	return nil
}

// ReadFile returns (nil, nil) when path doesn't exist, per spec.md §4.2
// ("reads return empty when the file is missing").
func (s *Store) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, acperrors.Wrap(acperrors.FileError, "read file", err)
	}
	return data, nil
}

// AppendFile opens path for append (creating parent directories as
// needed), for JSONL logs that grow line by line.
func (s *Store) AppendFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, acperrors.Wrap(acperrors.FileError, "create parent directory", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.FileError, "open file for append", err)
	}
	return f, nil
}

// Exists reports whether a regular file exists at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DeleteAIDDir wipes AIDs/<aid> entirely.
func (s *Store) DeleteAIDDir(aid string) error {
	if err := ValidateAID(aid); err != nil {
		return err
	}
	if err := os.RemoveAll(s.aidDir(aid)); err != nil {
		return acperrors.Wrap(acperrors.FileError, "delete aid directory", err)
	}
	return nil
}

// ListAIDs returns the set of names under basePath where both the
// encrypted key and certificate exist.
func (s *Store) ListAIDs() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, acperrors.Wrap(acperrors.FileError, "read aids directory", err)
	}

	var aids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		aid := entry.Name()
		if s.Exists(s.PrivateKeyPath(aid)) && s.Exists(s.CertPath(aid)) {
			aids = append(aids, aid)
		}
	}
	sort.Strings(aids)
	return aids, nil
}
