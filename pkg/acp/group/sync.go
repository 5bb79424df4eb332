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

package group

import (
	"context"
	"sync"
	"time"

	"github.com/acp-project/acp-go/internal/logger"
	"github.com/acp-project/acp-go/internal/metrics"
)

const (
	pullPageSize         = 50
	presenceHeartbeatInt = 180 * time.Second
)

// Store is the persistence interface the sync engine depends on (C10's
// groupstore.Store satisfies it); decoupled so the sync engine is testable
// without a filesystem.
type Store interface {
	LastLocalMsgID(groupID string) (int64, error)
	AppendMessages(groupID string, messages []Message) error
}

// Sync drives join/leave of group sessions and the cursor-based
// incremental-sync loop described in spec.md §4.9.
type Sync struct {
	client *Client
	ops    *Ops
	store  Store
	log    logger.Logger

	mu          sync.Mutex
	online      map[string]struct{}
	timerCancel context.CancelFunc
}

// NewSync builds a Sync engine over client/ops, persisting via store.
func NewSync(client *Client, ops *Ops, store Store, log logger.Logger) *Sync {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Sync{
		client: client,
		ops:    ops,
		store:  store,
		log:    log,
		online: make(map[string]struct{}),
	}
}

// JoinGroupSession implements spec.md §4.9's join_group_session: registers
// online presence, cold-starts catch-up sync, and ensures the shared
// presence heartbeat timer is running.
func (s *Sync) JoinGroupSession(ctx context.Context, groupID string) error {
	if _, err := s.ops.RegisterOnline(ctx, groupID); err != nil {
		return err
	}

	lastLocal, err := s.store.LastLocalMsgID(groupID)
	if err != nil {
		return err
	}
	if err := s.PullAndStore(ctx, groupID, lastLocal, pullPageSize); err != nil {
		return err
	}

	s.mu.Lock()
	wasEmpty := len(s.online) == 0
	s.online[groupID] = struct{}{}
	if wasEmpty {
		timerCtx, cancel := context.WithCancel(context.Background())
		s.timerCancel = cancel
		go s.runPresenceHeartbeat(timerCtx)
	}
	s.mu.Unlock()
	return nil
}

// LeaveGroupSession implements spec.md §4.9's leave_group_session: drops
// groupID from the online set, and if that empties it, unregisters
// presence and stops the shared heartbeat timer.
func (s *Sync) LeaveGroupSession(ctx context.Context, groupID string) error {
	s.mu.Lock()
	delete(s.online, groupID)
	empty := len(s.online) == 0
	cancel := s.timerCancel
	if empty {
		s.timerCancel = nil
	}
	s.mu.Unlock()

	if !empty {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	_, err := s.ops.UnregisterOnline(ctx, groupID)
	return err
}

// OnlineGroups returns the currently online group ids.
func (s *Sync) OnlineGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	return ids
}

// Resync re-invokes JoinGroupSession for every group in this engine's
// online set, renewing presence records the server may have expired.
func (s *Sync) Resync(ctx context.Context) error {
	for _, groupID := range s.OnlineGroups() {
		if err := s.JoinGroupSession(ctx, groupID); err != nil {
			return err
		}
	}
	return nil
}

// PullAndStore loops pull_messages(after, limit) -> store -> ack until
// has_more is false, bounded at pullPageSize per page.
func (s *Sync) PullAndStore(ctx context.Context, groupID string, after int64, limit int) error {
	for {
		batch, err := s.ops.PullMessages(ctx, groupID, after, limit)
		if err != nil {
			return err
		}
		if len(batch.Messages) > 0 {
			if err := s.store.AppendMessages(groupID, batch.Messages); err != nil {
				return err
			}
			metrics.GroupSyncPulled.WithLabelValues("message").Add(float64(len(batch.Messages)))
			if _, err := s.ops.AckMessages(ctx, groupID, batch.LatestMsgID); err != nil {
				return err
			}
			after = batch.LatestMsgID
		}
		if !batch.HasMore {
			return nil
		}
	}
}

func (s *Sync) runPresenceHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(presenceHeartbeatInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, groupID := range s.OnlineGroups() {
				if _, err := s.ops.Heartbeat(ctx, groupID); err != nil {
					s.log.Warn("group presence heartbeat failed", logger.String("group_id", groupID), logger.Error(err))
				}
			}
		}
	}
}
