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

package groupstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCursorStore implements CursorStore against a
// group_cursors(aid, group_id, start_msg_id, current_msg_id,
// latest_msg_id, unread_count, start_event_id, current_event_id,
// latest_event_id) table, for agents that want cursor/ack state to
// survive a full local-disk wipe. The message/event logs themselves
// stay file-backed JSONL — only the cursor is optionally durable here.
type PostgresCursorStore struct {
	db  *pgxpool.Pool
	aid string
}

// NewPostgresCursorStore wraps an already-open pool for aid.
func NewPostgresCursorStore(db *pgxpool.Pool, aid string) *PostgresCursorStore {
	return &PostgresCursorStore{db: db, aid: aid}
}

// Get returns the persisted cursor for groupID, or a zero Cursor if no
// row exists yet.
func (p *PostgresCursorStore) Get(aid, groupID string) (Cursor, error) {
	query := `
		SELECT start_msg_id, current_msg_id, latest_msg_id, unread_count,
		       start_event_id, current_event_id, latest_event_id
		FROM group_cursors
		WHERE aid = $1 AND group_id = $2
	`
	var c Cursor
	err := p.db.QueryRow(context.Background(), query, aid, groupID).Scan(
		&c.StartMsgID, &c.CurrentMsgID, &c.LatestMsgID, &c.UnreadCount,
		&c.StartEventID, &c.CurrentEventID, &c.LatestEventID,
	)
	if err == pgx.ErrNoRows {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("get group cursor: %w", err)
	}
	return c, nil
}

// Set upserts the cursor row for (aid, groupID).
func (p *PostgresCursorStore) Set(aid, groupID string, c Cursor) error {
	query := `
		INSERT INTO group_cursors (
			aid, group_id, start_msg_id, current_msg_id, latest_msg_id,
			unread_count, start_event_id, current_event_id, latest_event_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (aid, group_id) DO UPDATE SET
			start_msg_id = EXCLUDED.start_msg_id,
			current_msg_id = EXCLUDED.current_msg_id,
			latest_msg_id = EXCLUDED.latest_msg_id,
			unread_count = EXCLUDED.unread_count,
			start_event_id = EXCLUDED.start_event_id,
			current_event_id = EXCLUDED.current_event_id,
			latest_event_id = EXCLUDED.latest_event_id
	`
	_, err := p.db.Exec(context.Background(), query,
		aid, groupID, c.StartMsgID, c.CurrentMsgID, c.LatestMsgID,
		c.UnreadCount, c.StartEventID, c.CurrentEventID, c.LatestEventID,
	)
	if err != nil {
		return fmt.Errorf("set group cursor: %w", err)
	}
	return nil
}
