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

package agentcard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCache implements Cache against an agent_cards(aid, type, name,
// description, tags, fetched_at) table, for multi-process agents that
// want to share one descriptor cache rather than each eating its own
// fetch-and-24h-TTL cost, grounded on pkg/storage/postgres/sessions.go's
// parameterized-query and pgx.ErrNoRows idiom.
type PostgresCache struct {
	db *pgxpool.Pool
}

// NewPostgresCache wraps an already-open pool.
func NewPostgresCache(db *pgxpool.Pool) *PostgresCache {
	return &PostgresCache{db: db}
}

// Get returns the cached Card for aid, or (nil, false) if absent.
func (p *PostgresCache) Get(aid string) (*Card, bool) {
	query := `
		SELECT aid, type, name, description, tags, fetched_at
		FROM agent_cards
		WHERE aid = $1
	`
	var c Card
	var tags string
	err := p.db.QueryRow(context.Background(), query, aid).Scan(
		&c.AID, &c.Type, &c.Name, &c.Description, &tags, &c.FetchedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	if tags != "" {
		c.Tags = strings.Split(tags, ",")
	}
	return &c, true
}

// Set upserts card.
func (p *PostgresCache) Set(card *Card) error {
	query := `
		INSERT INTO agent_cards (aid, type, name, description, tags, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (aid) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			fetched_at = EXCLUDED.fetched_at
	`
	fetchedAt := card.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	_, err := p.db.Exec(context.Background(), query,
		card.AID, card.Type, card.Name, card.Description, strings.Join(card.Tags, ","), fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("set agent card: %w", err)
	}
	return nil
}
