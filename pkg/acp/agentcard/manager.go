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
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

const defaultTTL = 24 * time.Hour

// Fetcher is the subset of httpclient.Client Manager depends on,
// decoupled so tests can fake the HTTP round trip.
type Fetcher interface {
	FetchAgentCard(ctx context.Context, base string) ([]byte, error)
}

// Manager fetches and caches agent descriptors, collapsing concurrent
// cache misses for the same AID into a single HTTP fetch.
type Manager struct {
	http  Fetcher
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache substitutes the Cache backend (default: NewMemoryCache()).
func WithCache(c Cache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithTTL overrides the default 24h cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// New builds a Manager over fetcher (an *httpclient.Client in
// production; a fake in tests).
func New(fetcher Fetcher, opts ...Option) *Manager {
	m := &Manager{http: fetcher, cache: NewMemoryCache(), ttl: defaultTTL}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the descriptor for aid, serving from cache when fresh and
// otherwise fetching https://<aid>/agent.md, parsing its YAML
// frontmatter, and caching the result for the configured TTL. Concurrent
// callers for the same aid share one in-flight fetch.
func (m *Manager) Get(ctx context.Context, aid string) (*Card, error) {
	if card, ok := m.cache.Get(aid); ok && !card.Expired(m.ttl) {
		return card, nil
	}

	v, err, _ := m.group.Do(aid, func() (interface{}, error) {
		return m.fetch(ctx, aid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Card), nil
}

func (m *Manager) fetch(ctx context.Context, aid string) (*Card, error) {
	body, err := m.http.FetchAgentCard(ctx, "https://"+aid)
	if err != nil {
		return nil, err
	}

	card, err := parseCard(body)
	if err != nil {
		return nil, err
	}
	card.AID = aid
	card.FetchedAt = time.Now()

	if err := m.cache.Set(card); err != nil {
		return nil, err
	}
	return card, nil
}

// parseCard extracts and decodes the "---\n...\n---" YAML frontmatter
// block at the top of an agent.md body.
func parseCard(body []byte) (*Card, error) {
	text := string(body)
	const delim = "---"
	if !strings.HasPrefix(strings.TrimLeft(text, "\r\n"), delim) {
		return nil, acperrors.New(acperrors.Internal, "agent.md missing frontmatter delimiter")
	}
	text = strings.TrimLeft(text, "\r\n")
	rest := text[len(delim):]
	end := strings.Index(rest, delim)
	if end < 0 {
		return nil, acperrors.New(acperrors.Internal, "agent.md frontmatter not terminated")
	}

	var card Card
	if err := yaml.Unmarshal([]byte(rest[:end]), &card); err != nil {
		return nil, acperrors.Wrap(acperrors.Internal, "decode agent.md frontmatter", err)
	}
	return &card, nil
}
