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

// Package agentcard fetches and caches the descriptor an AID publishes at
// https://<aid>/agent.md, per spec.md §6.
package agentcard

import "time"

// Card is the parsed YAML frontmatter of an agent.md descriptor.
type Card struct {
	AID         string    `json:"aid" yaml:"-"`
	Type        string    `json:"type" yaml:"type"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Tags        []string  `json:"tags" yaml:"tags"`
	FetchedAt   time.Time `json:"fetched_at" yaml:"-"`
}

// Expired reports whether a Card fetched at its FetchedAt is stale
// relative to ttl.
func (c *Card) Expired(ttl time.Duration) bool {
	return time.Since(c.FetchedAt) > ttl
}
