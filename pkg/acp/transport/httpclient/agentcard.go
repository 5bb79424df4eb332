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

package httpclient

import (
	"context"
	"io"
	"net/http"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// FetchAgentCard GETs base+"/agent.md" and returns its raw body (YAML
// frontmatter plus whatever free-form markdown follows it) for
// pkg/acp/agentcard to parse and cache. Production callers pass
// "https://"+aid as base, since the AID doubles as the agent's own
// hostname; tests substitute an httptest server URL.
func (c *Client) FetchAgentCard(ctx context.Context, base string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/agent.md", nil)
	if err != nil {
		return nil, acperrors.Wrap(acperrors.InvalidArgument, "build agent.md request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapNetworkError("fetch agent.md", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, acperrors.New(acperrors.NetworkError, "http "+resp.Status).WithContext("body", string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapNetworkError("read agent.md body", err)
	}
	return data, nil
}
