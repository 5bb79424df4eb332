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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// PostJSON POSTs body as JSON to url and decodes the response into out
// (skipped when out is nil). Non-2xx statuses are returned as errors
// carrying the response body for diagnostics.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, url, body, out)
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return acperrors.Wrap(acperrors.InvalidArgument, "marshal request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return acperrors.Wrap(acperrors.InvalidArgument, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapNetworkError("http request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapNetworkError("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return acperrors.New(acperrors.NetworkError, "http "+resp.Status).
			WithContext("body", string(respBody)).
			WithContext("status_code", resp.StatusCode)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return acperrors.Wrap(acperrors.Internal, "decode response json", err)
		}
	}
	return nil
}
