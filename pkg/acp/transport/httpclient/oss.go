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
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// UploadFile POSTs a multipart/form-data request carrying agentID,
// signature, fileName and the file contents to ossBase's upload_file
// endpoint, per spec.md §6's OSS contract.
func (c *Client) UploadFile(ctx context.Context, ossBase, agentID, signature, fileName string, content io.Reader) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		defer writer.Close()

		if err := writer.WriteField("agent_id", agentID); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := writer.WriteField("signature", signature); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := writer.WriteField("file_name", fileName); err != nil {
			pw.CloseWithError(err)
			return
		}
		part, err := writer.CreateFormFile("file", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ossBase+"/api/oss/upload_file", pr)
	if err != nil {
		return acperrors.Wrap(acperrors.InvalidArgument, "build upload request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapNetworkError("upload file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return acperrors.New(acperrors.NetworkError, "http "+resp.Status).WithContext("body", string(body))
	}
	return nil
}

// DownloadFile streams the body of ossBase's download_file endpoint to w.
func (c *Client) DownloadFile(ctx context.Context, ossBase, agentID, signature, fileName string, w io.Writer) error {
	q := url.Values{}
	q.Set("file_name", fileName)
	q.Set("agent_id", agentID)
	q.Set("signature", signature)

	reqURL := ossBase + "/api/oss/download_file?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return acperrors.Wrap(acperrors.InvalidArgument, "build download request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapNetworkError("download file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return acperrors.New(acperrors.NetworkError, "http "+resp.Status).WithContext("body", string(body))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return wrapNetworkError("stream download body", err)
	}
	return nil
}
