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

// Package httpclient is the CA/AP/OSS HTTP client: JSON POST/GET against
// accesspoint endpoints, multipart upload and streaming download against
// the object-storage service, with a pluggable DNS resolver so callers can
// point at a private entrypoint registry in tests.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// Resolver resolves a hostname to connection addresses. The default is
// net.DefaultResolver; callers substitute their own to pin an entrypoint
// without touching system DNS.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Client wraps an *http.Client with the dial-time resolver hook and the
// timeouts the protocol expects.
type Client struct {
	httpClient *http.Client
	resolver   Resolver
}

// Option configures a Client.
type Option func(*Client)

// WithResolver installs a custom DNS resolver used for all dials.
func WithResolver(r Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithTimeout overrides the client-wide request timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient substitutes the underlying *http.Client outright.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client with sane defaults: 30s timeout, system resolver.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		resolver:   net.DefaultResolver,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver != nil && c.resolver != net.DefaultResolver {
		c.installResolver()
	}
	return c
}

// installResolver rewires the client's transport to dial through c.resolver
// instead of system DNS, mirroring a custom net.Dialer.Resolver swap.
func (c *Client) installResolver() {
	base, _ := c.httpClient.Transport.(*http.Transport)
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	} else {
		base = base.Clone()
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return dialer.DialContext(ctx, network, addr)
		}
		addrs, err := c.resolver.LookupHost(ctx, host)
		if err != nil || len(addrs) == 0 {
			return dialer.DialContext(ctx, network, addr)
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0], port))
	}
	c.httpClient.Transport = base
}

func wrapNetworkError(op string, err error) error {
	return acperrors.Wrap(acperrors.NetworkError, op, err)
}
