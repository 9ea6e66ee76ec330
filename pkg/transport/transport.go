// Copyright 2024 Atomstate Technologies Private Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport defines the HTTP-shaped request/response carried
// between cluster nodes (spec.md §4.4, §6) and a net/http-backed
// implementation of it. The core routing layer (pkg/mapping) depends
// only on the Conn interface; it does not dictate wire framing.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// QueryParam is one ordered key/value pair of a request's query
// string. An ordered slice (not a map) is used because spec.md §4.4
// specifies queryParams as an "ordered key/value list".
type QueryParam struct {
	Key   string
	Value string
}

// Request is the transport-agnostic shape of an RPC call: method,
// path, ordered query parameters, and an opaque body.
type Request struct {
	Method string
	Path   string
	Query  []QueryParam
	Body   []byte
}

// Response is the transport-agnostic shape of an RPC reply: a status
// code opaque to the core, an error flag the transport sets when the
// call itself failed (not merely when the remote returned a non-2xx
// status), and the response body.
type Response struct {
	Status int
	Error  bool
	Body   []byte
}

// Conn is the minimum a route's connection must support: issue one
// request and return one response. dispatchAsync (pkg/mapping) is the
// only caller; everything above it (sync wait, fan-out, JSON
// marshaling) is built on top of this.
type Conn interface {
	Do(ctx context.Context, req Request) (Response, error)
	// Close releases any resources the connection holds. It is safe
	// to call more than once.
	Close() error
}

// HTTPConn is the default Conn, built on a single long-lived
// *http.Client per route -- the pattern consul's go-cleanhttp wrapper
// encourages: one reusable client/transport per peer rather than one
// per call, so keep-alives are actually kept alive.
type HTTPConn struct {
	baseURL string
	client  *http.Client
}

// NewHTTPConn builds an HTTPConn that dials baseURL (a "host:port"
// endpoint; the http scheme is always prepended).
func NewHTTPConn(baseURL string, timeout time.Duration) *HTTPConn {
	return &HTTPConn{
		baseURL: "http://" + baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     120 * time.Second,
			},
		},
	}
}

// Do issues req against the connection's peer and returns its
// response. A transport-level failure (dial error, non-HTTP response,
// timeout) sets Response.Error rather than requiring the caller to
// unwrap a transport error -- spec.md §6: "errorFlag=true from the
// transport propagates into the routeError flag on cluster dispatch".
func (c *HTTPConn) Do(ctx context.Context, req Request) (Response, error) {
	url := c.baseURL + req.Path
	if len(req.Query) > 0 {
		url += "?" + encodeQuery(req.Query)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(req.Body))
	if err != nil {
		return Response{Error: true}, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{Error: true}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Status: resp.StatusCode, Error: true}, nil
	}

	return Response{Status: resp.StatusCode, Body: body}, nil
}

// Close releases the connection's idle pooled sockets.
func (c *HTTPConn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func encodeQuery(params []QueryParam) string {
	var buf bytes.Buffer
	for i, p := range params {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(p.Key))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(p.Value))
	}
	return buf.String()
}
