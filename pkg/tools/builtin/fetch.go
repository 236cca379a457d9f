// Copyright 2026 Embercore
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/embercore/ember/pkg/tools/registry"
)

const (
	fetchDefaultTimeout   = 30 * time.Second
	fetchMaxTimeout       = 30 * time.Second
	fetchMaxResponseBytes = 64 * 1024
)

// FetchTool performs a safe outbound HTTP request: private/loopback
// destinations are blocked by default, the timeout is bounded, and the
// response body is size-capped.
type FetchTool struct {
	Client *http.Client
	// AllowPrivateHosts disables the loopback/private-range guard. Only
	// meant for local development and tests against an in-process server;
	// production deployments should leave this false.
	AllowPrivateHosts bool
}

func (t *FetchTool) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

func (t *FetchTool) Name() string { return "fetch" }
func (t *FetchTool) Description() string {
	return "Make a safe HTTP GET/POST/PUT/DELETE request with a timeout and truncated response."
}
// fetchParams is reflected into FetchTool's JSON-Schema.
type fetchParams struct {
	URL         string `json:"url" jsonschema:"required,description=Target URL to fetch"`
	Method      string `json:"method,omitempty" jsonschema:"enum=GET,enum=POST,enum=PUT,enum=DELETE,description=HTTP method (default GET)"`
	BodyText    string `json:"body_text,omitempty" jsonschema:"description=Optional raw text request body"`
	TimeoutSecs int    `json:"timeout_secs,omitempty" jsonschema:"description=Request timeout in seconds (default 30, max 30)"`
}

func (t *FetchTool) InputSchema() *registry.JSONSchema {
	return reflectSchema(&fetchParams{})
}

// blockedHost reports whether host resolves to (or textually is) a
// loopback, link-local, or private-range address — the classic SSRF guard
// against an agent being tricked into fetching internal infrastructure.
func blockedHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return false
		}
		ip = ips[0]
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func (t *FetchTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	rawURL, _ := params["url"].(string)
	if rawURL == "" {
		return &registry.Result{Success: false, Error: "url is required"}, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &registry.Result{Success: false, Error: fmt.Sprintf("invalid url: %v", err)}, nil
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &registry.Result{Success: false, Error: "only http/https URLs are allowed"}, nil
	}
	if !t.AllowPrivateHosts && blockedHost(parsed.Hostname()) {
		return &registry.Result{Success: false, Error: "requests to private/loopback hosts are blocked"}, nil
	}

	method, _ := params["method"].(string)
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	timeout := fetchDefaultTimeout
	if secs, ok := params["timeout_secs"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
		if timeout > fetchMaxTimeout {
			timeout = fetchMaxTimeout
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if text, ok := params["body_text"].(string); ok && text != "" {
		body = strings.NewReader(text)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}

	resp, err := t.client().Do(req)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, fetchMaxResponseBytes)
	data, err := io.ReadAll(limited)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}

	return &registry.Result{
		Success: resp.StatusCode < 400,
		Data: map[string]any{
			"status": resp.StatusCode,
			"body":   string(data),
		},
	}, nil
}
