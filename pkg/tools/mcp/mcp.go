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

// Package mcp bridges an external MCP (Model Context Protocol) server,
// reached over stdio, into the companion's own registry.Tool contract so
// plugin tools are indistinguishable from built-ins once registered.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/embercore/ember/pkg/tools/registry"
)

// Config describes how to launch and filter one MCP server's tools.
type Config struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	// Filter, if non-empty, restricts which of the server's tools get
	// bridged in; an empty Filter bridges every tool the server advertises.
	Filter []string
}

// Source connects to an MCP server over stdio and exposes its tools as
// registry.Tool values.
type Source struct {
	cfg Config

	mu        sync.Mutex
	client    *client.Client
	connected bool
}

// New creates a Source for cfg. The connection is established lazily, on
// the first call to Tools.
func New(cfg Config) (*Source, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp source %q: command is required", cfg.Name)
	}
	return &Source{cfg: cfg}, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func (s *Source) connect(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("create mcp client for %q: %w", s.cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start mcp client for %q: %w", s.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "ember", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize mcp client for %q: %w", s.cfg.Name, err)
	}

	s.client = mcpClient
	s.connected = true
	return nil
}

// Tools lists and bridges every tool this MCP server advertises, connecting
// lazily on first use.
func (s *Source) Tools(ctx context.Context) ([]registry.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}

	var filter map[string]bool
	if len(s.cfg.Filter) > 0 {
		filter = make(map[string]bool, len(s.cfg.Filter))
		for _, name := range s.cfg.Filter {
			filter[name] = true
		}
	}

	resp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools for %q: %w", s.cfg.Name, err)
	}

	var tools []registry.Tool
	for _, mt := range resp.Tools {
		if filter != nil && !filter[mt.Name] {
			continue
		}
		tools = append(tools, &bridgedTool{
			source: s,
			name:   mt.Name,
			desc:   mt.Description,
			schema: convertSchema(mt.InputSchema),
		})
	}
	return tools, nil
}

// Close shuts down the underlying MCP client process.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.connected = false
	return err
}

// bridgedTool adapts one MCP server tool to registry.Tool.
type bridgedTool struct {
	source *Source
	name   string
	desc   string
	schema *registry.JSONSchema
}

func (t *bridgedTool) Name() string                      { return t.name }
func (t *bridgedTool) Description() string               { return t.desc }
func (t *bridgedTool) InputSchema() *registry.JSONSchema { return t.schema }

func (t *bridgedTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	t.source.mu.Lock()
	mcpClient := t.source.client
	t.source.mu.Unlock()
	if mcpClient == nil {
		return nil, fmt.Errorf("mcp source %q is not connected", t.source.cfg.Name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = params

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call mcp tool %q: %w", t.name, err)
	}

	if resp.IsError {
		return &registry.Result{Success: false, Error: firstText(resp)}, nil
	}
	return &registry.Result{Success: true, Data: firstText(resp)}, nil
}

func firstText(resp *mcp.CallToolResult) string {
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// convertSchema turns an MCP tool's JSON schema into registry.JSONSchema by
// round-tripping through JSON, since the two types have an identical shape
// but live in different packages.
func convertSchema(schema mcp.ToolInputSchema) *registry.JSONSchema {
	data, err := json.Marshal(schema)
	if err != nil {
		return &registry.JSONSchema{Type: "object"}
	}
	var out registry.JSONSchema
	if err := json.Unmarshal(data, &out); err != nil {
		return &registry.JSONSchema{Type: "object"}
	}
	return &out
}
