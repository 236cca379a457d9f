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

// Package builtin implements the companion's local tool capabilities:
// file I/O, shell execution, HTTP fetch, and memory read/write, all gated
// by the capability policy and approval flow in pkg/tools.
package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/embercore/ember/pkg/tools/registry"
)

// ReadFileTool reads a file's contents from disk.
type ReadFileTool struct{ Root string }

// readFileParams is reflected into ReadFileTool's JSON-Schema.
type readFileParams struct {
	Path string `json:"path" jsonschema:"required,description=Path to the file to read"`
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file on disk." }
func (t *ReadFileTool) InputSchema() *registry.JSONSchema {
	return reflectSchema(&readFileParams{})
}

func (t *ReadFileTool) resolve(path string) (string, error) {
	if t.Root == "" {
		return path, nil
	}
	full := filepath.Join(t.Root, path)
	if !strings.HasPrefix(full, filepath.Clean(t.Root)+string(filepath.Separator)) && full != filepath.Clean(t.Root) {
		return "", fmt.Errorf("path %q escapes root %q", path, t.Root)
	}
	return full, nil
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return &registry.Result{Success: false, Error: "path is required"}, nil
	}
	full, err := t.resolve(path)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	return &registry.Result{Success: true, Data: string(data)}, nil
}

// WriteFileTool writes content to a file, creating parent directories as
// needed.
type WriteFileTool struct{ Root string }

// writeFileParams is reflected into WriteFileTool's JSON-Schema.
type writeFileParams struct {
	Path    string `json:"path" jsonschema:"required,description=Path to the file to write"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file on disk, overwriting it." }
func (t *WriteFileTool) InputSchema() *registry.JSONSchema {
	return reflectSchema(&writeFileParams{})
}

func (t *WriteFileTool) resolve(path string) (string, error) {
	rf := &ReadFileTool{Root: t.Root}
	return rf.resolve(path)
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)
	if path == "" {
		return &registry.Result{Success: false, Error: "path is required"}, nil
	}
	full, err := t.resolve(path)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	return &registry.Result{Success: true, Data: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
}

// PatchFileTool applies a unified diff to an existing file using
// sergi/go-diff's patch format.
type PatchFileTool struct{ Root string }

// patchFileParams is reflected into PatchFileTool's JSON-Schema.
type patchFileParams struct {
	Path  string `json:"path" jsonschema:"required,description=Path to the file to patch"`
	Patch string `json:"patch" jsonschema:"required,description=Unified diff to apply"`
}

func (t *PatchFileTool) Name() string { return "patch_file" }
func (t *PatchFileTool) Description() string {
	return "Apply a unified diff patch to an existing file."
}
func (t *PatchFileTool) InputSchema() *registry.JSONSchema {
	return reflectSchema(&patchFileParams{})
}

func (t *PatchFileTool) resolve(path string) (string, error) {
	rf := &ReadFileTool{Root: t.Root}
	return rf.resolve(path)
}

func (t *PatchFileTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	path, _ := params["path"].(string)
	patchText, _ := params["patch"].(string)
	if path == "" || patchText == "" {
		return &registry.Result{Success: false, Error: "path and patch are required"}, nil
	}
	full, err := t.resolve(path)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}

	original, err := os.ReadFile(full)
	if err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return &registry.Result{Success: false, Error: fmt.Sprintf("parse patch: %v", err)}, nil
	}

	patched, applied := dmp.PatchApply(patches, string(original))
	for _, ok := range applied {
		if !ok {
			return &registry.Result{Success: false, Error: "one or more patch hunks failed to apply"}, nil
		}
	}

	if err := os.WriteFile(full, []byte(patched), 0o644); err != nil {
		return &registry.Result{Success: false, Error: err.Error()}, nil
	}
	return &registry.Result{Success: true, Data: fmt.Sprintf("patched %s", path)}, nil
}
