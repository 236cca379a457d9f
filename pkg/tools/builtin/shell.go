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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/embercore/ember/pkg/tools/registry"
)

const (
	shellDefaultTimeout = 30 * time.Second
	shellMaxTimeout     = 300 * time.Second
	shellMaxOutputBytes = 100_000
)

// ShellTool runs a command through /bin/sh -c on the host. Whether a call
// goes through the approval gate is decided by the capability policy; under
// the default mode it asks only in autonomous session contexts.
type ShellTool struct{ WorkingDirectory string }

// shellParams is reflected into ShellTool's JSON-Schema.
type shellParams struct {
	Command          string `json:"command" jsonschema:"required,description=The shell command to execute (passed to /bin/sh -c)"`
	WorkingDirectory string `json:"working_directory,omitempty" jsonschema:"description=Working directory for the command"`
	TimeoutSecs      int    `json:"timeout_secs,omitempty" jsonschema:"description=Timeout in seconds (default 30, max 300)"`
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Execute a shell command on the host system. Returns stdout, stderr, and exit code."
}
func (t *ShellTool) InputSchema() *registry.JSONSchema {
	return reflectSchema(&shellParams{})
}

func (t *ShellTool) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	command, _ := params["command"].(string)
	if command == "" {
		return &registry.Result{Success: false, Error: "command is required"}, nil
	}

	timeout := shellDefaultTimeout
	if secs, ok := params["timeout_secs"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
		if timeout > shellMaxTimeout {
			timeout = shellMaxTimeout
		}
	}

	wd := t.WorkingDirectory
	if dir, ok := params["working_directory"].(string); ok && dir != "" {
		wd = dir
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = wd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := truncate(stdout.String(), shellMaxOutputBytes)
	errOut := truncate(stderr.String(), shellMaxOutputBytes)

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() != nil {
			return &registry.Result{Success: false, Error: fmt.Sprintf("command timed out after %s", timeout)}, nil
		} else {
			return &registry.Result{Success: false, Error: runErr.Error()}, nil
		}
	}

	return &registry.Result{
		Success: exitCode == 0,
		Data: map[string]any{
			"stdout":    out,
			"stderr":    errOut,
			"exit_code": exitCode,
		},
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n...[truncated %d bytes]", len(s)-max)
}
