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

// Package safety implements the validate_input/check_output pass points the
// tool registry runs around every dispatch: rejecting obviously dangerous
// shell input up front, and scrubbing secrets that leaked into a tool's
// output before it ever reaches the model context or a chat transcript.
package safety

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/embercore/ember/pkg/tools/registry"
)

// secretPatterns matches common credential shapes so they can be redacted
// from tool output before the model (or a chat log) ever sees them.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),                 // OpenAI-style API keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{10,}`),   // bearer tokens
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),                 // GitHub PATs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                    // AWS access key IDs
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`), // PEM private keys
}

// dangerousShellPatterns flags shell invocations too destructive to ever run
// unattended, even with AlwaysAllow posture — these are hard-blocked.
var dangerousShellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+/(\s|$)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), // fork bomb
	regexp.MustCompile(`mkfs\.`),
	regexp.MustCompile(`dd\s+if=.*of=/dev/`),
}

const redacted = "[REDACTED]"

// Pipeline implements registry.SafetyPipeline.
type Pipeline struct{}

// New constructs the default safety pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// ValidateInput checks params against the tool's own JSON-Schema, then
// rejects shell commands matching a known destructive pattern. Schema
// violations and destructive shell patterns both block the call outright;
// more fine-grained per-tool validation lives in the tool implementations
// themselves.
func (p *Pipeline) ValidateInput(toolName string, schema *registry.JSONSchema, params map[string]any) error {
	if err := validateAgainstSchema(schema, params); err != nil {
		return err
	}

	if toolName != "shell" {
		return nil
	}
	cmd, _ := params["command"].(string)
	for _, pat := range dangerousShellPatterns {
		if pat.MatchString(cmd) {
			return fmt.Errorf("command blocked by safety policy: matches %s", pat.String())
		}
	}
	return nil
}

// validateAgainstSchema runs the tool's reflected JSON-Schema against its
// call arguments via gojsonschema, joining every violation into a single
// error so the model sees all of them at once rather than one at a time.
func validateAgainstSchema(schema *registry.JSONSchema, params map[string]any) error {
	if schema == nil {
		return nil
	}
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		// A schema gojsonschema cannot even load is a bug in our reflection,
		// not a reason to block every call that hits this tool.
		return nil
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}

// CheckOutput scrubs any secret-shaped substring out of a tool's string
// result fields. It never errors; leaking a secret into a chat transcript
// is worse than displaying a redaction marker.
func (p *Pipeline) CheckOutput(toolName string, result *registry.Result) error {
	if result == nil {
		return nil
	}
	if s, ok := result.Data.(string); ok {
		result.Data = redactSecrets(s)
	}
	result.Error = redactSecrets(result.Error)
	return nil
}

func redactSecrets(s string) string {
	for _, pat := range secretPatterns {
		s = pat.ReplaceAllString(s, redacted)
	}
	return s
}
