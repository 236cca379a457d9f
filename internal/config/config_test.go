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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/internal/config"
)

func TestLoadAppliesDefaultsWhenNoFileOrEnv(t *testing.T) {
	cfg, _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
	assert.Contains(t, cfg.Persona.GuidingPrinciples, "curiosity")
}

func TestLoadReadsFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9999\"\nllm:\n  model: custom-model\n"), 0o644))

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "custom-model", cfg.LLM.Model)
	// untouched keys keep their defaults
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
}

func TestLoadParsesMCPServersAndCapabilityOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""+
		"mcp_servers:\n"+
		"  - name: filesystem\n"+
		"    command: mcp-server-filesystem\n"+
		"    args: [\"/home/operator\"]\n"+
		"capability:\n"+
		"  overrides:\n"+
		"    ambient:\n"+
		"      disallow: [\"shell\"]\n"), 0o644))

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.MCPServers, 1)
	assert.Equal(t, "filesystem", cfg.MCPServers[0].Name)
	assert.Equal(t, []string{"/home/operator"}, cfg.MCPServers[0].Args)
	assert.Equal(t, []string{"shell"}, cfg.Capability.Overrides["ambient"].Disallow)
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7777\"\n"), 0o644))

	t.Setenv("EMBER_SERVER_ADDR", ":6666")
	t.Setenv("EMBER_LLM_MODEL", "env-model")

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6666", cfg.Server.Addr, "env outranks the config file")
	assert.Equal(t, "env-model", cfg.LLM.Model, "env overrides the default since the file is silent on it")
}
