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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/internal/config"
)

func TestProviderGetReturnsCurrentSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":8081\"\n"), 0o644))

	p, err := config.NewProvider(path, nil)
	require.NoError(t, err)

	settings, err := p.Get(context.Background())
	require.NoError(t, err)
	server, ok := settings["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ":8081", server["addr"])
}

func TestProviderUpdatePersistsToFileAndNotifiesSubscribers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":8081\"\n"), 0o644))

	p, err := config.NewProvider(path, nil)
	require.NoError(t, err)

	var seen *config.Config
	p.OnChange(func(c *config.Config) { seen = c })

	err = p.Update(context.Background(), map[string]any{
		"server": map[string]any{"addr": ":9999"},
	})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, ":9999", seen.Server.Addr)
	assert.Equal(t, ":9999", p.Current().Server.Addr)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), ":9999")
}

func TestProviderUpdateRejectsInvalidPatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":8081\"\n"), 0o644))

	p, err := config.NewProvider(path, nil)
	require.NoError(t, err)

	err = p.Update(context.Background(), map[string]any{
		"scheduler": map[string]any{"tick_interval": "0s"},
	})
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Equal(t, ":8081", p.Current().Server.Addr, "rejected patch must not mutate the running config")
}

func TestProviderWatchReloadsOnExternalFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":8081\"\n"), 0o644))

	p, err := config.NewProvider(path, nil)
	require.NoError(t, err)

	changed := make(chan *config.Config, 1)
	p.OnChange(func(c *config.Config) { changed <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Watch(ctx))
	defer p.Stop()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":5050\"\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, ":5050", cfg.Server.Addr)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for hot reload")
	}
}
