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

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrInvalid wraps a config rejected by validate, so a bad PUT /v1/config or
// a bad on-disk edit never replaces a working configuration.
var ErrInvalid = errors.New("invalid configuration")

func validate(cfg *Config) error {
	var problems []string
	if cfg.Server.Addr == "" {
		problems = append(problems, "server.addr must not be empty")
	}
	if cfg.LLM.Endpoint == "" {
		problems = append(problems, "llm.endpoint must not be empty")
	}
	if cfg.LLM.Timeout <= 0 {
		problems = append(problems, "llm.timeout must be positive")
	}
	if cfg.Store.Path == "" {
		problems = append(problems, "store.path must not be empty")
	}
	if cfg.Scheduler.TickInterval <= 0 {
		problems = append(problems, "scheduler.tick_interval must be positive")
	}
	if cfg.Scheduler.MaxPostsPerHour < 0 {
		problems = append(problems, "scheduler.max_posts_per_hour must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// debounceDelay settles rapid-fire writes (editors, PUT followed by a
// filesystem sync) into a single reload.
const debounceDelay = 300 * time.Millisecond

// Provider is the live, hot-reloadable configuration surface handed to
// pkg/server as its ConfigProvider and to cmd/ember at startup. Reads and
// writes of the current snapshot are safe for concurrent use.
type Provider struct {
	mu      sync.RWMutex
	v       *viper.Viper
	cfg     *Config
	cfgFile string
	logger  *zap.Logger

	onChangeMu sync.Mutex
	onChange   []func(*Config)

	watcher       *fsnotify.Watcher
	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewProvider loads cfgFile (or searches defaultConfigPaths when empty) and
// wraps the result for hot reload and programmatic updates.
func NewProvider(cfgFile string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, v, err := Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Provider{
		v:       v,
		cfg:     cfg,
		cfgFile: v.ConfigFileUsed(),
		logger:  logger,
	}, nil
}

// Current returns the active configuration snapshot.
func (p *Provider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg := *p.cfg
	return &cfg
}

// Get implements pkg/server.ConfigProvider.
func (p *Provider) Get(ctx context.Context) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.AllSettings(), nil
}

// Update implements pkg/server.ConfigProvider: it merges patch over the
// current settings, validates the result, and only then commits it — both
// in memory and, when a config file is in use, back to disk — and notifies
// every OnChange subscriber. A patch that fails validation leaves the
// running configuration untouched.
func (p *Provider) Update(ctx context.Context, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.v.MergeConfigMap(patch); err != nil {
		return fmt.Errorf("merge config patch: %w", err)
	}
	var next Config
	if err := p.v.Unmarshal(&next); err != nil {
		return fmt.Errorf("unmarshal patched config: %w", err)
	}
	if err := validate(&next); err != nil {
		return err
	}

	if p.cfgFile != "" {
		if err := p.v.WriteConfigAs(p.cfgFile); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}
	p.cfg = &next
	p.notify(&next)
	return nil
}

// OnChange registers fn to run, with the new snapshot, every time Update or
// a watched file change commits a new configuration.
func (p *Provider) OnChange(fn func(*Config)) {
	p.onChangeMu.Lock()
	defer p.onChangeMu.Unlock()
	p.onChange = append(p.onChange, fn)
}

func (p *Provider) notify(cfg *Config) {
	p.onChangeMu.Lock()
	fns := append([]func(*Config){}, p.onChange...)
	p.onChangeMu.Unlock()
	for _, fn := range fns {
		fn(cfg)
	}
}

// Watch starts watching the config file on disk for external edits,
// debouncing bursts of writes and reloading once they settle. It is a
// no-op when no config file was loaded (defaults/env-only configuration has
// nothing to watch). Call Stop to release the watcher.
func (p *Provider) Watch(ctx context.Context) error {
	if p.cfgFile == "" {
		p.logger.Info("config hot-reload skipped: no config file in use")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.cfgFile)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}

	p.watcher = watcher
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.watchLoop(ctx)
	p.logger.Info("config hot-reload active", zap.String("path", p.cfgFile))
	return nil
}

func (p *Provider) watchLoop(ctx context.Context) {
	defer close(p.doneCh)
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.cfgFile) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounce(p.reloadFromDisk)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", zap.Error(err))
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provider) debounce(fn func()) {
	p.debounceMu.Lock()
	defer p.debounceMu.Unlock()
	if p.debounceTimer != nil {
		p.debounceTimer.Stop()
	}
	p.debounceTimer = time.AfterFunc(debounceDelay, fn)
}

func (p *Provider) reloadFromDisk() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.v.ReadInConfig(); err != nil {
		p.logger.Warn("config reload: re-read failed, keeping previous configuration", zap.Error(err))
		return
	}
	var next Config
	if err := p.v.Unmarshal(&next); err != nil {
		p.logger.Warn("config reload: unmarshal failed, keeping previous configuration", zap.Error(err))
		return
	}
	if err := validate(&next); err != nil {
		p.logger.Warn("config reload: rejected invalid configuration, keeping previous", zap.Error(err))
		return
	}
	p.cfg = &next
	p.logger.Info("config reloaded from disk")
	p.notify(&next)
}

// Stop releases the file watcher started by Watch. Safe to call even if
// Watch was never started.
func (p *Provider) Stop() error {
	if p.watcher == nil {
		return nil
	}
	close(p.stopCh)
	err := p.watcher.Close()
	<-p.doneCh
	return err
}
