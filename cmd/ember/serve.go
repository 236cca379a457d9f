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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/embercore/ember/internal/config"
	"github.com/embercore/ember/internal/eventbus"
	"github.com/embercore/ember/pkg/agent"
	"github.com/embercore/ember/pkg/bridge/telegram"
	"github.com/embercore/ember/pkg/concerns"
	"github.com/embercore/ember/pkg/journal"
	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/memory"
	"github.com/embercore/ember/pkg/memory/episodic"
	"github.com/embercore/ember/pkg/memory/fts"
	"github.com/embercore/ember/pkg/memory/kv"
	"github.com/embercore/ember/pkg/memory/semantic"
	"github.com/embercore/ember/pkg/observability"
	"github.com/embercore/ember/pkg/orientation"
	"github.com/embercore/ember/pkg/persona"
	"github.com/embercore/ember/pkg/presence"
	"github.com/embercore/ember/pkg/scheduler"
	"github.com/embercore/ember/pkg/server"
	"github.com/embercore/ember/pkg/store"
	"github.com/embercore/ember/pkg/tools/approval"
	"github.com/embercore/ember/pkg/tools/builtin"
	"github.com/embercore/ember/pkg/tools/capability"
	"github.com/embercore/ember/pkg/tools/mcp"
	"github.com/embercore/ember/pkg/tools/registry"
	"github.com/embercore/ember/pkg/tools/safety"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ambient loop and the HTTP/WebSocket front door",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := config.NewProvider(cfgFile, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := provider.Current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, store.Config{
		Path:            cfg.Store.Path,
		EncryptDatabase: cfg.Store.EncryptDatabase,
		EncryptionKey:   cfg.Store.EncryptionKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	metrics := observability.New(observability.Config{
		Enabled:   cfg.Observability.Enabled,
		Namespace: cfg.Observability.Namespace,
		Addr:      cfg.Observability.Addr,
	})

	activeMemory, err := selectActiveMemoryBackend(ctx, st, logger)
	if err != nil {
		return fmt.Errorf("select working memory backend: %w", err)
	}

	overrides := make(map[capability.SessionContext]capability.Overrides, len(cfg.Capability.Overrides))
	for sessionCtx, ov := range cfg.Capability.Overrides {
		overrides[capability.SessionContext(sessionCtx)] = capability.Overrides{Allow: ov.Allow, Disallow: ov.Disallow}
	}
	policy := capability.NewPolicy(overrides)
	gate := approval.New()
	safetyPipeline := safety.New()

	reg := registry.New(policy, gate, safetyPipeline, logger)
	reg.SetMetrics(metrics)
	registerBuiltinTools(reg, activeMemory, cfg.Store.Path)

	var mcpSources []*mcp.Source
	for _, mcpCfg := range cfg.MCPServers {
		src, err := mcp.New(mcp.Config{
			Name:    mcpCfg.Name,
			Command: mcpCfg.Command,
			Args:    mcpCfg.Args,
			Env:     mcpCfg.Env,
			Filter:  mcpCfg.Filter,
		})
		if err != nil {
			logger.Warn("skipping misconfigured mcp server", zap.String("name", mcpCfg.Name), zap.Error(err))
			continue
		}
		tools, err := src.Tools(ctx)
		if err != nil {
			logger.Warn("failed to connect to mcp server", zap.String("name", mcpCfg.Name), zap.Error(err))
			continue
		}
		for _, t := range tools {
			reg.Register(t)
		}
		mcpSources = append(mcpSources, src)
		logger.Info("mcp server bridged", zap.String("name", mcpCfg.Name), zap.Int("tools", len(tools)))
	}
	defer func() {
		for _, src := range mcpSources {
			_ = src.Close()
		}
	}()

	llmClient := llm.New(llm.Config{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	loop := agent.New(llmClient, reg, logger)

	personaAdapter := llm.NewPersonaAdapter(llmClient)
	personaTracker := persona.New(st, cfg.Persona.GuidingPrinciples, personaAdapter, personaAdapter)

	orientationEngine := orientation.New(llm.NewDecider(llmClient))
	concernsTracker := concerns.New(st)
	journalWriter := journal.New(st, cfg.Scheduler.JournalMinInterval)
	presenceSampler := presence.New()
	drafter := scheduler.NewLLMJournalDrafter(llmClient)

	sched := scheduler.New(scheduler.Deps{
		Store:       st,
		Concerns:    concernsTracker,
		Journal:     journalWriter,
		Persona:     personaTracker,
		Orientation: orientationEngine,
		Presence:    presenceSampler,
		Runner:      loop,
		Drafter:     drafter,
		Bus:         eventbus.NewBroker[scheduler.TickResult](),
		Logger:      logger,
	}, scheduler.Config{
		TickInterval:        cfg.Scheduler.TickInterval,
		ReflectionInterval:  cfg.Scheduler.ReflectionInterval,
		JournalMinInterval:  cfg.Scheduler.JournalMinInterval,
		MaxPostsPerHour:     cfg.Scheduler.MaxPostsPerHour,
		ConversationTitle:   cfg.Scheduler.ConversationTitle,
		MaxHistoryMessages:  cfg.Scheduler.MaxHistoryMessages,
	})
	sched.SetMetrics(metrics)

	srv := server.New(server.Deps{
		Store:     st,
		Scheduler: sched,
		Registry:  reg,
		Config:    provider,
		Logger:    logger,
		Stop:      cancel,
	}, server.Config{
		Addr:      cfg.Server.Addr,
		AuthToken: cfg.Server.AuthToken,
	})

	provider.OnChange(func(c *config.Config) {
		logger.Info("configuration reloaded")
	})
	if err := provider.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", zap.Error(err))
	}
	defer provider.Stop()

	var tg *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		var chatID *int64
		if cfg.Telegram.ChatID != 0 {
			id := cfg.Telegram.ChatID
			chatID = &id
		}
		tg = telegram.New(cfg.Telegram.BotToken, chatID, st, logger)
	}

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("front door stopped", zap.Error(err))
		}
	}()

	var metricsSrv *observability.Server
	if metrics != nil {
		metricsSrv = observability.NewServer(metrics)
		go func() {
			if err := metricsSrv.Start(ctx); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	if tg != nil {
		go func() {
			if err := tg.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("telegram bridge stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("ember is running", zap.String("addr", cfg.Server.Addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down front door", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down metrics server", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// registerBuiltinTools registers every built-in tool against reg. storePath
// scopes the filesystem tools to the directory containing the database
// file, keeping the agent's unrestricted file access tied to its own data
// directory rather than the whole filesystem.
func registerBuiltinTools(reg *registry.Registry, mem memory.Backend, storePath string) {
	root := workspaceRoot(storePath)

	reg.Register(&builtin.FetchTool{})
	reg.Register(&builtin.ReadFileTool{Root: root})
	reg.Register(&builtin.WriteFileTool{Root: root})
	reg.Register(&builtin.PatchFileTool{Root: root})
	reg.Register(&builtin.ShellTool{WorkingDirectory: root})
	reg.Register(&builtin.SearchMemoryTool{Backend: mem})
	reg.Register(&builtin.WriteMemoryTool{Backend: mem})

	reg.Register(builtin.NewGenerateComfyMediaTool(nil))
	reg.Register(builtin.NewPublishMediaToChatTool(nil))
	reg.Register(builtin.NewScreenCaptureTool(nil))
	reg.Register(builtin.NewCameraCaptureTool(nil))
}

func workspaceRoot(storePath string) string {
	dir := "."
	if storePath != "" {
		if d := dirOf(storePath); d != "" {
			dir = d
		}
	}
	return dir
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
