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

// Package config loads and hot-reloads the companion's configuration.
// Viper's own resolution order applies: EMBER_-prefixed environment
// variables rank highest, then the config file, then the defaults set in
// this package. No command-line flag is bound into viper.
package config

import (
	"time"
)

// ServerConfig tunes the front-door HTTP/WebSocket listener.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	AuthToken string `mapstructure:"auth_token"`
}

// LLMConfig addresses a single OpenAI-compatible chat-completions endpoint.
type LLMConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

// StoreConfig locates and optionally encrypts the persistent database file.
type StoreConfig struct {
	Path            string `mapstructure:"path"`
	EncryptDatabase bool   `mapstructure:"encrypt_database"`
	EncryptionKey   string `mapstructure:"encryption_key"`
}

// ObservabilityConfig controls the standalone Prometheus listener.
type ObservabilityConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Addr      string `mapstructure:"addr"`
}

// TelegramConfig enables the optional external chat bridge. BotToken empty
// means the bridge is not started.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	// ChatID restricts the bridge to a single chat when non-zero.
	ChatID int64 `mapstructure:"chat_id"`
}

// SchedulerConfig tunes the ambient tick loop.
type SchedulerConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	ReflectionInterval time.Duration `mapstructure:"reflection_interval"`
	JournalMinInterval time.Duration `mapstructure:"journal_min_interval"`
	MaxPostsPerHour    int           `mapstructure:"max_posts_per_hour"`
	ConversationTitle  string        `mapstructure:"conversation_title"`
	MaxHistoryMessages int           `mapstructure:"max_history_messages"`
}

// PersonaConfig seeds the guiding principles every persona snapshot is
// scored against.
type PersonaConfig struct {
	GuidingPrinciples []string `mapstructure:"guiding_principles"`
}

// MCPServerConfig describes one external MCP tool source, bridged over
// stdio into the tool registry alongside the built-ins.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Filter  []string          `mapstructure:"filter"`
}

// CapabilityConfig layers config-driven allow/disallow overrides on top of
// the built-in per-session-context tool posture.
type CapabilityConfig struct {
	Overrides map[string]CapabilityOverride `mapstructure:"overrides"`
}

// CapabilityOverride is one session context's allow/disallow override.
type CapabilityOverride struct {
	Allow    []string `mapstructure:"allow"`
	Disallow []string `mapstructure:"disallow"`
}

// Config is the companion's full, layered configuration surface.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Store         StoreConfig         `mapstructure:"store"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Persona       PersonaConfig       `mapstructure:"persona"`
	MCPServers    []MCPServerConfig   `mapstructure:"mcp_servers"`
	Capability    CapabilityConfig    `mapstructure:"capability"`
}
