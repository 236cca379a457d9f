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
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigName is the base file name (without extension) Load
// searches for when cfgFile is empty.
const DefaultConfigName = "ember"

// defaultConfigPaths are searched, in order, for DefaultConfigName.yaml when
// no explicit path is given.
var defaultConfigPaths = []string{".", "$HOME/.ember", "/etc/ember"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.auth_token", "")

	v.SetDefault("llm.endpoint", "http://localhost:11434/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("store.path", "ember.db")
	v.SetDefault("store.encrypt_database", false)

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.namespace", "ember")
	v.SetDefault("observability.addr", ":9090")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("scheduler.tick_interval", "30s")
	v.SetDefault("scheduler.reflection_interval", "6h")
	v.SetDefault("scheduler.journal_min_interval", "1h")
	v.SetDefault("scheduler.max_posts_per_hour", 4)
	v.SetDefault("scheduler.conversation_title", "primary")
	v.SetDefault("scheduler.max_history_messages", 40)

	v.SetDefault("persona.guiding_principles", []string{"curiosity", "empathy", "autonomy", "honesty", "playfulness"})
}

// newViper builds a viper.Viper wired for this module's layering:
// EMBER_-prefixed environment variables take precedence over the config
// file, which takes precedence over the defaults set here. No command-line
// flag is bound into this layering.
func newViper(cfgFile string) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		for _, p := range defaultConfigPaths {
			v.AddConfigPath(p)
		}
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("EMBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load reads cfgFile (or searches defaultConfigPaths when empty), layers in
// environment variables and defaults, and unmarshals the result. A missing
// config file is not an error — defaults and env vars still apply.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := newViper(cfgFile)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, v, nil
}
