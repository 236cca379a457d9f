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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags, left as a placeholder
// otherwise.
var version = "dev"

var cfgFile string
var logLevel string

var rootCmd = &cobra.Command{
	Use:     "ember",
	Short:   "Ember - a persistent desktop AI companion core",
	Long:    `Ember orients itself to what you're doing, tracks concerns across sessions, journals its own reflections, and tracks how its persona drifts over time — all behind a single bearer-token-guarded front door.`,
	Version: version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ember.yaml, $HOME/.ember/ember.yaml, /etc/ember/ember.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// newLogger builds a production zap.Logger honoring --log-level.
func newLogger() (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()

	level := zap.InfoLevel
	if logLevel != "" {
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			fmt.Fprintf(os.Stderr, "invalid --log-level %q, using info: %v\n", logLevel, err)
		} else {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zapCfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
