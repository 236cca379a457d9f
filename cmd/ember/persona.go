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

	"github.com/spf13/cobra"

	"github.com/embercore/ember/internal/config"
	"github.com/embercore/ember/pkg/persona"
	"github.com/embercore/ember/pkg/store"
)

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage imported character cards",
}

var importCharacterName string

var importCharacterCmd = &cobra.Command{
	Use:   "import-character <file>",
	Short: "Import a character card and make it the active system prompt",
	Long: `import-character parses a Character Card V2-style text card, persists
it under the given name, and writes the system prompt derived from it as
current_system_prompt — the prompt the scheduler hands the agentic loop
on every tick until something else overwrites that agent_state key.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportCharacter,
}

func init() {
	importCharacterCmd.Flags().StringVar(&importCharacterName, "name", "", "name to store the card under (default: the file name without extension)")
	personaCmd.AddCommand(importCharacterCmd)
	rootCmd.AddCommand(personaCmd)
}

func runImportCharacter(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read character card %q: %w", path, err)
	}

	name := importCharacterName
	if name == "" {
		name = deriveCardName(path)
	}

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

	ctx := context.Background()
	st, err := store.New(ctx, store.Config{
		Path:            cfg.Store.Path,
		EncryptDatabase: cfg.Store.EncryptDatabase,
		EncryptionKey:   cfg.Store.EncryptionKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	parsed, systemPrompt, err := persona.ImportCharacterCard(ctx, st, name, string(content))
	if err != nil {
		return err
	}
	if err := st.SetAgentState(ctx, "current_system_prompt", systemPrompt); err != nil {
		return fmt.Errorf("activate imported character: %w", err)
	}

	fmt.Printf("imported %q as %q and activated it as the current system prompt\n", parsed.Name, name)
	return nil
}

func deriveCardName(path string) string {
	base := path
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}
