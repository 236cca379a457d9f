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

package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/embercore/ember/internal/sqlitedriver"
)

// Config controls how the persistent store opens its SQLite database.
type Config struct {
	// Path to the SQLite file. ":memory:" is accepted for tests.
	Path string
	// EncryptDatabase enables SQLCipher ("PRAGMA key"). Only effective on
	// CGO builds; see internal/sqlitedriver.EncryptionSupported.
	EncryptDatabase bool
	// EncryptionKey is the passphrase used for PRAGMA key. If empty and
	// EncryptDatabase is true, the EMBER_DB_KEY environment variable is
	// used instead.
	EncryptionKey string
}

// emberDBKeyEnv is the fallback environment variable for the database
// encryption passphrase.
const emberDBKeyEnv = "EMBER_DB_KEY"

// Open opens (and if necessary creates) the SQLite database described by
// cfg, using the driver registered by internal/sqlitedriver, and verifies
// connectivity with a ping.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if cfg.EncryptDatabase {
		key := cfg.EncryptionKey
		if key == "" {
			key = os.Getenv(emberDBKeyEnv)
		}
		if key != "" {
			if _, err := db.Exec(fmt.Sprintf("PRAGMA key = %q", key)); err != nil {
				db.Close()
				return nil, fmt.Errorf("set encryption key: %w", err)
			}
		}
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return db, nil
}
