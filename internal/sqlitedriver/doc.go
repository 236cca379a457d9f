// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3" for the persistent store (agent state, memory backends,
// conversation history). When built with CGO (the default on macOS/Linux)
// it uses go-sqlcipher, which provides SQLCipher encryption so the
// companion's memory can be stored at rest under a passphrase. When CGO is
// unavailable (cross-compiled builds, Windows without a C toolchain) it
// falls back to the pure-Go modernc.org/sqlite driver — functional but
// without PRAGMA key support.
//
// Import this package for its side effects only:
//
//	import _ "github.com/embercore/ember/internal/sqlitedriver"
package sqlitedriver
