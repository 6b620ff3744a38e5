// Package store implements the Session, Task/Phase, and History stores
// (spec.md §2 rows D/E/F) on SQLite via database/sql and
// github.com/mattn/go-sqlite3, grounded on the teacher's
// internal/persistence/databases/chat_store_postgres.go UPSERT idiom
// adapted from Postgres CTEs to SQLite's INSERT ... ON CONFLICT.
package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by lookups that find no row, mirroring
// persistence.ErrNotFound in the teacher's store interfaces.
var ErrNotFound = errors.New("store: not found")

var fallbackOnce sync.Once

// openWithFallback opens a SQLite database at path; on a disk I/O error it
// falls back to a tempdir database with the same basename, logging the
// fallback once per process (spec.md §5: "on 'disk I/O error' the store silently falls back
// to a tempdir database path, logged once per process. All three stores
// share this fallback policy").
func openWithFallback(path string, tempDirFallback bool) (*sql.DB, error) {
	db, err := openSQLite(path)
	if err == nil {
		return db, nil
	}
	if !tempDirFallback || !isDiskIOError(err) {
		return nil, err
	}
	fallbackPath := filepath.Join(os.TempDir(), filepath.Base(path))
	fallbackOnce.Do(func() {
		log.Warn().Str("path", path).Str("fallback", fallbackPath).Err(err).
			Msg("store: disk I/O error, falling back to tempdir database")
	})
	return openSQLite(fallbackPath)
}

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// isDiskIOError matches sqlite3's "disk I/O error" class of failures rather
// than constraint violations or syntax errors, which should surface as-is.
func isDiskIOError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "disk i/o error") ||
		strings.Contains(msg, "unable to open database file") ||
		strings.Contains(msg, "readonly database") ||
		strings.Contains(msg, "no such file or directory")
}
