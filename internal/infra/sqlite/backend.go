// Package sqlite is the on-device progress backend: one file, one table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"eduquest-progress/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS progress_records (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

type Backend struct {
	db *sqlx.DB
}

// Open connects to the database at path (":memory:" for a throwaway store)
// and creates the schema.
func Open(path string) (*Backend, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Printf("[store] sqlite ready at %s", path)
	return &Backend{db: db}, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := b.db.GetContext(ctx, &raw, `SELECT value FROM progress_records WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", key, err)
	}
	return raw, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO progress_records (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, key, value)
	if err != nil {
		return fmt.Errorf("put record %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	err := b.db.SelectContext(ctx, &keys,
		`SELECT key FROM progress_records WHERE key LIKE ? ESCAPE '\' ORDER BY key`, r.Replace(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", prefix, err)
	}
	return keys, nil
}
