package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"goalpilot/internal/logging"

	_ "modernc.org/sqlite"
)

// SQLitePort is a Port backed by a single-table SQLite database.
// It survives process restarts, which is what lets the engine resume
// goals after the host is suspended and resumed.
type SQLitePort struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewSQLitePort opens (or creates) the database at dbPath and runs the
// idempotent schema migration.
func NewSQLitePort(dbPath string) (*SQLitePort, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for better concurrency between the loop and CLI reads.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	p := &SQLitePort{db: db}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logging.Storage("SQLite port opened at %s", dbPath)
	return p, nil
}

func (p *SQLitePort) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := p.db.Exec(schema)
	return err
}

// Get returns the blob stored under key.
func (p *SQLitePort) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, false, ErrClosed
	}

	var blob []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query blob: %w", err)
	}
	return blob, true, nil
}

// Set stores blob under key, replacing any previous value.
func (p *SQLitePort) Set(ctx context.Context, key string, blob []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, blob,
	)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	logging.StorageDebug("Set %s (%d bytes)", key, len(blob))
	return nil
}

// Delete removes key.
func (p *SQLitePort) Delete(ctx context.Context, key string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if _, err := p.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (p *SQLitePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
