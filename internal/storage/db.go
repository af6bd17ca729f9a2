package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"debt-tracker/internal/models"
	"debt-tracker/internal/session"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

var _ session.Store = (*DB)(nil)

// DB wraps a sql.DB connection holding browser sessions.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serialises writes.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			flash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves the session stored for a browser id. Unknown ids yield a
// zero Session.
func (db *DB) Get(ctx context.Context, id string) (models.Session, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT token, username FROM sessions WHERE id = ?",
		id,
	)

	var s models.Session
	if err := row.Scan(&s.Token, &s.Username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, nil
		}
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s.Normalize(), nil
}

// Set stores token and username for a browser id, replacing any previous
// values.
func (db *DB) Set(ctx context.Context, id, token, username string) error {
	now := time.Now().Unix()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, token, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			username = excluded.username,
			updated_at = excluded.updated_at
	`, id, token, username, now, now)
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Clear removes the session of a browser id.
func (db *DB) Clear(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SetFlash stores the pending flash of a browser id. Ids without a session
// row are ignored.
func (db *DB) SetFlash(ctx context.Context, id string, f models.Flash) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode flash: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, "UPDATE sessions SET flash = ? WHERE id = ?", string(data), id); err != nil {
		return fmt.Errorf("set flash: %w", err)
	}
	return nil
}

// TakeFlash returns the pending flash of a browser id and clears it.
func (db *DB) TakeFlash(ctx context.Context, id string) (models.Flash, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Flash{}, fmt.Errorf("take flash: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT flash FROM sessions WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && raw == "") {
		return models.Flash{}, nil
	}
	if err != nil {
		return models.Flash{}, fmt.Errorf("take flash: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET flash = '' WHERE id = ?", id); err != nil {
		return models.Flash{}, fmt.Errorf("take flash: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Flash{}, fmt.Errorf("take flash: %w", err)
	}

	var f models.Flash
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return models.Flash{}, fmt.Errorf("decode flash: %w", err)
	}
	return f, nil
}

// CleanIdleSessions removes sessions not written for longer than maxIdle and
// returns how many were removed.
func (db *DB) CleanIdleSessions(ctx context.Context, maxIdle time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxIdle).Unix()
	res, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean sessions: %w", err)
	}
	return res.RowsAffected()
}

// SessionCount returns the number of stored sessions.
func (db *DB) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
