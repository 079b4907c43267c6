package actor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable actor store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS actor_state (
			name TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (name, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actor_state_name ON actor_state(name)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, name, key string, out any) (bool, error) {
	query := `SELECT value FROM actor_state WHERE name = ? AND key = ?`

	var raw string
	err := s.db.QueryRowContext(ctx, query, name, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get actor state %s/%s: %w", name, key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("unmarshal actor state %s/%s: %w", name, key, err)
	}
	return true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, name, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal actor state %s/%s: %w", name, key, err)
	}

	query := `INSERT INTO actor_state (name, key, value, updated_at)
	          VALUES (?, ?, ?, ?)
	          ON CONFLICT(name, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, name, key, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("put actor state %s/%s: %w", name, key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM actor_state WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clear actor state %s: %w", name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
