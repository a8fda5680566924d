package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/attune/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS targets (
	id         TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	is_active  INTEGER NOT NULL DEFAULT 1,
	priority   INTEGER NOT NULL DEFAULT 5,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_targets_position ON targets(position);
`

// SQLiteStore keeps the registry in a SQLite table keyed by target id. Each
// Save rewrites the table inside one transaction.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	// SQLite has a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

// Load returns all targets ordered by registration position.
func (s *SQLiteStore) Load(ctx context.Context) ([]models.Target, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT record FROM targets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("registry: load: %w", err)
	}
	defer rows.Close()

	var out []models.Target
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("registry: scan: %w", err)
		}
		var t models.Target
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("registry: decode record: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Save replaces every row with targets in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, targets []models.Target) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM targets`); err != nil {
		return fmt.Errorf("registry: clear: %w", err)
	}
	if len(targets) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO targets (id, position, name, is_active, priority, record, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("registry: prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, t := range targets {
			raw, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("registry: encode %s: %w", t.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, t.ID, t.Position, t.Name, t.IsActive, t.Priority, string(raw), t.UpdatedAt); err != nil {
				return fmt.Errorf("registry: insert %s: %w", t.ID, err)
			}
		}
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
