// Package archive provides SQLite-backed history of completed stage passes.
// It feeds the status command and dashboard; the task files remain the
// source of truth.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database holding stage completion history.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// Completion records one successful stage pass over a task.
type Completion struct {
	// TaskID is the task the stage ran over.
	TaskID string
	// Role is the stage role that completed.
	Role string
	// Provider is the provider that served the stage call.
	Provider string
	// Model is the model the call was routed to.
	Model string
	// Tokens is the estimated token cost of the pass.
	Tokens int
	// Excerpt is a truncated sample of the stage result.
	Excerpt string
	// CreatedAt is when the pass completed.
	CreatedAt time.Time
}

// ProjectPath returns the archive location inside a project base path.
func ProjectPath(basePath string) string {
	return filepath.Join(basePath, ".nexus", "archive.db")
}

// Open opens the archive at path, creating parent directories. WAL mode is
// enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema.
func (d *DB) Migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS completions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	role TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	tokens INTEGER NOT NULL DEFAULT 0,
	excerpt TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completions_task ON completions(task_id);
CREATE INDEX IF NOT EXISTS idx_completions_created ON completions(created_at);
`
	if _, err := d.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// RecordCompletion appends one completion row.
func (d *DB) RecordCompletion(c Completion) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := d.conn.Exec(
		"INSERT INTO completions (task_id, role, provider, model, tokens, excerpt, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.TaskID, c.Role, c.Provider, c.Model, c.Tokens, c.Excerpt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// RecentCompletions returns the newest n completions, newest first.
func (d *DB) RecentCompletions(n int) ([]Completion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query(
		"SELECT task_id, role, provider, model, tokens, excerpt, created_at FROM completions ORDER BY created_at DESC, id DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []Completion
	for rows.Next() {
		var c Completion
		if err := rows.Scan(&c.TaskID, &c.Role, &c.Provider, &c.Model, &c.Tokens, &c.Excerpt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CompletionCounts returns the number of completions per role.
func (d *DB) CompletionCounts() (map[string]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.Query("SELECT role, COUNT(*) FROM completions GROUP BY role")
	if err != nil {
		return nil, fmt.Errorf("count completions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.conn.Close()
}
