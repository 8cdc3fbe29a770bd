// Package cache persists LLM completions in SQLite so repeated runs of the
// same scenario can replay responses, and keeps a per-session log of every
// call for token and cost reporting.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/entrhq/webtest/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entry is a stored completion keyed by its request fingerprint.
type Entry struct {
	CreatedAt time.Time
	Usage     *types.Usage
	Key       string
	Model     string
	Content   string
	Thinking  string
}

// Record is one row of the completion log.
type Record struct {
	CreatedAt        time.Time
	ID               string
	SessionID        string
	Role             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Latency          time.Duration
	Cached           bool
}

// Store is a SQLite-backed completion cache and call log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns ~/.webtest/cache.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "webtest", "cache.db")
	}
	return filepath.Join(home, ".webtest", "cache.db")
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Batch runs share one store; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached entry for key, or nil if there is none.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, model, content, thinking,
		       prompt_tokens, completion_tokens, total_tokens, created_at
		FROM completion_cache WHERE cache_key = ?`, key)

	var e Entry
	var u types.Usage
	var created int64
	err := row.Scan(&e.Key, &e.Model, &e.Content, &e.Thinking,
		&u.PromptTokens, &u.CompletionTokens, &u.TotalTokens, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}
	e.Usage = &u
	e.CreatedAt = time.UnixMilli(created)
	return &e, nil
}

// Put stores or replaces a cache entry.
func (s *Store) Put(ctx context.Context, e *Entry) error {
	var u types.Usage
	if e.Usage != nil {
		u = *e.Usage
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completion_cache
			(cache_key, model, content, thinking, prompt_tokens, completion_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			model = excluded.model,
			content = excluded.content,
			thinking = excluded.thinking,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			total_tokens = excluded.total_tokens,
			created_at = excluded.created_at`,
		e.Key, e.Model, e.Content, e.Thinking,
		u.PromptTokens, u.CompletionTokens, u.TotalTokens, created.UnixMilli())
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Log appends a record to the completion log. ID and CreatedAt are filled in
// when empty.
func (s *Store) Log(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	cached := 0
	if r.Cached {
		cached = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completion_log
			(id, session_id, role, model, prompt_tokens, completion_tokens, total_tokens, cached, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Role, r.Model,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens,
		cached, r.Latency.Milliseconds(), r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("log completion: %w", err)
	}
	return nil
}

// Records returns the log rows of a session in call order.
func (s *Store) Records(ctx context.Context, sessionID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, model, prompt_tokens, completion_tokens,
		       total_tokens, cached, latency_ms, created_at
		FROM completion_log WHERE session_id = ?
		ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query completion log: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var r Record
		var cached int
		var latency, created int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Role, &r.Model,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&cached, &latency, &created); err != nil {
			return nil, fmt.Errorf("scan completion log: %w", err)
		}
		r.Cached = cached != 0
		r.Latency = time.Duration(latency) * time.Millisecond
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}
