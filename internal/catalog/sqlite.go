package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingrea/archspec/internal/spec"
)

// ErrNotStored reports a spec id that is not in the store.
var ErrNotStored = errors.New("catalog: spec not stored")

const storeSchema = `
CREATE TABLE IF NOT EXISTS specs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT,
	document TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_specs_name ON specs(name);
`

// SQLiteStore persists spec documents as YAML rows. It implements
// registry.Source so imported specs load alongside the built-in catalog.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenSQLite opens (creating if needed) the store at path. Use ":memory:"
// for a throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}
	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	for _, stmt := range strings.Split(storeSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("catalog: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) String() string { return "sqlite " + s.path }

// Put inserts or replaces the stored document for the spec's id.
func (s *SQLiteStore) Put(ctx context.Context, as spec.ArchitectureSpec) error {
	as = as.Normalized()
	if as.ID == "" {
		return fmt.Errorf("catalog: cannot store a spec without an id")
	}
	doc, err := spec.MarshalYAML(as)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO specs (id, name, version, document, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, version = excluded.version,
		 document = excluded.document, updated_at = excluded.updated_at`,
		as.ID, as.Name, as.Version, string(doc), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("catalog: put %s: %w", as.ID, err)
	}
	return nil
}

// Get returns the stored spec with id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (spec.ArchitectureSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM specs WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return spec.ArchitectureSpec{}, fmt.Errorf("%w: %s", ErrNotStored, id)
	}
	if err != nil {
		return spec.ArchitectureSpec{}, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return spec.ParseOneYAML([]byte(doc))
}

// Delete removes the spec with id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM specs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("catalog: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotStored, id)
	}
	return nil
}

// Load returns every stored spec ordered by id.
func (s *SQLiteStore) Load(ctx context.Context) ([]spec.ArchitectureSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT id, document FROM specs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("catalog: list specs: %w", err)
	}
	defer rows.Close()
	var specs []spec.ArchitectureSpec
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("catalog: scan spec row: %w", err)
		}
		parsed, err := spec.ParseOneYAML([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("catalog: stored spec %s: %w", id, err)
		}
		specs = append(specs, parsed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list specs: %w", err)
	}
	return specs, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
