// Package store persists relations in SQLite. It loads base relations from
// ordinary tables and keeps derived relations between runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"deduce/internal/dataset"
	"deduce/internal/logging"
	"deduce/internal/relation"
)

// RelationStore is a SQLite-backed scope.Registrar. Derived relations are
// stored one row per tuple; registering a name replaces its previous tuples.
type RelationStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens (creating if needed) the database at path. ":memory:" is
// accepted for throwaway stores.
func Open(path string) (*RelationStore, error) {
	logging.Store("Opening relation store at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	s := &RelationStore{db: db, dbPath: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure relation schema: %w", err)
	}
	return s, nil
}

func (s *RelationStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS derived_relations (
		name TEXT PRIMARY KEY,
		arity INTEGER NOT NULL,
		tuple_count INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS derived_tuples (
		name TEXT NOT NULL,
		tuple_key BLOB NOT NULL,
		vals TEXT NOT NULL,
		PRIMARY KEY (name, tuple_key)
	);

	CREATE INDEX IF NOT EXISTS idx_tuples_name ON derived_tuples(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying connection, for LoadRelation over user tables.
func (s *RelationStore) DB() *sql.DB { return s.db }

// Path returns the database path.
func (s *RelationStore) Path() string { return s.dbPath }

// Close closes the database.
func (s *RelationStore) Close() error {
	return s.db.Close()
}

// Register stores rel under name, replacing what was there.
func (s *RelationStore) Register(name string, rel relation.Relation) error {
	return s.Save(context.Background(), name, rel)
}

// Save stores rel under name in one transaction.
func (s *RelationStore) Save(ctx context.Context, name string, rel relation.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM derived_tuples WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to clear %s: %w", name, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO derived_tuples (name, tuple_key, vals) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	rel.Each(func(t relation.Tuple) bool {
		vals, err := encodeTuple(t)
		if err != nil {
			insertErr = err
			return false
		}
		if _, err := stmt.ExecContext(ctx, name, []byte(t.Key()), vals); err != nil {
			insertErr = fmt.Errorf("failed to insert %s%s: %w", name, t, err)
			return false
		}
		return true
	})
	if insertErr != nil {
		return insertErr
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO derived_relations (name, arity, tuple_count, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			arity = excluded.arity,
			tuple_count = excluded.tuple_count,
			updated_at = CURRENT_TIMESTAMP`,
		name, rel.Arity(), rel.Len())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}

	elapsed := time.Since(start)
	logging.StoreDebug("saved %s: %d tuples in %v", name, rel.Len(), elapsed)
	logging.Audit().StoreOp(logging.AuditStoreWrite, name, rel.Len(), elapsed)
	return nil
}

// Relation loads a stored relation. ok is false when name was never saved.
func (s *RelationStore) Relation(ctx context.Context, name string) (rel relation.Relation, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var arity int
	err = s.db.QueryRowContext(ctx, `SELECT arity FROM derived_relations WHERE name = ?`, name).Scan(&arity)
	if errors.Is(err, sql.ErrNoRows) {
		return relation.Relation{}, false, nil
	}
	if err != nil {
		return relation.Relation{}, false, fmt.Errorf("failed to look up %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT vals FROM derived_tuples WHERE name = ?`, name)
	if err != nil {
		return relation.Relation{}, false, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer rows.Close()

	b := relation.NewBuilder(arity)
	for rows.Next() {
		var vals string
		if err := rows.Scan(&vals); err != nil {
			return relation.Relation{}, false, fmt.Errorf("failed to scan %s: %w", name, err)
		}
		t, err := decodeTuple(vals)
		if err != nil {
			return relation.Relation{}, false, fmt.Errorf("%s: %w", name, err)
		}
		if _, err := b.Add(t); err != nil {
			return relation.Relation{}, false, fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return relation.Relation{}, false, err
	}
	return b.Freeze(), true, nil
}

// Names lists the stored relations in name order.
func (s *RelationStore) Names(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM derived_relations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Dataset loads every stored relation.
func (s *RelationStore) Dataset(ctx context.Context) (dataset.Dataset, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	ds := make(dataset.Dataset, len(names))
	for _, n := range names {
		rel, _, err := s.Relation(ctx, n)
		if err != nil {
			return nil, err
		}
		ds[n] = rel
	}
	return ds, nil
}

// Delete removes a stored relation.
func (s *RelationStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM derived_tuples WHERE name = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM derived_relations WHERE name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// Stored values keep their kind so 1 and 1.0 survive a round trip.
type storedValue struct {
	I *int64   `json:"i,omitempty"`
	F *float64 `json:"f,omitempty"`
	S *string  `json:"s,omitempty"`
	B *bool    `json:"b,omitempty"`
}

func encodeTuple(t relation.Tuple) (string, error) {
	out := make([]storedValue, t.Arity())
	for i, v := range t.Values() {
		switch x := v.(type) {
		case int64:
			out[i].I = &x
		case float64:
			out[i].F = &x
		case string:
			out[i].S = &x
		case bool:
			out[i].B = &x
		default:
			return "", fmt.Errorf("%w: %T", relation.ErrNotAtomic, v)
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTuple(data string) (relation.Tuple, error) {
	var in []storedValue
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return relation.Tuple{}, fmt.Errorf("corrupt tuple %q: %w", data, err)
	}
	vals := make([]any, len(in))
	for i, v := range in {
		switch {
		case v.I != nil:
			vals[i] = *v.I
		case v.F != nil:
			vals[i] = *v.F
		case v.S != nil:
			vals[i] = *v.S
		case v.B != nil:
			vals[i] = *v.B
		default:
			return relation.Tuple{}, fmt.Errorf("corrupt tuple %q: empty value", data)
		}
	}
	return relation.NewTuple(vals...)
}

func sortedKeys(m map[string]relation.Relation) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SaveAll stores several relations, in name order.
func (s *RelationStore) SaveAll(ctx context.Context, rels map[string]relation.Relation) error {
	for _, name := range sortedKeys(rels) {
		if err := s.Save(ctx, name, rels[name]); err != nil {
			return err
		}
	}
	return nil
}
