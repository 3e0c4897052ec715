package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"deduce/internal/logging"
	"deduce/internal/relation"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

// LoadRelation reads cols of table into a relation, one tuple per row.
// Without cols every column is read, in table order. NULLs are rejected;
// BLOB and TEXT columns become strings.
func LoadRelation(ctx context.Context, db *sql.DB, table string, cols ...string) (relation.Relation, error) {
	start := time.Now()
	qt, err := quoteIdent(table)
	if err != nil {
		return relation.Relation{}, err
	}
	sel := "*"
	if len(cols) > 0 {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			if quoted[i], err = quoteIdent(c); err != nil {
				return relation.Relation{}, err
			}
		}
		sel = strings.Join(quoted, ", ")
	}

	rel, err := LoadQuery(ctx, db, "SELECT "+sel+" FROM "+qt)
	if err != nil {
		return relation.Relation{}, fmt.Errorf("failed to load %s: %w", table, err)
	}
	elapsed := time.Since(start)
	logging.StoreDebug("loaded table %s: %d tuples in %v", table, rel.Len(), elapsed)
	logging.Audit().StoreOp(logging.AuditStoreLoad, table, rel.Len(), elapsed)
	return rel, nil
}

// LoadQuery runs query and returns its rows as a relation. The arity is the
// query's column count even when no rows come back.
func LoadQuery(ctx context.Context, db *sql.DB, query string, args ...any) (relation.Relation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return relation.Relation{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return relation.Relation{}, err
	}
	b := relation.NewBuilder(len(cols))
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	row := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return relation.Relation{}, err
		}
		vals := make([]any, len(raw))
		for i, v := range raw {
			switch x := v.(type) {
			case nil:
				return relation.Relation{}, fmt.Errorf("row %d: column %s is NULL", row, cols[i])
			case []byte:
				vals[i] = string(x)
			case time.Time:
				vals[i] = x.UTC().Format(time.RFC3339Nano)
			default:
				vals[i] = x
			}
		}
		if _, err := b.AddValues(vals...); err != nil {
			return relation.Relation{}, fmt.Errorf("row %d: %w", row, err)
		}
		row++
	}
	if err := rows.Err(); err != nil {
		return relation.Relation{}, err
	}
	return b.Freeze(), nil
}

// LoadTable reads a table from the store's own database.
func (s *RelationStore) LoadTable(ctx context.Context, table string, cols ...string) (relation.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return LoadRelation(ctx, s.db, table, cols...)
}
