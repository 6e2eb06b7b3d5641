package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS examples (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id   TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	relation    TEXT NOT NULL,
	sentence    TEXT NOT NULL,
	source      TEXT NOT NULL,
	source_role TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL,
	target_role TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_examples_relation ON examples(relation);
CREATE INDEX IF NOT EXISTS idx_examples_entity ON examples(entity_id);
`

// SQLiteWriter stores rows in an examples table
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter creates the database at path, replacing previous rows
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open corpus database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM examples`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reset examples: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// Write inserts rows in a single transaction
func (w *SQLiteWriter) Write(ctx context.Context, rows []Row) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO examples
		(entity_id, entity_type, relation, sentence, source, source_role, target, target_role)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.EntityID, r.EntityType, r.Relation, r.Sentence,
			r.Source, r.SourceRole, r.Target, r.TargetRole); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
