package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteManifest implements Manifest using SQLite.
type SQLiteManifest struct {
	db *sql.DB
}

// NewSQLiteManifest opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteManifest(dbPath string) (*SQLiteManifest, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create manifest directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize manifest schema: %w", err)
	}
	return &SQLiteManifest{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS manifest (
		collection_id TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		path TEXT NOT NULL,
		source TEXT NOT NULL,
		size INTEGER NOT NULL,
		mtime INTEGER NOT NULL,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection_id, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_manifest_source ON manifest(collection_id, source);
	`
	_, err := db.Exec(schema)
	return err
}

// List returns every record of collectionID grouped by source path.
func (m *SQLiteManifest) List(ctx context.Context, collectionID string) (map[string][]*FileRecord, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT doc_id, path, source, size, mtime, indexed_at
		 FROM manifest WHERE collection_id = ?`, collectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]*FileRecord)
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.DocID, &r.Path, &r.Source, &r.Size, &r.ModTime, &r.IndexedAt); err != nil {
			return nil, err
		}
		out[r.Source] = append(out[r.Source], &r)
	}
	return out, rows.Err()
}

// Count returns the number of records of collectionID.
func (m *SQLiteManifest) Count(ctx context.Context, collectionID string) (int64, error) {
	var n int64
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM manifest WHERE collection_id = ?`, collectionID,
	).Scan(&n)
	return n, err
}

// Apply deletes the given doc ids and upserts records in a single transaction.
func (m *SQLiteManifest) Apply(ctx context.Context, collectionID string, upserts []*FileRecord, deletes []string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(deletes) > 0 {
		del, err := tx.PrepareContext(ctx, `DELETE FROM manifest WHERE collection_id = ? AND doc_id = ?`)
		if err != nil {
			return err
		}
		defer del.Close()
		for _, id := range deletes {
			if _, err := del.ExecContext(ctx, collectionID, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
		}
	}
	if err := insertRecords(ctx, tx, collectionID, upserts); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace drops every record of collectionID and inserts records, atomically.
func (m *SQLiteManifest) Replace(ctx context.Context, collectionID string, records []*FileRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM manifest WHERE collection_id = ?`, collectionID); err != nil {
		return err
	}
	if err := insertRecords(ctx, tx, collectionID, records); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRecords(ctx context.Context, tx *sql.Tx, collectionID string, records []*FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO manifest (collection_id, doc_id, path, source, size, mtime, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		if r.IndexedAt.IsZero() {
			r.IndexedAt = now
		}
		if _, err := stmt.ExecContext(ctx, collectionID, r.DocID, r.Path, r.Source, r.Size, r.ModTime, r.IndexedAt); err != nil {
			return fmt.Errorf("insert %s: %w", r.Path, err)
		}
	}
	return nil
}

// DeleteCollection removes every record of collectionID.
func (m *SQLiteManifest) DeleteCollection(ctx context.Context, collectionID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM manifest WHERE collection_id = ?`, collectionID)
	return err
}

// Close closes the database connection.
func (m *SQLiteManifest) Close() error {
	return m.db.Close()
}
