package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var _ core.Store = (*SQLiteClient)(nil)

const sqliteMetaQuery = `
	SELECT EXISTS (
	  SELECT 1 FROM sqlite_master
	  WHERE type = 'table' AND name = 'contexta_meta'
	)`

// SQLiteClient mirrors DatabaseClient on a local SQLite file for development
// and tests. Vectors are stored as float32 blobs; there is no similarity search.
type SQLiteClient struct {
	db *sql.DB
}

// NewSQLiteClient opens (and bootstraps) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLiteClient(ctx context.Context, path string) (*SQLiteClient, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLITE_PATH is empty")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps an in-memory database on a single connection
	db.SetMaxOpenConns(1)

	if err := EnsureBootstrapped(ctx, db, "scripts/sqlite.sql", sqliteMetaQuery); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *SQLiteClient) Upsert(ctx context.Context, namespace string, vectors []models.EmbeddingVector) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_vectors
			(namespace, id, embedding, dims, text, page_number, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding   = excluded.embedding,
			dims        = excluded.dims,
			text        = excluded.text,
			page_number = excluded.page_number,
			metadata    = excluded.metadata,
			updated_at  = excluded.updated_at
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i := range vectors {
		v := &vectors[i]
		meta, err := metadataJSON(v.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			namespace, v.ID, encodeVector(v.Values), len(v.Values), v.Metadata.Text, v.Metadata.PageNumber, string(meta), now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert vector %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

func (c *SQLiteClient) CountVectors(ctx context.Context, namespace string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM document_vectors WHERE namespace = ?`, namespace,
	).Scan(&n)
	return n, err
}

func (c *SQLiteClient) SetStatus(ctx context.Context, fileKey string, status models.IngestStatus, detail string) error {
	const q = `
		INSERT INTO ingestions (file_key, status, detail, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (file_key) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			updated_at = excluded.updated_at
	`
	_, err := c.db.ExecContext(ctx, q, fileKey, string(status), detail, time.Now().UnixMilli())
	return err
}

func (c *SQLiteClient) GetStatus(ctx context.Context, fileKey string) (*models.Ingestion, error) {
	const q = `
		SELECT file_key, status, detail, updated_at
		FROM ingestions WHERE file_key = ?
	`
	var (
		in      models.Ingestion
		updated int64
	)
	err := c.db.QueryRowContext(ctx, q, fileKey).Scan(&in.FileKey, &in.Status, &in.Detail, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	in.UpdatedAt = time.UnixMilli(updated).UTC()
	return &in, nil
}
