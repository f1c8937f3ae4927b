package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var _ core.Store = (*DatabaseClient)(nil)

const pgMetaQuery = `
	SELECT EXISTS (
	  SELECT 1 FROM information_schema.tables
	  WHERE table_name = 'contexta_meta'
	)`

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := postgresDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, "scripts/initdb.sql", pgMetaQuery); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// postgresDSN appends CA verification to the URL when a root cert is given.
func postgresDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Upsert writes all vectors in a single transaction, so a batch is either
// fully committed or not at all.
func (c *DatabaseClient) Upsert(ctx context.Context, namespace string, vectors []models.EmbeddingVector) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_vectors
			(namespace, id, embedding, text, page_number, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding   = EXCLUDED.embedding,
			text        = EXCLUDED.text,
			page_number = EXCLUDED.page_number,
			metadata    = EXCLUDED.metadata,
			updated_at  = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range vectors {
		v := &vectors[i]
		meta, err := metadataJSON(v.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			namespace, v.ID, pgvector.NewVector(v.Values), v.Metadata.Text, v.Metadata.PageNumber, string(meta),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert vector %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) CountVectors(ctx context.Context, namespace string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM document_vectors WHERE namespace = $1`, namespace,
	).Scan(&n)
	return n, err
}

func (c *DatabaseClient) SetStatus(ctx context.Context, fileKey string, status models.IngestStatus, detail string) error {
	const q = `
		INSERT INTO ingestions (file_key, status, detail, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (file_key) DO UPDATE SET
			status = EXCLUDED.status,
			detail = EXCLUDED.detail,
			updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q, fileKey, string(status), detail)
	return err
}

func (c *DatabaseClient) GetStatus(ctx context.Context, fileKey string) (*models.Ingestion, error) {
	const q = `
		SELECT file_key, status, detail, updated_at
		FROM ingestions WHERE file_key = $1
	`
	var in models.Ingestion
	err := c.db.QueryRowContext(ctx, q, fileKey).Scan(&in.FileKey, &in.Status, &in.Detail, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}
