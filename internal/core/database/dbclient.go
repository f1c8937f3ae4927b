package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// NewStore opens the vector index and status store selected by VECTOR_BACKEND.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
func NewStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPgvector:
		return NewDatabaseClient(ctx, cfg)
	case config.VectorBackendSQLite:
		return NewSQLiteClient(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// metadataJSON serializes the extensible part of the vector metadata.
// Text and page number have their own columns.
func metadataJSON(m models.VectorMetadata) ([]byte, error) {
	if len(m.Extra) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m.Extra)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
