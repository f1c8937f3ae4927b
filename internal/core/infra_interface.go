package core

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// BlobStore retrieves stored documents by their opaque storage key.
type BlobStore interface {
	// Fetch materializes the object on local disk. The caller closes the handle.
	Fetch(ctx context.Context, key string) (*models.LocalHandle, error)
}

// DocumentExtractor parses a fetched document into ordered page records.
type DocumentExtractor interface {
	Extract(ctx context.Context, handle *models.LocalHandle) ([]models.PageRecord, error)
}

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the namespaced upsert API of the document-chat index.
// A single Upsert call is atomic.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, vectors []models.EmbeddingVector) error
	CountVectors(ctx context.Context, namespace string) (int, error)
}

// StatusStore persists the status of ingestion runs per storage key.
type StatusStore interface {
	SetStatus(ctx context.Context, fileKey string, status models.IngestStatus, detail string) error
	// GetStatus returns nil, nil when the key was never ingested.
	GetStatus(ctx context.Context, fileKey string) (*models.Ingestion, error)
}

// Store is a database backend serving both the vector index and the status table.
type Store interface {
	VectorIndex
	StatusStore
	Close() error
}
