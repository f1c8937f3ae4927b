package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"go.uber.org/zap"
)

// ErrDocumentNotFound is returned when a key has no recorded ingestion.
var ErrDocumentNotFound = errors.New("document not found")

// Uploader stores a new document and returns its storage key.
type Uploader interface {
	Put(ctx context.Context, name string, body io.Reader, contentType string) (string, error)
	URL(key string) string
}

// StoredDocument names an uploaded document.
type StoredDocument struct {
	FileKey string `json:"file_key"`
	URL     string `json:"url"`
}

// Enqueuer schedules a background ingestion for a storage key.
type Enqueuer interface {
	Enqueue(ctx context.Context, key string) error
}

// DocumentStatus is the ingestion status of a key plus what the index holds for it.
type DocumentStatus struct {
	models.Ingestion
	Namespace   string `json:"namespace"`
	VectorCount int    `json:"vector_count"`
}

type DocumentService struct {
	storage Uploader
	queue   Enqueuer
	status  core.StatusStore
	index   core.VectorIndex
	logger  *zap.Logger
}

func NewDocumentService(storage Uploader, queue Enqueuer, status core.StatusStore, index core.VectorIndex, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{storage: storage, queue: queue, status: status, index: index, logger: logger}
}

// UploadAndEnqueue stores the document and schedules its ingestion. The
// stored document is returned even when scheduling fails so the caller can
// retry ingestion.
func (s *DocumentService) UploadAndEnqueue(ctx context.Context, filename, contentType string, body io.Reader) (*StoredDocument, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, errors.New("filename is required")
	}

	key, err := s.storage.Put(ctx, filename, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	doc := &StoredDocument{FileKey: key, URL: s.storage.URL(key)}
	s.logger.Info("document uploaded",
		zap.String("file_key", key),
		zap.String("url", doc.URL),
		zap.String("content_type", contentType),
	)

	if err := s.queue.Enqueue(ctx, key); err != nil {
		return doc, fmt.Errorf("schedule ingestion: %w", err)
	}
	return doc, nil
}

// Status reports the latest ingestion status of key and the number of
// vectors stored in its namespace.
func (s *DocumentService) Status(ctx context.Context, key string) (*DocumentStatus, error) {
	ing, err := s.status.GetStatus(ctx, key)
	if err != nil {
		return nil, err
	}
	if ing == nil {
		return nil, ErrDocumentNotFound
	}

	ns := ingestion_engine.DeriveNamespace(key)
	count, err := s.index.CountVectors(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	return &DocumentStatus{Ingestion: *ing, Namespace: ns, VectorCount: count}, nil
}
