// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/contexta-ingest/internal/api/handlers"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/core/llm"
	applog "github.com/markdave123-py/contexta-ingest/internal/logger"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    core.Store
	Objects  objectclient.ObjectStore
	Embedder core.EmbeddingProvider
	Ingestor *ingestion_engine.DocumentIngestor
	Queue    *ingestion_engine.Queue
	Docs     *services.DocumentService
	Server   *Server
}

// NewApp builds every collaborator selected by cfg. The queue is created
// but not started.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = applog.OrNop(logger)
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := db.NewStore(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.VectorBackend, err)
	}
	a.Store = store
	logger.Info("database initialized and ready", zap.String("backend", cfg.VectorBackend))

	objects, err := newObjectStore(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Objects = objects
	logger.Info("object store initialized and ready", zap.String("backend", cfg.BlobBackend))

	embedder, err := newEmbedder(appCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	a.Embedder = embedder

	ingCfg := &ingestion_engine.IngestConfig{
		ChunkSize:        cfg.Pipeline.ChunkSize,
		ChunkOverlap:     cfg.Pipeline.ChunkOverlap,
		MaxSegmentBytes:  cfg.Pipeline.MaxSegmentBytes,
		BatchSize:        cfg.Pipeline.BatchSize,
		EmbedConcurrency: cfg.Pipeline.EmbedConcurrency,
		EmbedDim:         cfg.EmbedDim,
		Timeout:          cfg.Pipeline.Timeout,
	}
	a.Ingestor = ingestion_engine.NewDocumentIngestor(
		objects,
		ingestion_engine.NewFileExtractor(),
		embedder,
		store,
		ingCfg,
		ingestion_engine.WithLogger(logger.Named("ingest")),
	)

	queue, err := ingestion_engine.NewQueue(a.Ingestor, store, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger.Named("queue"))
	if err != nil {
		return nil, err
	}
	a.Queue = queue

	a.Docs = services.NewDocumentService(objects, queue, store, store, logger)
	a.Server = NewServer(cfg,
		handlers.NewIngestHandler(a.Ingestor, queue, logger),
		handlers.NewDocumentHandler(a.Docs, logger),
		logger.Named("http"),
	)

	ok = true
	return a, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (objectclient.ObjectStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendDisk:
		return objectclient.NewDiskStore(cfg.BlobDir)
	case config.BlobBackendS3:
		return objectclient.NewS3Client(ctx, cfg, logger.Named("s3"))
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case config.EmbedProviderGemini:
		return llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	case config.EmbedProviderOpenAI:
		return llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbedDim, logger.Named("openai"))
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

// Close stops the queue and releases the store and embedder.
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Release(30 * time.Second); err != nil {
			a.Logger.Warn("release ingestion queue", zap.Error(err))
		}
	}
	if c, ok := a.Embedder.(io.Closer); ok {
		_ = c.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("close store", zap.Error(err))
		}
	}
}
