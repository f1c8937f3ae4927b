package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewDocumentIngestor wires the pipeline stages together. cfg may be nil.
func NewDocumentIngestor(
	blobs core.BlobStore,
	extractor core.DocumentExtractor,
	embedder core.EmbeddingProvider,
	index core.VectorIndex,
	cfg *IngestConfig,
	opts ...Option,
) *DocumentIngestor {
	i := &DocumentIngestor{
		blobs:     blobs,
		extractor: extractor,
		embedder:  embedder,
		cfg:       cfg.WithDefaults(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.chunker = NewChunker(&i.cfg)
	i.indexer = NewBatchedIndexer(index, i.cfg.BatchSize, i.logger)
	return i
}

// Ingest fetches, extracts, chunks, embeds and indexes the document stored
// under key. It returns the segments of the first page; a document without
// pages returns an empty set and writes nothing. Any failure is returned as
// a *core.IngestionError.
func (i *DocumentIngestor) Ingest(ctx context.Context, key string) ([]models.Segment, error) {
	runID := uuid.NewString()
	log := i.logger.With(zap.String("file_key", key), zap.String("run_id", runID))
	started := time.Now()

	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}

	fail := func(stage core.Stage, committed int, err error) error {
		log.Error("ingestion failed",
			zap.String("stage", string(stage)),
			zap.Int("committed", committed),
			zap.Error(err),
		)
		return &core.IngestionError{Key: key, RunID: runID, Stage: stage, Committed: committed, Err: err}
	}

	// fetch
	handle, err := i.blobs.Fetch(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrFetch) {
			err = fmt.Errorf("%w: %w", core.ErrFetch, err)
		}
		return nil, fail(core.StageFetch, 0, err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			log.Warn("release local copy", zap.Error(err))
		}
	}()

	// extract
	pages, err := i.extractor.Extract(ctx, handle)
	if err != nil {
		if !errors.Is(err, core.ErrParse) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", core.ErrParse, err)
		}
		return nil, fail(core.StageExtract, 0, err)
	}
	if len(pages) == 0 {
		log.Warn("document has no pages")
		return []models.Segment{}, nil
	}

	// chunk, one task per page
	perPage, err := i.chunkPages(ctx, pages)
	if err != nil {
		return nil, fail(core.StageChunk, 0, err)
	}
	var segments []models.Segment
	for _, segs := range perPage {
		segments = append(segments, segs...)
	}

	// embed + hash
	vectors, err := i.embedSegments(ctx, key, segments)
	if err != nil {
		return nil, fail(core.StageEmbed, 0, err)
	}

	// index
	namespace := DeriveNamespace(key)
	log = log.With(zap.String("namespace", namespace))
	committed, err := i.indexer.Upsert(ctx, namespace, vectors)
	if err != nil {
		return nil, fail(core.StageIndex, committed, err)
	}

	log.Info("document ingested",
		zap.Int("pages", len(pages)),
		zap.Int("segments", len(segments)),
		zap.Int("vectors", committed),
		zap.Duration("took", time.Since(started)),
	)

	if perPage[0] == nil {
		return []models.Segment{}, nil
	}
	return perPage[0], nil
}

// chunkPages splits every page concurrently. Each task writes only its own
// slot of the result.
func (i *DocumentIngestor) chunkPages(ctx context.Context, pages []models.PageRecord) ([][]models.Segment, error) {
	perPage := make([][]models.Segment, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	for idx, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			segs, err := i.chunker.Chunk(page)
			if err != nil {
				return err
			}
			perPage[idx] = segs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return perPage, nil
}

// embedSegments embeds every segment with at most EmbedConcurrency calls in
// flight. The first failure cancels the shared context and no further call
// is started.
func (i *DocumentIngestor) embedSegments(ctx context.Context, key string, segments []models.Segment) ([]models.EmbeddingVector, error) {
	vectors := make([]models.EmbeddingVector, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.EmbedConcurrency)

	for idx, seg := range segments {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := i.embedder.EmbedText(gctx, seg.Text)
			if err != nil {
				return fmt.Errorf("%w: segment %d (page %d): %w", core.ErrEmbedding, idx, seg.PageNumber, err)
			}
			if len(values) == 0 {
				return fmt.Errorf("%w: segment %d (page %d): empty vector", core.ErrEmbedding, idx, seg.PageNumber)
			}
			if i.cfg.EmbedDim > 0 && len(values) != i.cfg.EmbedDim {
				return fmt.Errorf("%w: segment %d (page %d): got %d dimensions, want %d",
					core.ErrEmbedding, idx, seg.PageNumber, len(values), i.cfg.EmbedDim)
			}
			vectors[idx] = models.EmbeddingVector{
				ID:     HashID(seg.Text),
				Values: values,
				Metadata: models.VectorMetadata{
					Text:       seg.Text,
					PageNumber: seg.PageNumber,
					Extra:      map[string]any{"file_key": key},
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The loop may have stopped early on a cancelled parent context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
