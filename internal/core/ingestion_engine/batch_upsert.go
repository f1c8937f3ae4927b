package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"go.uber.org/zap"
)

// BatchedIndexer writes vectors to the index in fixed-size batches, one
// call at a time and in batch order. A failed batch stops the write: every
// earlier batch is committed and no later batch is attempted.
type BatchedIndexer struct {
	index     core.VectorIndex
	batchSize int
	logger    *zap.Logger
}

func NewBatchedIndexer(index core.VectorIndex, batchSize int, logger *zap.Logger) *BatchedIndexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchedIndexer{index: index, batchSize: batchSize, logger: logger}
}

// Upsert writes vectors into namespace. It returns the number of vectors
// committed and, on failure, a *core.IndexWriteError naming the failed batch.
func (b *BatchedIndexer) Upsert(ctx context.Context, namespace string, vectors []models.EmbeddingVector) (int, error) {
	committed := 0
	for n, batch := range Partition(vectors, b.batchSize) {
		start := n * b.batchSize
		if err := ctx.Err(); err != nil {
			return committed, &core.IndexWriteError{Namespace: namespace, Batch: n, Committed: committed, Err: err}
		}

		if err := b.index.Upsert(ctx, namespace, batch); err != nil {
			b.logger.Error("upsert batch failed",
				zap.String("namespace", namespace),
				zap.Int("batch", n),
				zap.Int("start", start),
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
			return committed, &core.IndexWriteError{Namespace: namespace, Batch: n, Committed: committed, Err: err}
		}

		committed += len(batch)
		b.logger.Debug("upserted batch",
			zap.String("namespace", namespace),
			zap.Int("batch", n),
			zap.Int("start", start),
			zap.Int("size", len(batch)),
		)
	}
	return committed, nil
}

// Partition cuts vectors into consecutive slices of at most size elements.
// The slices share the backing array of vectors.
func Partition(vectors []models.EmbeddingVector, size int) [][]models.EmbeddingVector {
	if size <= 0 || len(vectors) == 0 {
		return nil
	}
	batches := make([][]models.EmbeddingVector, 0, (len(vectors)+size-1)/size)
	for start := 0; start < len(vectors); start += size {
		end := min(start+size, len(vectors))
		batches = append(batches, vectors[start:end:end])
	}
	return batches
}
