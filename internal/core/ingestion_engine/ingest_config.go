package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"go.uber.org/zap"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize:        target segment length in runes (e.g., 1000).
// ChunkOverlap:     runes shared between consecutive segments of a page (e.g., 200);
//                   0 takes the default, NoOverlap turns overlap off.
// MaxSegmentBytes:  hard byte ceiling of Segment.Text, what gets embedded and indexed.
// BatchSize:        vectors per upsert call (e.g., 10).
// EmbedConcurrency: cap on in-flight embedding calls.
// EmbedDim:         expected vector length; 0 accepts whatever the model returns.
// Timeout:          upper bound of a single run.
type IngestConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	MaxSegmentBytes  int
	BatchSize        int
	EmbedConcurrency int
	EmbedDim         int
	Timeout          time.Duration
}

const (
	DefaultChunkSize        = 1000
	DefaultChunkOverlap     = 200
	DefaultMaxSegmentBytes  = 36000
	DefaultBatchSize        = 10
	DefaultEmbedConcurrency = 8

	// NoOverlap disables overlap between consecutive segments.
	NoOverlap = -1
)

// WithDefaults returns a copy of c with zero values filled in. c may be nil.
func (c *IngestConfig) WithDefaults() IngestConfig {
	var out IngestConfig
	if c != nil {
		out = *c
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	switch {
	case out.ChunkOverlap == 0:
		out.ChunkOverlap = min(DefaultChunkOverlap, out.ChunkSize/5)
	case out.ChunkOverlap < 0:
		out.ChunkOverlap = NoOverlap
	case out.ChunkOverlap >= out.ChunkSize:
		out.ChunkOverlap = out.ChunkSize / 5
	}
	if out.MaxSegmentBytes <= 0 {
		out.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if out.BatchSize <= 0 {
		out.BatchSize = DefaultBatchSize
	}
	if out.EmbedConcurrency <= 0 {
		out.EmbedConcurrency = DefaultEmbedConcurrency
	}
	return out
}

// DocumentIngestor orchestrates a single ingestion run:
//
// blobs:     object storage the document is fetched from.
// extractor: document → ordered page records.
// embedder:  embedding provider (Gemini/OpenAI/etc).
// indexer:   sequential batched writer over the vector index.
// chunker:   page → segments.
// cfg:       runtime tuning knobs for the pipeline.
type DocumentIngestor struct {
	blobs     core.BlobStore
	extractor core.DocumentExtractor
	embedder  core.EmbeddingProvider
	indexer   *BatchedIndexer
	chunker   *Chunker
	cfg       IngestConfig
	logger    *zap.Logger
}

// Option configures a DocumentIngestor.
type Option func(*DocumentIngestor)

// WithLogger sets the logger used for run and batch logs.
func WithLogger(l *zap.Logger) Option {
	return func(i *DocumentIngestor) {
		if l != nil {
			i.logger = l
		}
	}
}
