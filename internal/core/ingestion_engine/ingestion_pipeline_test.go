package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testKey = "uploads/1700000000000quarterly report.pdf"

func shortPages(n int) []models.PageRecord {
	pages := make([]models.PageRecord, n)
	for i := range pages {
		pages[i] = models.PageRecord{Text: fmt.Sprintf("content of page %d", i+1), PageNumber: i + 1}
	}
	return pages
}

func TestIngest_HappyPath(t *testing.T) {
	blobs, path := tempBlob(t)
	index := newRecordingIndex()
	embedder := &fakeEmbedder{}
	pages := []models.PageRecord{
		{Text: "first page\ntext", PageNumber: 1},
		{Text: "second page text", PageNumber: 2},
	}

	ing := NewDocumentIngestor(blobs, &fakeExtractor{pages: pages}, embedder, index, nil,
		WithLogger(zaptest.NewLogger(t)))
	segs, err := ing.Ingest(context.Background(), testKey)
	require.NoError(t, err)

	require.Len(t, segs, 1)
	assert.Equal(t, "first pagetext", segs[0].Text)
	assert.Equal(t, 1, segs[0].PageNumber)

	ns := DeriveNamespace(testKey)
	count, err := index.CountVectors(context.Background(), ns)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.EqualValues(t, 2, embedder.calls.Load())

	v, ok := index.stored[ns][HashID("second page text")]
	require.True(t, ok)
	assert.Equal(t, "second page text", v.Metadata.Text)
	assert.Equal(t, 2, v.Metadata.PageNumber)
	assert.Equal(t, testKey, v.Metadata.Extra["file_key"])

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "local copy should be removed after the run")
}

func TestIngest_Idempotent(t *testing.T) {
	blobs, _ := tempBlob(t)
	index := newRecordingIndex()
	ext := &fakeExtractor{pages: shortPages(4)}

	ing := NewDocumentIngestor(blobs, ext, &fakeEmbedder{}, index, nil)
	_, err := ing.Ingest(context.Background(), testKey)
	require.NoError(t, err)

	blobs2, _ := tempBlob(t)
	ing = NewDocumentIngestor(blobs2, ext, &fakeEmbedder{}, index, nil)
	_, err = ing.Ingest(context.Background(), testKey)
	require.NoError(t, err)

	assert.Equal(t, 4, index.storedCount())
}

func TestIngest_EmptyPageSkipsEmbedding(t *testing.T) {
	blobs, _ := tempBlob(t)
	index := newRecordingIndex()
	embedder := &fakeEmbedder{}
	pages := []models.PageRecord{
		{Text: "", PageNumber: 1},
		{Text: "only page with words", PageNumber: 2},
	}

	segs, err := NewDocumentIngestor(blobs, &fakeExtractor{pages: pages}, embedder, index, nil).
		Ingest(context.Background(), testKey)
	require.NoError(t, err)

	assert.NotNil(t, segs)
	assert.Empty(t, segs)
	assert.EqualValues(t, 1, embedder.calls.Load())
	assert.Equal(t, 1, index.storedCount())
}

func TestIngest_NoPages(t *testing.T) {
	blobs, _ := tempBlob(t)
	index := newRecordingIndex()

	segs, err := NewDocumentIngestor(blobs, &fakeExtractor{}, &fakeEmbedder{}, index, nil).
		Ingest(context.Background(), testKey)
	require.NoError(t, err)
	assert.Empty(t, segs)
	assert.Empty(t, index.callSizes())
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	blobs, _ := tempBlob(t)
	index := newRecordingIndex()
	embedder := &fakeEmbedder{failOn: 7}

	ing := NewDocumentIngestor(blobs, &fakeExtractor{pages: shortPages(20)}, embedder, index,
		&IngestConfig{EmbedConcurrency: 4})
	_, err := ing.Ingest(context.Background(), testKey)
	require.Error(t, err)

	var ie *core.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.StageEmbed, ie.Stage)
	assert.Equal(t, testKey, ie.Key)
	assert.NotEmpty(t, ie.RunID)
	assert.False(t, ie.PartiallyWritten())
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.True(t, core.IsRetryable(err))

	assert.Empty(t, index.callSizes(), "no batch may be written when embedding fails")
}

func TestIngest_IndexFailureIsPartial(t *testing.T) {
	blobs, _ := tempBlob(t)
	index := newRecordingIndex()
	index.failOn = 2

	ing := NewDocumentIngestor(blobs, &fakeExtractor{pages: shortPages(5)}, &fakeEmbedder{}, index,
		&IngestConfig{BatchSize: 2})
	_, err := ing.Ingest(context.Background(), testKey)
	require.Error(t, err)

	var ie *core.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.StageIndex, ie.Stage)
	assert.Equal(t, 2, ie.Committed)
	assert.True(t, ie.PartiallyWritten())

	var we *core.IndexWriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 1, we.Batch)
	assert.Equal(t, DeriveNamespace(testKey), we.Namespace)
	assert.True(t, core.IsRetryable(err))

	assert.Equal(t, []int{2, 2}, index.callSizes())
	assert.Equal(t, 2, index.storedCount())
}

func TestIngest_FetchFailure(t *testing.T) {
	blobs := &fakeBlobStore{fetchFn: func(context.Context, string) (*models.LocalHandle, error) {
		return nil, fmt.Errorf("get %q: %w", testKey, core.ErrObjectNotFound)
	}}
	embedder := &fakeEmbedder{}

	_, err := NewDocumentIngestor(blobs, &fakeExtractor{}, embedder, newRecordingIndex(), nil).
		Ingest(context.Background(), testKey)

	var ie *core.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.StageFetch, ie.Stage)
	assert.ErrorIs(t, err, core.ErrFetch)
	assert.ErrorIs(t, err, core.ErrObjectNotFound)
	assert.False(t, core.IsRetryable(err))
	assert.Zero(t, embedder.calls.Load())
}

func TestIngest_ParseFailure(t *testing.T) {
	blobs, _ := tempBlob(t)
	ext := &fakeExtractor{err: errors.New("xref table broken")}

	_, err := NewDocumentIngestor(blobs, ext, &fakeEmbedder{}, newRecordingIndex(), nil).
		Ingest(context.Background(), testKey)

	var ie *core.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.StageExtract, ie.Stage)
	assert.ErrorIs(t, err, core.ErrParse)
	assert.False(t, core.IsRetryable(err))
}

func TestIngest_DimensionMismatch(t *testing.T) {
	blobs, _ := tempBlob(t)
	index := newRecordingIndex()

	ing := NewDocumentIngestor(blobs, &fakeExtractor{pages: shortPages(2)}, &fakeEmbedder{dim: 3}, index,
		&IngestConfig{EmbedDim: 768})
	_, err := ing.Ingest(context.Background(), testKey)

	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorContains(t, err, "got 3 dimensions, want 768")
	assert.Empty(t, index.callSizes())
}

func TestIngest_BoundedEmbedConcurrency(t *testing.T) {
	blobs, _ := tempBlob(t)
	embedder := &fakeEmbedder{}

	ing := NewDocumentIngestor(blobs, &fakeExtractor{pages: shortPages(30)}, embedder, newRecordingIndex(),
		&IngestConfig{EmbedConcurrency: 3})
	_, err := ing.Ingest(context.Background(), testKey)
	require.NoError(t, err)

	assert.EqualValues(t, 30, embedder.calls.Load())
	assert.LessOrEqual(t, embedder.maxSeen.Load(), int32(3))
}

func TestIngest_Timeout(t *testing.T) {
	blobs, _ := tempBlob(t)
	embedder := &fakeEmbedder{block: make(chan struct{})}
	index := newRecordingIndex()

	ing := NewDocumentIngestor(blobs, &fakeExtractor{pages: shortPages(3)}, embedder, index,
		&IngestConfig{Timeout: 50 * time.Millisecond})
	_, err := ing.Ingest(context.Background(), testKey)

	var ie *core.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.StageEmbed, ie.Stage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, index.callSizes())
}
