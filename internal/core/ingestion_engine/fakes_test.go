package ingestion_engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type fakeBlobStore struct {
	fetchFn func(ctx context.Context, key string) (*models.LocalHandle, error)
}

func (f *fakeBlobStore) Fetch(ctx context.Context, key string) (*models.LocalHandle, error) {
	return f.fetchFn(ctx, key)
}

// tempBlob returns a blob store serving a throwaway temp file for any key.
func tempBlob(t *testing.T) (*fakeBlobStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.bin")
	if err := os.WriteFile(path, []byte("stub"), 0o600); err != nil {
		t.Fatal(err)
	}
	return &fakeBlobStore{fetchFn: func(_ context.Context, key string) (*models.LocalHandle, error) {
		return models.NewTempHandle(key, path, 4), nil
	}}, path
}

type fakeExtractor struct {
	pages []models.PageRecord
	err   error
}

func (f *fakeExtractor) Extract(context.Context, *models.LocalHandle) ([]models.PageRecord, error) {
	return f.pages, f.err
}

// fakeEmbedder returns a 3-dimension vector derived from the text length.
// failOn makes the n-th call (1-based) fail.
type fakeEmbedder struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	failOn   int32
	dim      int
	block    chan struct{}
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	n := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn > 0 && n == f.failOn {
		return nil, fmt.Errorf("quota exceeded on call %d", n)
	}
	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	values := make([]float32, dim)
	values[0] = float32(len(text))
	return values, nil
}

// recordingIndex records every upsert call. failOn makes the n-th call
// (1-based) fail without storing anything.
type recordingIndex struct {
	mu     sync.Mutex
	calls  [][]models.EmbeddingVector
	stored map[string]map[string]models.EmbeddingVector
	failOn int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{stored: map[string]map[string]models.EmbeddingVector{}}
}

func (r *recordingIndex) Upsert(_ context.Context, namespace string, vectors []models.EmbeddingVector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, vectors)
	if r.failOn > 0 && len(r.calls) == r.failOn {
		return fmt.Errorf("index unavailable")
	}
	ns, ok := r.stored[namespace]
	if !ok {
		ns = map[string]models.EmbeddingVector{}
		r.stored[namespace] = ns
	}
	for _, v := range vectors {
		ns[v.ID] = v
	}
	return nil
}

func (r *recordingIndex) CountVectors(_ context.Context, namespace string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored[namespace]), nil
}

func (r *recordingIndex) callSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sizes := make([]int, len(r.calls))
	for i, c := range r.calls {
		sizes[i] = len(c)
	}
	return sizes
}

func (r *recordingIndex) storedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ns := range r.stored {
		n += len(ns)
	}
	return n
}

type memoryStatusStore struct {
	mu      sync.Mutex
	history map[string][]models.IngestStatus
	detail  map[string]string
}

func newMemoryStatusStore() *memoryStatusStore {
	return &memoryStatusStore{history: map[string][]models.IngestStatus{}, detail: map[string]string{}}
}

func (m *memoryStatusStore) SetStatus(_ context.Context, key string, status models.IngestStatus, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[key] = append(m.history[key], status)
	m.detail[key] = detail
	return nil
}

func (m *memoryStatusStore) GetStatus(_ context.Context, key string) (*models.Ingestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history[key]
	if len(h) == 0 {
		return nil, nil
	}
	return &models.Ingestion{FileKey: key, Status: h[len(h)-1], Detail: m.detail[key]}, nil
}

func (m *memoryStatusStore) transitions(key string) []models.IngestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.IngestStatus(nil), m.history[key]...)
}

var (
	_ core.BlobStore         = (*fakeBlobStore)(nil)
	_ core.DocumentExtractor = (*fakeExtractor)(nil)
	_ core.EmbeddingProvider = (*fakeEmbedder)(nil)
	_ core.VectorIndex       = (*recordingIndex)(nil)
	_ core.StatusStore       = (*memoryStatusStore)(nil)
)

func makeVectors(n int) []models.EmbeddingVector {
	out := make([]models.EmbeddingVector, n)
	for i := range out {
		out[i] = models.EmbeddingVector{ID: fmt.Sprintf("v%02d", i), Values: []float32{float32(i)}}
	}
	return out
}
