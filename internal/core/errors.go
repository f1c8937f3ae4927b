package core

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch is returned when the stored document cannot be retrieved.
	ErrFetch = errors.New("fetch failed")

	// ErrObjectNotFound is returned by blob stores when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrParse is returned when a document is corrupt or unreadable.
	ErrParse = errors.New("parse failed")

	// ErrEmbedding is returned when the embedding service fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexWrite is returned when a batch upsert to the vector index fails.
	ErrIndexWrite = errors.New("index write failed")
)

// Stage names a step of the ingestion pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
	StageIndex   Stage = "index"
)

// IndexWriteError reports the batch that failed. Batches before it are
// committed; batches after it were never attempted.
type IndexWriteError struct {
	Namespace string
	Batch     int // 0-based index of the failed batch
	Committed int // vectors durably written before the failure
	Err       error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("upsert batch %d into namespace %q (%d vectors committed): %v",
		e.Batch, e.Namespace, e.Committed, e.Err)
}

func (e *IndexWriteError) Unwrap() []error {
	return []error{ErrIndexWrite, e.Err}
}

// IngestionError is the single failure surfaced by an ingestion run.
type IngestionError struct {
	Key       string
	RunID     string
	Stage     Stage
	Committed int
	Err       error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %q: %s stage: %v", e.Key, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// PartiallyWritten reports whether some vectors reached the index before the failure.
func (e *IngestionError) PartiallyWritten() bool {
	return e.Committed > 0
}

// IsRetryable reports whether re-running ingestion for the same key can succeed.
// Fetch and parse failures need a new document.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbedding) || errors.Is(err, ErrIndexWrite)
}
