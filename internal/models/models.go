package models

import (
	"os"
	"time"
)

// PageRecord is the text of one physical page, in source order.
type PageRecord struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"` // 1-based
}

// Segment is a bounded slice of page text, the unit of embedding.
type Segment struct {
	Text       string `json:"text"`     // truncated to the byte ceiling; what gets embedded and indexed
	PageNumber int    `json:"page_number"`
	RawText    string `json:"raw_text"` // splitter output before truncation
}

// EmbeddingVector is one entry of the vector index.
type EmbeddingVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

// VectorMetadata carries the indexed text and its provenance.
// Extra holds any additional key-value pairs.
type VectorMetadata struct {
	Text       string         `json:"text"`
	PageNumber int            `json:"pageNumber"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// LocalHandle is a fetched blob materialized on local disk.
type LocalHandle struct {
	Key  string
	Path string
	Size int64

	temporary bool
}

// NewTempHandle wraps a temp file that is removed on Close.
func NewTempHandle(key, path string, size int64) *LocalHandle {
	return &LocalHandle{Key: key, Path: path, Size: size, temporary: true}
}

// Close releases the local copy. Handles over files the process does not
// own are left alone.
func (h *LocalHandle) Close() error {
	if h == nil || !h.temporary {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IngestStatus tracks where a stored document is in the ingestion flow.
type IngestStatus string

const (
	StatusQueued     IngestStatus = "queued"
	StatusProcessing IngestStatus = "processing"
	StatusReady      IngestStatus = "ready"
	StatusFailed     IngestStatus = "failed"
)

// Ingestion is the persisted status of the latest ingestion run for a key.
type Ingestion struct {
	FileKey   string       `db:"file_key" json:"file_key"`
	Status    IngestStatus `db:"status" json:"status"`
	Detail    string       `db:"detail" json:"detail,omitempty"` // failure reason
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}
