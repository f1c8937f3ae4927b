package objectclient

import (
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// ObjectStore is the binary object store collaborator: Fetch serves the
// ingestion pipeline, Put and URL serve the upload path.
// It's abstract so you can replace AWS with MinIO, a local directory, etc.
type ObjectStore interface {
	core.BlobStore
	Put(ctx context.Context, name string, body io.Reader, contentType string) (key string, err error)
	// URL is where a stored key can be downloaded from.
	URL(key string) string
}

const uploadPrefix = "uploads/"

// NewFileKey names a new upload: uploads/<unix-millis><name>, with the first
// space of name replaced by a dash.
func NewFileKey(name string, now time.Time) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return uploadPrefix + strconv.FormatInt(now.UnixMilli(), 10) + strings.Replace(name, " ", "-", 1)
}
