package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var _ core.DocumentExtractor = (*FileExtractor)(nil)

var pdfMagic = []byte("%PDF-")

// FileExtractor reads PDFs page by page with ledongthuc/pdf and hands every
// other format to docconv as a single page.
type FileExtractor struct{}

func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

// Extract returns one record per physical page, 1-based and in source order.
// Pages without content keep their number with empty text.
func (e *FileExtractor) Extract(ctx context.Context, handle *models.LocalHandle) ([]models.PageRecord, error) {
	if handle == nil || handle.Path == "" {
		return nil, fmt.Errorf("%w: no local file", core.ErrParse)
	}

	isPDF, err := looksLikePDF(handle.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrParse, err)
	}
	if isPDF {
		return extractPDFPages(ctx, handle.Path)
	}
	return extractWithDocconv(ctx, handle.Path)
}

func looksLikePDF(path string) (bool, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return true, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return bytes.Equal(head[:n], pdfMagic), nil
}

// extractPDFPages recovers panics from the PDF reader, which fails on some
// malformed cross-reference tables by panicking instead of returning.
func extractPDFPages(ctx context.Context, path string) (pages []models.PageRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed PDF: %v", core.ErrParse, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %w", core.ErrParse, err)
	}
	defer f.Close()

	numPages := r.NumPage()
	pages = make([]models.PageRecord, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, models.PageRecord{PageNumber: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: extract page %d: %w", core.ErrParse, i, err)
		}
		pages = append(pages, models.PageRecord{Text: text, PageNumber: i})
	}
	return pages, nil
}

func extractWithDocconv(ctx context.Context, path string) ([]models.PageRecord, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: convert %s: %w", core.ErrParse, filepath.Base(path), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []models.PageRecord{{Text: res.Body, PageNumber: 1}}, nil
}
