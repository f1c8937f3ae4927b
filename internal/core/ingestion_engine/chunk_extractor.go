package ingestion_engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/tmc/langchaingo/textsplitter"
)

// separators are tried in order: paragraph, line, sentence, word, rune.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits page text into overlapping segments. It holds no mutable
// state and is safe for concurrent use across pages.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
	maxBytes int
}

// NewChunker builds a Chunker from the chunking fields of cfg.
func NewChunker(cfg *IngestConfig) *Chunker {
	c := cfg.WithDefaults()
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(c.ChunkSize),
			textsplitter.WithChunkOverlap(max(c.ChunkOverlap, 0)),
			textsplitter.WithSeparators(separators),
			textsplitter.WithKeepSeparator(true),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
		maxBytes: c.MaxSegmentBytes,
	}
}

// Chunk strips newlines from the page text, splits it and stamps every
// segment with the page number. Empty or whitespace-only pages yield nil.
func (c *Chunker) Chunk(page models.PageRecord) ([]models.Segment, error) {
	text := stripNewlines(page.Text)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split page %d: %w", page.PageNumber, err)
	}

	segments := make([]models.Segment, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		segments = append(segments, models.Segment{
			Text:       TruncateBytes(p, c.maxBytes),
			PageNumber: page.PageNumber,
			RawText:    p,
		})
	}
	return segments, nil
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// TruncateBytes returns the longest prefix of s that fits in maxBytes
// without cutting a UTF-8 sequence.
func TruncateBytes(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
