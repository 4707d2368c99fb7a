// Package chunker splits normalized text into overlapping windows and stamps
// every chunk with its tenant, document, and position before it can reach
// persistence.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

const (
	// DefaultChunkSize is the fixed chunk window in characters.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the overlap between consecutive chunks.
	DefaultChunkOverlap = 50
)

// Chunker produces tagged, ordered chunks from normalized text. It prefers
// paragraph, line, and word boundaries but never exceeds the configured window.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
	size     int
	overlap  int
}

// New creates a chunker. Non-positive size/overlap fall back to the defaults;
// overlap must stay below size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", overlap, size)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)

	return &Chunker{splitter: splitter, size: size, overlap: overlap}, nil
}

// Split cuts text into overlapping chunks stamped with the given identity.
// Chunk indexes are dense 0..N-1 in document order. An empty tenant or
// document id is rejected so an untagged chunk can never be produced.
func (c *Chunker) Split(doc domain.NormalizedText) ([]domain.Chunk, error) {
	if doc.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if doc.DocumentID == "" {
		return nil, errors.New("document id is required")
	}

	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	searchFrom := 0
	for i, part := range parts {
		span := locateSpan(text, part, searchFrom)
		chunk := domain.Chunk{
			Metadata: domain.ChunkMetadata{
				TenantID:     doc.TenantID,
				DocumentID:   doc.DocumentID,
				ChunkIndex:   i,
				OriginalName: doc.OriginalName,
			},
			Text: part,
			Span: span,
		}
		if err := chunk.Validate(); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, chunk)

		// Next chunk overlaps this one, so resume the span search inside it.
		if next := span.Start + 1; next > searchFrom {
			searchFrom = next
		}
	}

	return chunks, nil
}

// locateSpan finds the chunk's position in the source text. The splitter
// trims whitespace, so every chunk is a contiguous substring of its source;
// the scan starts inside the previous chunk to honor overlap.
func locateSpan(text, part string, from int) domain.CharSpan {
	if from > len(text) {
		from = len(text)
	}
	if idx := strings.Index(text[from:], part); idx >= 0 {
		start := from + idx
		return domain.CharSpan{Start: start, End: start + len(part)}
	}
	// Fall back to a full scan when the overlap heuristic misses.
	if idx := strings.Index(text, part); idx >= 0 {
		return domain.CharSpan{Start: idx, End: idx + len(part)}
	}
	return domain.CharSpan{Start: from, End: from + len(part)}
}
