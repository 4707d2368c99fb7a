// Package ingest orchestrates the document write path: locate or fetch raw
// content, extract, normalize, persist clean text, chunk, and index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/metrics"
	"github.com/cortexa-labs/ragserve/internal/normalize"
)

// Extractor converts a raw file into text by declared MIME type.
type Extractor interface {
	ExtractFile(ctx context.Context, path, mimeType string) (string, error)
}

// Fetcher turns a remote URL into raw text.
type Fetcher interface {
	Fetch(ctx context.Context, tenantID, documentID, url string) (string, error)
}

// Splitter cuts normalized text into tagged chunks.
type Splitter interface {
	Split(doc domain.NormalizedText) ([]domain.Chunk, error)
}

// Indexer persists embedded chunks for a tenant.
type Indexer interface {
	Upsert(ctx context.Context, tenantID, documentID string, chunks []domain.Chunk) error
}

// Item is one uploaded file of a document ingestion request.
type Item struct {
	Name string
	Type string
	Size int64
}

// ItemResult reports the outcome of one item. Failed items never abort
// their siblings.
type ItemResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok | error
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Service runs the ingestion pipeline.
type Service struct {
	extractor Extractor
	fetcher   Fetcher
	splitter  Splitter
	indexer   Indexer
	clean     *CleanStore
	dataRoot  string
	logger    *zap.Logger
}

// New creates an ingestion service.
func New(
	extractor Extractor,
	fetcher Fetcher,
	splitter Splitter,
	indexer Indexer,
	clean *CleanStore,
	dataRoot string,
	logger *zap.Logger,
) *Service {
	return &Service{
		extractor: extractor,
		fetcher:   fetcher,
		splitter:  splitter,
		indexer:   indexer,
		clean:     clean,
		dataRoot:  dataRoot,
		logger:    logger,
	}
}

// IngestDocument processes each uploaded item of one document. Items fail
// independently; the caller gets a per-item report. The raw bytes are
// expected at {data_root}/{tenant}/docs/raw/{document_id}{ext}, placed
// there by the upload channel.
func (s *Service) IngestDocument(ctx context.Context, tenantID, documentID string, items []Item) ([]ItemResult, error) {
	if tenantID == "" || documentID == "" {
		return nil, errors.New("tenant id and document id are required")
	}
	if len(items) == 0 {
		return nil, errors.New("at least one item is required")
	}

	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		res := ItemResult{Name: item.Name, Status: "ok"}

		chunks, err := s.ingestItem(ctx, tenantID, documentID, item)
		if err != nil {
			res.Status = "error"
			res.Error = err.Error()
			metrics.DocumentsIngestedTotal.WithLabelValues("file", "error").Inc()
			s.logger.Error("item ingestion failed",
				zap.String("tenant_id", tenantID),
				zap.String("document_id", documentID),
				zap.String("name", item.Name),
				zap.Error(err),
			)
		} else {
			res.Chunks = chunks
			metrics.DocumentsIngestedTotal.WithLabelValues("file", "ok").Inc()
		}

		results = append(results, res)
	}

	return results, nil
}

func (s *Service) ingestItem(ctx context.Context, tenantID, documentID string, item Item) (int, error) {
	rawPath := s.rawPath(tenantID, documentID, item.Name)
	if _, err := os.Stat(rawPath); err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("raw file %s: %w", rawPath, domain.ErrFileNotFound)
		}
		return 0, fmt.Errorf("stat raw file: %w", err)
	}

	text, err := s.extractor.ExtractFile(ctx, rawPath, item.Type)
	if err != nil {
		return 0, err
	}

	return s.index(ctx, domain.NormalizedText{
		TenantID:     tenantID,
		DocumentID:   documentID,
		OriginalName: item.Name,
		Text:         text,
	}, "file")
}

// IngestURL fetches one URL and runs it through the same pipeline tail as
// an uploaded file.
func (s *Service) IngestURL(ctx context.Context, tenantID, documentID, url string) (int, error) {
	if tenantID == "" || documentID == "" || url == "" {
		return 0, errors.New("tenant id, document id, and url are required")
	}

	text, err := s.fetcher.Fetch(ctx, tenantID, documentID, url)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("url", "error").Inc()
		return 0, err
	}

	chunks, err := s.index(ctx, domain.NormalizedText{
		TenantID:     tenantID,
		DocumentID:   documentID,
		OriginalName: url,
		Text:         text,
	}, "url")
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("url", "error").Inc()
		return 0, err
	}

	metrics.DocumentsIngestedTotal.WithLabelValues("url", "ok").Inc()
	return chunks, nil
}

// index is the shared pipeline tail: normalize, persist clean text, chunk,
// upsert. Raw text that normalizes to nothing indexes zero chunks and is
// not an error.
func (s *Service) index(ctx context.Context, doc domain.NormalizedText, source string) (int, error) {
	doc.Text = normalize.Normalize(doc.Text)

	if err := s.clean.Save(doc); err != nil {
		return 0, err
	}

	stats := Stats(doc.Text)
	s.logger.Info("document cleaned",
		zap.String("tenant_id", doc.TenantID),
		zap.String("document_id", doc.DocumentID),
		zap.Int("characters", stats.CharacterCount),
		zap.Int("words", stats.WordCount),
		zap.Int("lines", stats.LineCount),
		zap.Int("paragraphs", stats.ParagraphCount),
	)

	chunks, err := s.splitter.Split(doc)
	if err != nil {
		return 0, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		s.logger.Warn("document produced no chunks",
			zap.String("tenant_id", doc.TenantID),
			zap.String("document_id", doc.DocumentID),
		)
		return 0, nil
	}

	if err := s.indexer.Upsert(ctx, doc.TenantID, doc.DocumentID, chunks); err != nil {
		return 0, err
	}

	metrics.ChunksIndexedTotal.WithLabelValues(source).Add(float64(len(chunks)))
	return len(chunks), nil
}

// rawPath mirrors the upload channel's naming: document id plus the
// original file's extension.
func (s *Service) rawPath(tenantID, documentID, name string) string {
	ext := filepath.Ext(name)
	return filepath.Join(s.dataRoot, tenantID, "docs", "raw", documentID+strings.ToLower(ext))
}
