// Package extract converts raw tenant documents (local files or fetched
// URLs) into plain text, dispatching on the declared MIME type.
package extract

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// MIME types with a dedicated extractor branch.
const (
	MIMEPlainText   = "text/plain"
	MIMEPDF         = "application/pdf"
	MIMEWordLegacy  = "application/msword"
	MIMEWordOpenXML = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEHTML        = "text/html"
)

// Extractor converts one file into raw text, in document order.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Registry maps MIME types to extractor implementations and applies the
// two-stage fallback strategy when a recognized format fails to parse.
type Registry struct {
	byMIME map[string]Extractor
	logger *zap.Logger
}

// NewRegistry creates a registry with the default per-format extractors.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byMIME: map[string]Extractor{
			MIMEPlainText:   &TextExtractor{},
			MIMEPDF:         &PDFExtractor{},
			MIMEWordLegacy:  &WordExtractor{},
			MIMEWordOpenXML: &WordExtractor{},
			MIMEHTML:        &HTMLExtractor{},
		},
		logger: logger,
	}
}

// Lookup resolves a declared MIME type (parameters stripped) to an
// extractor. Unknown types return ErrUnsupportedFormat.
func (r *Registry) Lookup(mimeType string) (Extractor, error) {
	normalized := normalizeMIME(mimeType)
	if e, ok := r.byMIME[normalized]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("mime type %q: %w", mimeType, domain.ErrUnsupportedFormat)
}

// ExtractFile runs the extractor for the declared MIME type. If a recognized
// format fails to parse, a best-effort raw text pass is attempted for
// text-like formats before the document is abandoned.
func (r *Registry) ExtractFile(ctx context.Context, path, mimeType string) (string, error) {
	extractor, err := r.Lookup(mimeType)
	if err != nil {
		return "", err
	}

	text, err := extractor.Extract(ctx, path)
	if err == nil {
		return text, nil
	}
	if !errors.Is(err, domain.ErrExtraction) {
		return "", err
	}

	if !textLike(mimeType) {
		return "", err
	}

	r.logger.Warn("primary extraction failed, using raw text fallback",
		zap.String("path", path),
		zap.String("mime_type", mimeType),
		zap.Error(err),
	)

	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", fmt.Errorf("raw fallback read: %w: %w", domain.ErrExtraction, readErr)
	}
	return string(raw), nil
}

// normalizeMIME strips parameters like "; charset=utf-8" and lowercases.
func normalizeMIME(mimeType string) string {
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return parsed
}

func textLike(mimeType string) bool {
	return strings.HasPrefix(normalizeMIME(mimeType), "text/")
}
