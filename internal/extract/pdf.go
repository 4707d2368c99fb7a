package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// PDFExtractor concatenates all pages of a PDF into one text blob, in
// document order.
type PDFExtractor struct{}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, domain.ErrFileNotFound)
		}
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load pdf %s: %w: %w", path, domain.ErrExtraction, err)
	}

	pages := make([]string, len(docs))
	for i, d := range docs {
		pages[i] = d.PageContent
	}
	return strings.Join(pages, "\n"), nil
}
