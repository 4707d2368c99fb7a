package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// TextExtractor reads UTF-8 plain text files.
type TextExtractor struct{}

// Extract implements Extractor.
func (e *TextExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, domain.ErrFileNotFound)
		}
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load text %s: %w: %w", path, domain.ErrExtraction, err)
	}

	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	return strings.Join(parts, "\n"), nil
}
