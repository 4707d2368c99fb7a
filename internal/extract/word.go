package extract

import (
	"context"
	"fmt"
	"os"

	docconv "code.sajari.com/docconv/v2"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// WordExtractor handles the Word family (.doc and .docx).
type WordExtractor struct{}

// Extract implements Extractor.
func (e *WordExtractor) Extract(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, domain.ErrFileNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w: %w", path, domain.ErrExtraction, err)
	}
	return res.Body, nil
}
