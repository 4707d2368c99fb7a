package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// HTMLExtractor strips markup and returns the page's visible text only.
type HTMLExtractor struct{}

// Extract implements Extractor.
func (e *HTMLExtractor) Extract(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, domain.ErrFileNotFound)
		}
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return StripHTML(f)
}

// StripHTML extracts visible text from an HTML document, dropping script,
// style, and noscript content.
func StripHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w: %w", domain.ErrExtraction, err)
	}

	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
	})
	text := b.String()
	if text == "" {
		text = doc.Text()
	}
	return text, nil
}
