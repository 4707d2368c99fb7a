package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// Fetcher turns a remote URL into raw text. HTML pages are stripped in
// place; binary formats (PDF, Word) stream to a tenant-scoped temp path and
// are handed to the same file-branch extractors.
type Fetcher struct {
	client   *http.Client
	registry *Registry
	dataRoot string
	maxBody  int64
	logger   *zap.Logger
}

// NewFetcher creates a URL fetcher. client may be nil to use the default.
func NewFetcher(client *http.Client, registry *Registry, dataRoot string, maxBody int64, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &Fetcher{
		client:   client,
		registry: registry,
		dataRoot: dataRoot,
		maxBody:  maxBody,
		logger:   logger,
	}
}

// Fetch probes the URL's content type, downloads it, and returns raw text.
// Unreachable URLs and non-2xx responses map to ErrFetch; content types
// without an extractor branch map to ErrUnsupportedFormat.
func (f *Fetcher) Fetch(ctx context.Context, tenantID, documentID, url string) (string, error) {
	contentType, err := f.probe(ctx, url)
	if err != nil {
		return "", err
	}

	switch normalizeMIME(contentType) {
	case MIMEHTML:
		return f.fetchHTML(ctx, url)
	case MIMEPDF:
		return f.fetchBinary(ctx, tenantID, documentID, url, MIMEPDF, ".pdf")
	case MIMEWordLegacy:
		return f.fetchBinary(ctx, tenantID, documentID, url, MIMEWordLegacy, ".doc")
	case MIMEWordOpenXML:
		return f.fetchBinary(ctx, tenantID, documentID, url, MIMEWordOpenXML, ".docx")
	case MIMEPlainText:
		return f.fetchPlain(ctx, url)
	default:
		return "", fmt.Errorf("content type %q: %w", contentType, domain.ErrUnsupportedFormat)
	}
}

// probe issues a HEAD request to learn the content type before fetching.
func (f *Fetcher) probe(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("build head request: %w: %w", domain.ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("head %s: %w: %w", url, domain.ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("head %s: status %d: %w", url, resp.StatusCode, domain.ErrFetch)
	}

	return resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build get request: %w: %w", domain.ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %w", url, domain.ErrFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d: %w", url, resp.StatusCode, domain.ErrFetch)
	}
	return resp, nil
}

func (f *Fetcher) fetchHTML(ctx context.Context, url string) (string, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	return StripHTML(io.LimitReader(resp.Body, f.maxBody))
}

func (f *Fetcher) fetchPlain(ctx context.Context, url string) (string, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return "", fmt.Errorf("read %s: %w: %w", url, domain.ErrFetch, err)
	}
	return string(body), nil
}

// fetchBinary streams the body to a tenant-scoped temp file, promotes it
// only on a complete download, then runs the matching file extractor. A
// partial download never becomes visible to later stages.
func (f *Fetcher) fetchBinary(ctx context.Context, tenantID, documentID, url, mimeType, ext string) (string, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	dir := filepath.Join(f.dataRoot, tenantID, "docs", "tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	final := filepath.Join(dir, documentID+ext)
	partial := final + ".part"

	if err := f.download(resp.Body, partial); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("download %s: %w: %w", url, domain.ErrFetch, err)
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("promote download: %w", err)
	}
	defer func() {
		if err := os.Remove(final); err != nil {
			f.logger.Warn("failed to remove downloaded file", zap.String("path", final), zap.Error(err))
		}
	}()

	return f.registry.ExtractFile(ctx, final, mimeType)
}

func (f *Fetcher) download(body io.Reader, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(out, io.LimitReader(body, f.maxBody)); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy body: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
