package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(nil, NewRegistry(zap.NewNop()), t.TempDir(), 1<<20, zap.NewNop())
}

func TestFetchHTMLPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(`<html><head><script>nope()</script></head><body><p>Visible words</p></body></html>`))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	text, err := f.Fetch(context.Background(), "acme", "doc-1", srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(text, "Visible words") {
		t.Errorf("text %q missing page content", text)
	}
	if strings.Contains(text, "nope") {
		t.Errorf("text %q contains script content", text)
	}
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte("plain body"))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	text, err := f.Fetch(context.Background(), "acme", "doc-1", srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "plain body" {
		t.Errorf("text = %q, want %q", text, "plain body")
	}
}

func TestFetchUnsupportedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), "acme", "doc-1", srv.URL)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), "acme", "doc-1", srv.URL)
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), "acme", "doc-1", srv.URL)
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
}

func TestFetchBinaryDownloadCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte("not really a pdf"))
	}))
	defer srv.Close()

	dataRoot := t.TempDir()
	f := NewFetcher(nil, NewRegistry(zap.NewNop()), dataRoot, 1<<20, zap.NewNop())

	// The body is not a valid PDF, so extraction fails, but the download
	// path must still be exercised and the temp files removed.
	_, err := f.Fetch(context.Background(), "acme", "doc-9", srv.URL)
	if err == nil {
		t.Fatal("expected extraction error for bogus pdf body")
	}

	tmpDir := filepath.Join(dataRoot, "acme", "docs", "tmp")
	entries, readErr := os.ReadDir(tmpDir)
	if readErr != nil && !os.IsNotExist(readErr) {
		t.Fatalf("read tmp dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("tmp dir not cleaned up, found %d entries", len(entries))
	}
}
