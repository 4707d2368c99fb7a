// Package crawler ingests every page linked from a seed URL as its own
// document, fanning out over a bounded worker pool.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/metrics"
)

// deniedDomains are link targets that never contain tenant knowledge.
var deniedDomains = []string{"facebook.com", "twitter.com", "instagram.com", "linkedin.com"}

// Ingester runs one URL through the ingestion pipeline.
type Ingester interface {
	IngestURL(ctx context.Context, tenantID, documentID, url string) (int, error)
}

// MemoryResetter clears a tenant's conversation memory.
type MemoryResetter interface {
	Clear(tenantID string)
}

// Report summarizes one crawl.
type Report struct {
	Discovered int `json:"discovered"`
	Ingested   int `json:"ingested"`
	Failed     int `json:"failed"`
	Chunks     int `json:"chunks"`
}

// Crawler fetches a seed page and ingests its outgoing links.
type Crawler struct {
	client   *http.Client
	ingester Ingester
	memory   MemoryResetter
	workers  int
	logger   *zap.Logger
}

// New creates a crawler. client may be nil to use the default; workers
// bounds concurrent page ingestions.
func New(client *http.Client, ingester Ingester, memory MemoryResetter, workers int, logger *zap.Logger) *Crawler {
	if client == nil {
		client = http.DefaultClient
	}
	if workers <= 0 {
		workers = 4
	}
	return &Crawler{
		client:   client,
		ingester: ingester,
		memory:   memory,
		workers:  workers,
		logger:   logger,
	}
}

// CrawlSite discovers the seed page's links and ingests each survivor as a
// fresh document. The tenant's conversation memory is reset first so
// answers reflect the new knowledge. Per-URL failures are logged and
// counted; they never abort sibling pages.
func (c *Crawler) CrawlSite(ctx context.Context, tenantID, seedURL string) (Report, error) {
	if tenantID == "" || seedURL == "" {
		return Report{}, fmt.Errorf("tenant id and url are required")
	}

	c.memory.Clear(tenantID)

	urls, err := c.discover(ctx, seedURL)
	if err != nil {
		return Report{}, err
	}

	report := Report{Discovered: len(urls)}
	if len(urls) == 0 {
		return report, nil
	}

	pool, err := ants.NewPool(c.workers)
	if err != nil {
		return Report{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, pageURL := range urls {
		pageURL := pageURL
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			documentID := uuid.NewString()
			chunks, err := c.ingester.IngestURL(ctx, tenantID, documentID, pageURL)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				metrics.CrawlPagesTotal.WithLabelValues("error").Inc()
				c.logger.Warn("page ingestion failed",
					zap.String("tenant_id", tenantID),
					zap.String("url", pageURL),
					zap.Error(err),
				)
				return
			}
			report.Ingested++
			report.Chunks += chunks
			metrics.CrawlPagesTotal.WithLabelValues("ingested").Inc()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			report.Failed++
			mu.Unlock()
			c.logger.Warn("pool submit failed", zap.String("url", pageURL), zap.Error(submitErr))
		}
	}
	wg.Wait()

	c.logger.Info("site crawl finished",
		zap.String("tenant_id", tenantID),
		zap.String("seed", seedURL),
		zap.Int("discovered", report.Discovered),
		zap.Int("ingested", report.Ingested),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// discover fetches the seed page and returns its outgoing links, absolute,
// de-duplicated, with social domains and mailto targets dropped.
func (c *Crawler) discover(ctx context.Context, seedURL string) ([]string, error) {
	base, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build seed request: %w: %w", domain.ErrFetch, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch seed %s: %w: %w", seedURL, domain.ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch seed %s: status %d: %w", seedURL, resp.StatusCode, domain.ErrFetch)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse seed page: %w", err)
	}

	seen := make(map[string]bool)
	var urls []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()

		if denied(abs) {
			metrics.CrawlPagesTotal.WithLabelValues("skipped").Inc()
			return
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		urls = append(urls, abs)
	})

	return urls, nil
}

func denied(absURL string) bool {
	if strings.HasPrefix(absURL, "mailto:") {
		return true
	}
	for _, d := range deniedDomains {
		if strings.Contains(absURL, d) {
			return true
		}
	}
	return false
}
