package domain

import "errors"

var (
	// ErrUnsupportedFormat signals a MIME type with no extractor branch.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrFetch signals an unreachable URL or a non-2xx response.
	ErrFetch = errors.New("fetch failed")
	// ErrFileNotFound signals a declared raw file missing on disk.
	ErrFileNotFound = errors.New("file not found")
	// ErrExtraction signals an extractor failure on a recognized format.
	ErrExtraction = errors.New("extraction failed")
	// ErrModelUnavailable signals a language model provider failure (retryable).
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrNoHistory signals that no conversation memory exists for a tenant yet.
	ErrNoHistory = errors.New("no history for tenant")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
