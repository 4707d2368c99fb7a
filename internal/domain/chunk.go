package domain

import "errors"

// CharSpan locates a chunk inside its document's normalized text.
type CharSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChunkMetadata identifies a chunk and its owning document and tenant.
// This is the provenance payload returned with every answer.
type ChunkMetadata struct {
	TenantID     string `json:"tenant_id"`
	DocumentID   string `json:"document_id"`
	ChunkIndex   int    `json:"chunk_index"`
	OriginalName string `json:"original_name,omitempty"`
}

// Chunk is a bounded slice of a document's normalized text, the unit of
// embedding and retrieval.
type Chunk struct {
	Metadata ChunkMetadata
	Text     string
	Span     CharSpan
}

// Validate rejects chunks that must never reach persistence.
func (c *Chunk) Validate() error {
	if c.Metadata.TenantID == "" {
		return errors.New("chunk missing tenant id")
	}
	if c.Metadata.DocumentID == "" {
		return errors.New("chunk missing document id")
	}
	if c.Metadata.ChunkIndex < 0 {
		return errors.New("chunk index must be non-negative")
	}
	if c.Text == "" {
		return errors.New("chunk text is empty")
	}
	return nil
}

// NormalizedText is the cleaned canonical form of one document, persisted
// to the tenant's clean store for audit.
type NormalizedText struct {
	TenantID     string
	DocumentID   string
	OriginalName string
	Text         string
}

// RawInput describes a tenant-supplied document awaiting extraction. The
// bytes already live at a tenant-scoped raw path managed by the caller.
type RawInput struct {
	TenantID     string
	DocumentID   string
	Source       string // file path or URL
	MIMEType     string
	OriginalName string
}
