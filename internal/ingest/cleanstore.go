package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// DocumentStats summarizes a cleaned document for audit logging.
type DocumentStats struct {
	CharacterCount int `json:"character_count"`
	WordCount      int `json:"word_count"`
	LineCount      int `json:"line_count"`
	ParagraphCount int `json:"paragraph_count"`
}

// CleanStore persists the normalized form of every ingested document under
// {data_root}/{tenant}/docs/clean/. Re-ingesting a document overwrites its
// clean file.
type CleanStore struct {
	dataRoot string
}

// NewCleanStore creates a clean-text store rooted at dataRoot.
func NewCleanStore(dataRoot string) *CleanStore {
	return &CleanStore{dataRoot: dataRoot}
}

// Path returns where a document's clean text lives.
func (s *CleanStore) Path(tenantID, documentID string) string {
	return filepath.Join(s.dataRoot, tenantID, "docs", "clean", documentID+"_cleaned.txt")
}

// Save writes the normalized text, creating the tenant's clean directory on
// first use.
func (s *CleanStore) Save(doc domain.NormalizedText) error {
	path := s.Path(doc.TenantID, doc.DocumentID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create clean dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(doc.Text), 0o644); err != nil {
		return fmt.Errorf("write clean text: %w", err)
	}
	return nil
}

// Load reads a document's clean text back.
func (s *CleanStore) Load(tenantID, documentID string) (string, error) {
	data, err := os.ReadFile(s.Path(tenantID, documentID))
	if err != nil {
		return "", fmt.Errorf("read clean text: %w", err)
	}
	return string(data), nil
}

// Stats computes basic statistics over cleaned content.
func Stats(content string) DocumentStats {
	if content == "" {
		return DocumentStats{}
	}

	paragraphs := 0
	for _, p := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}

	return DocumentStats{
		CharacterCount: len([]rune(content)),
		WordCount:      len(strings.Fields(content)),
		LineCount:      strings.Count(content, "\n") + 1,
		ParagraphCount: paragraphs,
	}
}
