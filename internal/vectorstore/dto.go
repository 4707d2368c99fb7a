package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cortexa-labs/ragserve/internal/db"
	"github.com/cortexa-labs/ragserve/internal/domain"
)

// Hash field names for one stored chunk.
const (
	fieldVector       = "__vector"
	fieldContent      = "__content"
	fieldTenantID     = "tenant_id"
	fieldDocumentID   = "document_id"
	fieldChunkIndex   = "chunk_index"
	fieldOriginalName = "original_name"
	fieldSpanStart    = "span_start"
	fieldSpanEnd      = "span_end"
)

var retrieveFields = []string{
	fieldContent, fieldTenantID, fieldDocumentID,
	fieldChunkIndex, fieldOriginalName, fieldSpanStart, fieldSpanEnd,
	"__vector_score",
}

func (s *TenantStore) indexName(tenantID string) string {
	return fmt.Sprintf("%st:%s:idx", s.prefix, tenantID)
}

func (s *TenantStore) chunkPrefix(tenantID string) string {
	return fmt.Sprintf("%st:%s:chunk:", s.prefix, tenantID)
}

func (s *TenantStore) chunkKey(tenantID, documentID string, index int) string {
	return fmt.Sprintf("%s%s:%d", s.chunkPrefix(tenantID), documentID, index)
}

func (s *TenantStore) docPattern(tenantID, documentID string) string {
	return fmt.Sprintf("%s%s:*", s.chunkPrefix(tenantID), documentID)
}

// chunkToFields flattens a chunk and its embedding into hash fields.
func chunkToFields(c *domain.Chunk, vector []float32) map[string]string {
	return map[string]string{
		fieldVector:       vectorToBytes(vector),
		fieldContent:      c.Text,
		fieldTenantID:     c.Metadata.TenantID,
		fieldDocumentID:   c.Metadata.DocumentID,
		fieldChunkIndex:   strconv.Itoa(c.Metadata.ChunkIndex),
		fieldOriginalName: c.Metadata.OriginalName,
		fieldSpanStart:    strconv.Itoa(c.Span.Start),
		fieldSpanEnd:      strconv.Itoa(c.Span.End),
	}
}

// entryToMatch rebuilds a chunk from a search hit's hash fields.
func entryToMatch(entry db.SearchEntry) Match {
	c := domain.Chunk{
		Text: entry.Fields[fieldContent],
		Metadata: domain.ChunkMetadata{
			TenantID:     entry.Fields[fieldTenantID],
			DocumentID:   entry.Fields[fieldDocumentID],
			OriginalName: entry.Fields[fieldOriginalName],
		},
	}
	if n, err := strconv.Atoi(entry.Fields[fieldChunkIndex]); err == nil {
		c.Metadata.ChunkIndex = n
	}
	if n, err := strconv.Atoi(entry.Fields[fieldSpanStart]); err == nil {
		c.Span.Start = n
	}
	if n, err := strconv.Atoi(entry.Fields[fieldSpanEnd]); err == nil {
		c.Span.End = n
	}
	return Match{Chunk: c, Score: entry.Score}
}

// vectorToBytes serializes []float32 to a binary string (little-endian),
// the layout FT.SEARCH expects for HASH vector fields.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

