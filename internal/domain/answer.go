package domain

// SourceDocument wraps the metadata of a chunk used for generation, mirroring
// the wire shape expected by callers.
type SourceDocument struct {
	Metadata ChunkMetadata `json:"metadata"`
}

// Answer is the transient result of one question. Not persisted; the result
// text is optionally appended to the tenant's conversation memory.
type Answer struct {
	Query   string           `json:"query"`
	Result  string           `json:"result"`
	Sources []SourceDocument `json:"source_documents"`
}

// NewAnswer packages a result with the metadata of the chunks it was
// grounded on, preserving retrieval order.
func NewAnswer(query, result string, chunks []Chunk) Answer {
	sources := make([]SourceDocument, len(chunks))
	for i, c := range chunks {
		sources[i] = SourceDocument{Metadata: c.Metadata}
	}
	return Answer{Query: query, Result: result, Sources: sources}
}
