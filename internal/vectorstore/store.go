// Package vectorstore persists embedded chunks in Redis with one FT index
// per tenant. Isolation is structural: a tenant's index only covers keys
// under that tenant's prefix, so cross-tenant leakage is impossible at the
// query level, not merely filtered out.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/db"
	"github.com/cortexa-labs/ragserve/internal/domain"
)

// store is the consumer interface for chunk persistence (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	DelMulti(ctx context.Context, keys []string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Match is one retrieval hit with its similarity score in [0, 1].
type Match struct {
	Chunk domain.Chunk
	Score float64
}

// HNSWConfig tunes the per-tenant vector index build.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// tenantState serializes writes for one tenant and remembers whether the
// tenant's index has been created.
type tenantState struct {
	writeMu    sync.Mutex
	indexReady bool
}

// TenantStore implements the per-tenant vector store. Writes to the same
// tenant are serialized; reads go straight to Redis.
type TenantStore struct {
	store    store
	embedder domain.Embedder
	prefix   string
	dim      int
	hnsw     HNSWConfig
	logger   *zap.Logger

	mu      sync.Mutex
	tenants map[string]*tenantState
}

// New creates a tenant vector store. keyPrefix namespaces every Redis key
// and index name.
func New(s store, embedder domain.Embedder, keyPrefix string, dim int, hnsw HNSWConfig, logger *zap.Logger) *TenantStore {
	return &TenantStore{
		store:    s,
		embedder: embedder,
		prefix:   keyPrefix,
		dim:      dim,
		hnsw:     hnsw,
		logger:   logger,
		tenants:  make(map[string]*tenantState),
	}
}

// Upsert embeds and persists a document's chunks for one tenant, replacing
// any chunks a previous ingestion of the same document left behind. The
// embedding round-trip happens before the tenant write lock is taken.
func (s *TenantStore) Upsert(ctx context.Context, tenantID, documentID string, chunks []domain.Chunk) error {
	if tenantID == "" || documentID == "" {
		return errors.New("tenant id and document id are required")
	}
	if len(chunks) == 0 {
		return errors.New("no chunks to upsert")
	}
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	batch, err := s.batchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(batch.Embeddings) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch.Embeddings), len(chunks))
	}

	items := make([]db.HashSetItem, len(chunks))
	newKeys := make(map[string]bool, len(chunks))
	for i := range chunks {
		key := s.chunkKey(tenantID, documentID, chunks[i].Metadata.ChunkIndex)
		items[i] = db.HashSetItem{Key: key, Fields: chunkToFields(&chunks[i], batch.Embeddings[i])}
		newKeys[key] = true
	}

	state := s.tenant(tenantID)
	state.writeMu.Lock()
	defer state.writeMu.Unlock()

	if err := s.ensureIndex(ctx, tenantID, state); err != nil {
		return err
	}

	if err := s.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("persist chunks for %s/%s: %w", tenantID, documentID, err)
	}

	if err := s.dropStale(ctx, tenantID, documentID, newKeys); err != nil {
		// The new chunks are durable; stale leftovers only pad retrieval.
		s.logger.Warn("stale chunk cleanup failed",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", documentID),
			zap.Error(err),
		)
	}

	s.logger.Info("chunks upserted",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
		zap.Int("embed_tokens", batch.TotalTokens),
	)
	return nil
}

// Retrieve embeds the query with the same embedder used at index time and
// returns the top-k most similar chunks, best first. A tenant that has
// never ingested anything gets an empty result, not an error.
func (s *TenantStore) Retrieve(ctx context.Context, tenantID, query string, k int) ([]Match, error) {
	if tenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	res, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sr, err := s.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.indexName(tenantID),
		Vector:       res.Embedding,
		K:            k,
		ReturnFields: retrieveFields,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", tenantID, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		matches = append(matches, entryToMatch(entry))
	}
	return matches, nil
}

// DeleteTenant drops a tenant's chunks. The index stays; it simply covers
// zero keys until the next ingestion.
func (s *TenantStore) DeleteTenant(ctx context.Context, tenantID string) error {
	state := s.tenant(tenantID)
	state.writeMu.Lock()
	defer state.writeMu.Unlock()

	keys, err := s.store.Scan(ctx, s.chunkPrefix(tenantID)+"*")
	if err != nil {
		return fmt.Errorf("scan tenant %s: %w", tenantID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete tenant %s chunks: %w", tenantID, err)
	}
	return nil
}

func (s *TenantStore) tenant(tenantID string) *tenantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tenants[tenantID]
	if !ok {
		state = &tenantState{}
		s.tenants[tenantID] = state
	}
	return state
}

// ensureIndex creates the tenant's FT index on first write. Caller holds
// the tenant write lock.
func (s *TenantStore) ensureIndex(ctx context.Context, tenantID string, state *tenantState) error {
	if state.indexReady {
		return nil
	}

	name := s.indexName(tenantID)
	exists, err := s.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if !exists {
		if err := s.store.CreateIndex(ctx, s.buildIndex(tenantID)); err != nil {
			if !errors.Is(err, db.ErrIndexExists) {
				return fmt.Errorf("create index %s: %w", name, err)
			}
		}
		s.logger.Info("tenant index created", zap.String("tenant_id", tenantID), zap.String("index", name))
	}

	state.indexReady = true
	return nil
}

func (s *TenantStore) buildIndex(tenantID string) *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     s.indexName(tenantID),
		Prefixes: []string{s.chunkPrefix(tenantID)},
		Fields: []db.IndexField{
			{Name: fieldDocumentID, Type: db.IndexFieldTag},
			{Name: fieldChunkIndex, Type: db.IndexFieldNumeric},
			{
				Name:              fieldVector,
				Alias:             "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         s.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           s.hnsw.M,
				VectorEFConstruct: s.hnsw.EFConstruct,
			},
		},
	}
}

// dropStale removes chunks of the same document that the new ingestion did
// not overwrite. Caller holds the tenant write lock.
func (s *TenantStore) dropStale(ctx context.Context, tenantID, documentID string, newKeys map[string]bool) error {
	existing, err := s.store.Scan(ctx, s.docPattern(tenantID, documentID))
	if err != nil {
		return fmt.Errorf("scan document keys: %w", err)
	}

	stale := make([]string, 0)
	for _, key := range existing {
		if !newKeys[key] {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.store.DelMulti(ctx, stale); err != nil {
		return fmt.Errorf("delete %d stale chunks: %w", len(stale), err)
	}
	return nil
}

// batchEmbed uses the provider's batch endpoint when available and falls
// back to per-text calls otherwise.
func (s *TenantStore) batchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := s.embedder.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, s.embedder, texts)
}
