package vectorstore

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/db"
	"github.com/cortexa-labs/ragserve/internal/domain"
)

// fakeStore is an in-memory stand-in for the Redis store: hashes plus a
// brute-force KNN over the indexed prefixes.
type fakeStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	indexes map[string]*db.IndexDefinition

	createIndexCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes:  make(map[string]map[string]string),
		indexes: make(map[string]*db.IndexDefinition),
	}
}

func (f *fakeStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		fields := make(map[string]string, len(item.Fields))
		for k, v := range item.Fields {
			fields[k] = v
		}
		f.hashes[item.Key] = fields
	}
	return nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeStore) DelMulti(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createIndexCalls++
	if _, ok := f.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	f.indexes[def.Name] = def
	return nil
}

func (f *fakeStore) IndexExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indexes[name]
	return ok, nil
}

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	def, ok := f.indexes[q.IndexName]
	if !ok {
		return nil, db.ErrIndexNotFound
	}

	var entries []db.SearchEntry
	for key, fields := range f.hashes {
		if !keyCovered(key, def.Prefixes) {
			continue
		}
		stored := decodeVector(fields[fieldVector])
		entry := db.SearchEntry{
			Key:    key,
			Score:  cosineSimilarity(q.Vector, stored),
			Fields: make(map[string]string),
		}
		for _, name := range q.ReturnFields {
			if v, ok := fields[name]; ok {
				entry.Fields[name] = v
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > q.K {
		entries = entries[:q.K]
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func keyCovered(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func decodeVector(s string) []float32 {
	b := []byte(s)
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fakeEmbedder returns fixed vectors for known texts and a default for the
// rest, so similarity ordering is controllable per test.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if v, ok := e.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v, TotalTokens: 1}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{0.5, 0.5, 0.5, 0.5}, TotalTokens: 1}, nil
}

func newTestStore(t *testing.T) (*TenantStore, *fakeStore, *fakeEmbedder) {
	t.Helper()
	fs := newFakeStore()
	fe := &fakeEmbedder{vectors: make(map[string][]float32)}
	ts := New(fs, fe, "ragserve:", 4, HNSWConfig{M: 16, EFConstruct: 200}, zap.NewNop())
	return ts, fs, fe
}

func testChunk(tenantID, docID string, index int, text string) domain.Chunk {
	return domain.Chunk{
		Metadata: domain.ChunkMetadata{
			TenantID:   tenantID,
			DocumentID: docID,
			ChunkIndex: index,
		},
		Text: text,
		Span: domain.CharSpan{Start: index * 10, End: index*10 + len(text)},
	}
}
