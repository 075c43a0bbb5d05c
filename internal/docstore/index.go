package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/embedding"
	"github.com/sells-group/claims-triage/internal/model"
)

// QueryResult is a single nearest neighbor with its distance (1 − cosine
// similarity) to the query vector.
type QueryResult struct {
	Chunk    Chunk
	Distance float64
}

// Index is an in-memory nearest-neighbor store over policy chunks.
// Writes happen at indexing time; retrieval is read-only, so concurrent
// reads are always safe. Adding the same chunk ID twice is last-write-wins,
// which is harmless because chunk IDs are content-derived.
type Index struct {
	mu     sync.RWMutex
	chunks map[string]Chunk
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{chunks: make(map[string]Chunk)}
}

// Add inserts or replaces chunks. Every chunk must carry its vector.
func (ix *Index) Add(chunks []Chunk) error {
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return eris.Errorf("docstore: chunk %s has no vector", c.ID)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, c := range chunks {
		ix.chunks[c.ID] = c
	}
	return nil
}

// Query returns the topK chunks closest to the query vector, ordered by
// ascending distance.
func (ix *Index) Query(_ context.Context, vector []float64, topK int) ([]QueryResult, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]QueryResult, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		sim := embedding.Cosine(vector, c.Vector)
		results = append(results, QueryResult{Chunk: c, Distance: 1 - sim})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// All returns every chunk in the index, in no particular order. Used to
// persist the index through the store.
func (ix *Index) All() []Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Chunk, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		out = append(out, c)
	}
	return out
}

// ToRetrieved converts a query result into the model's retrieval record,
// translating distance into a relevance score clamped at zero.
func (r QueryResult) ToRetrieved() model.RetrievedDocument {
	relevance := 1 - r.Distance
	if relevance < 0 {
		relevance = 0
	}
	return model.RetrievedDocument{
		DocumentID: r.Chunk.DocumentID,
		Name:       r.Chunk.Name,
		Type:       r.Chunk.Type,
		Content:    r.Chunk.Content,
		Relevance:  relevance,
		ChunkIndex: r.Chunk.Index,
		SourceFile: r.Chunk.SourceFile,
		StartByte:  r.Chunk.StartByte,
		EndByte:    r.Chunk.EndByte,
	}
}

// Load replaces the index contents with chunks previously persisted by a
// store. Chunks without vectors are skipped with a warning.
func (ix *Index) Load(chunks []Chunk) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			zap.L().Warn("docstore: skipping chunk without vector", zap.String("chunk_id", c.ID))
			continue
		}
		ix.chunks[c.ID] = c
	}
}
