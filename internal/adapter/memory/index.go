package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"refbook/internal/ingest"
	"refbook/internal/retrieval"
)

// Index is an in-memory chunk store with brute-force cosine search. It backs
// tests and local development where no Weaviate instance is available.
type Index struct {
	mu     sync.RWMutex
	chunks []ingest.Chunk
}

func NewIndex() *Index {
	return &Index{}
}

func (i *Index) StoreChunks(ctx context.Context, chunks []ingest.Chunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.chunks = append(i.chunks, chunks...)
	return nil
}

func (i *Index) DeleteGeneration(ctx context.Context, resourceID, generation string) error {
	i.filter(func(c ingest.Chunk) bool {
		return !(c.ResourceID == resourceID && c.Generation == generation)
	})
	return nil
}

func (i *Index) PruneGenerations(ctx context.Context, resourceID, keep string) error {
	i.filter(func(c ingest.Chunk) bool {
		return c.ResourceID != resourceID || c.Generation == keep
	})
	return nil
}

func (i *Index) DeleteResource(ctx context.Context, resourceID string) error {
	i.filter(func(c ingest.Chunk) bool { return c.ResourceID != resourceID })
	return nil
}

func (i *Index) DeleteProject(ctx context.Context, projectID string) error {
	i.filter(func(c ingest.Chunk) bool { return c.ProjectID != projectID })
	return nil
}

func (i *Index) Search(ctx context.Context, projectID string, vec []float32, limit int, scope []retrieval.ResourceScope) ([]retrieval.Match, error) {
	if len(scope) == 0 {
		return nil, nil
	}

	allowed := make(map[string]string, len(scope))
	for _, s := range scope {
		allowed[s.ResourceID] = s.Generation
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var matches []retrieval.Match
	for _, c := range i.chunks {
		if c.ProjectID != projectID {
			continue
		}
		gen, ok := allowed[c.ResourceID]
		if !ok || gen != c.Generation {
			continue
		}
		matches = append(matches, retrieval.Match{
			Content:    c.Content,
			URL:        c.URL,
			ResourceID: c.ResourceID,
			ChunkIndex: c.ChunkIndex,
			Distance:   cosineDistance(vec, c.Vector),
		})
	}

	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Distance < matches[b].Distance
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Len reports the number of stored chunks.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks)
}

func (i *Index) filter(keep func(ingest.Chunk) bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.chunks[:0]
	for _, c := range i.chunks {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	i.chunks = kept
}

func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for idx := range a {
		dot += float64(a[idx]) * float64(b[idx])
		normA += float64(a[idx]) * float64(a[idx])
		normB += float64(b[idx]) * float64(b[idx])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32(1 - sim)
}
