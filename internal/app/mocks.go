package app

import (
	"context"

	"refbook/internal/ingest"
	"refbook/internal/retrieval"
)

// MockVectorStore is a configurable VectorStore stub for tests.
type MockVectorStore struct {
	EnsureSchemaErr     error
	StoreChunksErr      error
	DeleteGenerationErr error
	PruneGenerationsErr error
	DeleteResourceErr   error
	DeleteProjectErr    error
	SearchResult        []retrieval.Match
	SearchErr           error

	StoredChunks []ingest.Chunk
}

func (m *MockVectorStore) EnsureSchema(ctx context.Context) error { return m.EnsureSchemaErr }

func (m *MockVectorStore) StoreChunks(ctx context.Context, chunks []ingest.Chunk) error {
	if m.StoreChunksErr != nil {
		return m.StoreChunksErr
	}
	m.StoredChunks = append(m.StoredChunks, chunks...)
	return nil
}

func (m *MockVectorStore) DeleteGeneration(ctx context.Context, resourceID, generation string) error {
	return m.DeleteGenerationErr
}

func (m *MockVectorStore) PruneGenerations(ctx context.Context, resourceID, keep string) error {
	return m.PruneGenerationsErr
}

func (m *MockVectorStore) DeleteResource(ctx context.Context, resourceID string) error {
	return m.DeleteResourceErr
}

func (m *MockVectorStore) DeleteProject(ctx context.Context, projectID string) error {
	return m.DeleteProjectErr
}

func (m *MockVectorStore) Search(ctx context.Context, projectID string, vector []float32, limit int, scope []retrieval.ResourceScope) ([]retrieval.Match, error) {
	return m.SearchResult, m.SearchErr
}
