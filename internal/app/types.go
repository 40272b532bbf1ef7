package app

import (
	"context"

	"refbook/internal/ingest"
	"refbook/internal/retrieval"
)

// VectorStore is everything the app needs from the chunk index: schema
// management, the pipeline's write side, lifecycle deletes, and search.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	StoreChunks(ctx context.Context, chunks []ingest.Chunk) error
	DeleteGeneration(ctx context.Context, resourceID, generation string) error
	PruneGenerations(ctx context.Context, resourceID, keep string) error
	DeleteResource(ctx context.Context, resourceID string) error
	DeleteProject(ctx context.Context, projectID string) error
	Search(ctx context.Context, projectID string, vector []float32, limit int, scope []retrieval.ResourceScope) ([]retrieval.Match, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
