package ingest

import (
	"context"

	"refbook/internal/fetch"
)

// Chunk is one embeddable segment of a resource's extracted text. Generation
// ties the chunk to the pipeline run that produced it; only the generation
// recorded on the resource row is visible to readers.
type Chunk struct {
	ProjectID  string
	ResourceID string
	URL        string
	Content    string
	Vector     []float32
	ChunkIndex int
	Generation string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ChunkStore interface {
	StoreChunks(ctx context.Context, chunks []Chunk) error
	// DeleteGeneration removes exactly one run's chunks (rollback path).
	DeleteGeneration(ctx context.Context, resourceID, generation string) error
	// PruneGenerations removes every chunk of the resource except the kept
	// generation (post-commit garbage collection).
	PruneGenerations(ctx context.Context, resourceID, keep string) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// ResourceStore is the narrow slice of the resource repository the pipeline
// needs. All three operations are conditional on the run id, so a run that
// lost its claim (resource deleted or superseded by a newer refresh) cannot
// change anything.
type ResourceStore interface {
	ClaimRun(ctx context.Context, resourceID, runID string) (*ClaimedResource, error)
	CommitRun(ctx context.Context, resourceID, runID, fetchedTitle string, chunkCount int) (bool, error)
	FailRun(ctx context.Context, resourceID, runID, message string) error
}

// ClaimedResource is what ClaimRun returns for a live claim; nil means the
// claim is stale and the task must be dropped.
type ClaimedResource struct {
	ProjectID string
	URL       string
}
