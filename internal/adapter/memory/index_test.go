package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refbook/internal/adapter/memory"
	"refbook/internal/ingest"
	"refbook/internal/retrieval"
)

func chunk(projectID, resourceID, gen, content string, idx int, vec []float32) ingest.Chunk {
	return ingest.Chunk{
		ProjectID:  projectID,
		ResourceID: resourceID,
		URL:        "http://example.com",
		Content:    content,
		ChunkIndex: idx,
		Generation: gen,
		Vector:     vec,
	}
}

func TestIndex_SearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()

	require.NoError(t, idx.StoreChunks(ctx, []ingest.Chunk{
		chunk("p1", "r1", "g1", "close", 0, []float32{1, 0}),
		chunk("p1", "r1", "g1", "far", 1, []float32{0, 1}),
	}))

	scope := []retrieval.ResourceScope{{ResourceID: "r1", Generation: "g1"}}
	matches, err := idx.Search(ctx, "p1", []float32{1, 0}, 5, scope)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "close", matches[0].Content)
	assert.Equal(t, "far", matches[1].Content)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
}

func TestIndex_SearchRespectsScope(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()

	require.NoError(t, idx.StoreChunks(ctx, []ingest.Chunk{
		chunk("p1", "r1", "g1", "old generation", 0, []float32{1, 0}),
		chunk("p1", "r1", "g2", "new generation", 0, []float32{1, 0}),
		chunk("p1", "r2", "g1", "other resource", 0, []float32{1, 0}),
		chunk("p2", "r3", "g1", "other project", 0, []float32{1, 0}),
	}))

	scope := []retrieval.ResourceScope{{ResourceID: "r1", Generation: "g2"}}
	matches, err := idx.Search(ctx, "p1", []float32{1, 0}, 5, scope)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new generation", matches[0].Content)
}

func TestIndex_SearchEmptyScope(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	require.NoError(t, idx.StoreChunks(ctx, []ingest.Chunk{
		chunk("p1", "r1", "g1", "content", 0, []float32{1, 0}),
	}))

	matches, err := idx.Search(ctx, "p1", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIndex_SearchLimit(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	require.NoError(t, idx.StoreChunks(ctx, []ingest.Chunk{
		chunk("p1", "r1", "g1", "a", 0, []float32{1, 0}),
		chunk("p1", "r1", "g1", "b", 1, []float32{0.9, 0.1}),
		chunk("p1", "r1", "g1", "c", 2, []float32{0, 1}),
	}))

	scope := []retrieval.ResourceScope{{ResourceID: "r1", Generation: "g1"}}
	matches, err := idx.Search(ctx, "p1", []float32{1, 0}, 2, scope)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestIndex_DeleteGeneration(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	require.NoError(t, idx.StoreChunks(ctx, []ingest.Chunk{
		chunk("p1", "r1", "g1", "keep", 0, []float32{1, 0}),
		chunk("p1", "r1", "g2", "drop", 0, []float32{1, 0}),
	}))

	require.NoError(t, idx.DeleteGeneration(ctx, "r1", "g2"))
	assert.Equal(t, 1, idx.Len())

	scope := []retrieval.ResourceScope{{ResourceID: "r1", Generation: "g1"}}
	matches, err := idx.Search(ctx, "p1", []float32{1, 0}, 5, scope)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "keep", matches[0].Content)
}

func TestIndex_PruneGenerations(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	require.NoError(t, idx.StoreChunks(ctx, []ingest.Chunk{
		chunk("p1", "r1", "g1", "stale", 0, []float32{1, 0}),
		chunk("p1", "r1", "g2", "current", 0, []float32{1, 0}),
		chunk("p1", "r2", "g1", "untouched", 0, []float32{1, 0}),
	}))

	require.NoError(t, idx.PruneGenerations(ctx, "r1", "g2"))
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_DeleteResourceAndProject(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	require.NoError(t, idx.StoreChunks(ctx, []ingest.Chunk{
		chunk("p1", "r1", "g1", "a", 0, []float32{1, 0}),
		chunk("p1", "r2", "g1", "b", 0, []float32{1, 0}),
		chunk("p2", "r3", "g1", "c", 0, []float32{1, 0}),
	}))

	require.NoError(t, idx.DeleteResource(ctx, "r1"))
	assert.Equal(t, 2, idx.Len())

	require.NoError(t, idx.DeleteProject(ctx, "p1"))
	assert.Equal(t, 1, idx.Len())
}
