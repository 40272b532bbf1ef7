package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"refbook/internal/ingest"
	"refbook/internal/retrieval"
	"refbook/internal/vector"
)

// Store persists and searches resource chunks in Weaviate. It implements the
// pipeline's chunk store and the retrieval searcher.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

func (s *Store) StoreChunks(ctx context.Context, chunks []ingest.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(chunks))
	for _, c := range chunks {
		objects = append(objects, &models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"content":    c.Content,
				"projectId":  c.ProjectID,
				"resourceId": c.ResourceID,
				"url":        c.URL,
				"chunkIndex": c.ChunkIndex,
				"generation": c.Generation,
			},
			Vector: c.Vector,
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, obj := range res {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch insert: %s", obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) DeleteGeneration(ctx context.Context, resourceID, generation string) error {
	return s.deleteWhere(ctx, filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"resourceId"}).WithOperator(filters.Equal).WithValueString(resourceID),
			filters.Where().WithPath([]string{"generation"}).WithOperator(filters.Equal).WithValueString(generation),
		}))
}

func (s *Store) PruneGenerations(ctx context.Context, resourceID, keep string) error {
	return s.deleteWhere(ctx, filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"resourceId"}).WithOperator(filters.Equal).WithValueString(resourceID),
			filters.Where().WithPath([]string{"generation"}).WithOperator(filters.NotEqual).WithValueString(keep),
		}))
}

func (s *Store) DeleteResource(ctx context.Context, resourceID string) error {
	return s.deleteWhere(ctx, filters.Where().
		WithPath([]string{"resourceId"}).
		WithOperator(filters.Equal).
		WithValueString(resourceID))
}

func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	return s.deleteWhere(ctx, filters.Where().
		WithPath([]string{"projectId"}).
		WithOperator(filters.Equal).
		WithValueString(projectID))
}

func (s *Store) deleteWhere(ctx context.Context, where *filters.WhereBuilder) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	return err
}

// Search runs a nearVector query restricted to the project and to the
// committed (resourceId, generation) pairs in scope. Distances come back as
// cosine distance from Weaviate's _additional block.
func (s *Store) Search(ctx context.Context, projectID string, vec []float32, limit int, scope []retrieval.ResourceScope) ([]retrieval.Match, error) {
	if len(scope) == 0 {
		return nil, nil
	}

	scopeOperands := make([]*filters.WhereBuilder, 0, len(scope))
	for _, sc := range scope {
		scopeOperands = append(scopeOperands, filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().WithPath([]string{"resourceId"}).WithOperator(filters.Equal).WithValueString(sc.ResourceID),
				filters.Where().WithPath([]string{"generation"}).WithOperator(filters.Equal).WithValueString(sc.Generation),
			}))
	}

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"projectId"}).WithOperator(filters.Equal).WithValueString(projectID),
			filters.Where().WithOperator(filters.Or).WithOperands(scopeOperands),
		})

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "url"},
		{Name: "resourceId"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var matches []retrieval.Match
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	raw, ok := data[vector.ClassName].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, item := range raw {
		props, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		m := retrieval.Match{}
		if content, ok := props["content"].(string); ok {
			m.Content = content
		}
		if url, ok := props["url"].(string); ok {
			m.URL = url
		}
		if rid, ok := props["resourceId"].(string); ok {
			m.ResourceID = rid
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			m.ChunkIndex = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				m.Distance = float32(d)
			}
		}
		matches = append(matches, m)
	}

	return matches, nil
}
