package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding every indexed chunk. Scoping is by
// projectId/resourceId properties; generation carries the chunk-swap pointer.
const ClassName = "ResourceChunk"

// SchemaClient is the slice of the Weaviate schema API we depend on.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema creates the chunk class if absent and backfills any missing
// properties on an existing class.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "projectId",
			DataType: []string{"string"}, // UUID, exact match only
		},
		{
			Name:     "resourceId",
			DataType: []string{"string"},
		},
		{
			Name:     "url",
			DataType: []string{"string"},
		},
		{
			Name:     "chunkIndex",
			DataType: []string{"int"},
		},
		{
			Name:     "generation",
			DataType: []string{"string"},
		},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "An embedded chunk of one ingested resource",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}

	for _, p := range properties {
		if !existing[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}
