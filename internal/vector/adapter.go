package vector

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateClientAdapter narrows a *weaviate.Client to the SchemaClient
// surface EnsureSchema needs for the ResourceChunk class.
type WeaviateClientAdapter struct {
	client *weaviate.Client
}

func NewWeaviateClientAdapter(client *weaviate.Client) *WeaviateClientAdapter {
	return &WeaviateClientAdapter{client: client}
}

func (a *WeaviateClientAdapter) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a *WeaviateClientAdapter) CreateClass(ctx context.Context, class *models.Class) error {
	return a.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *WeaviateClientAdapter) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

// AddProperty backfills one missing ResourceChunk property on a class that
// predates it, so schema upgrades do not require reindexing.
func (a *WeaviateClientAdapter) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}
