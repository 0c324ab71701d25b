// Package store is the tenant-aware gateway to the vector index. Callers obtain
// a TenantCollection handle for one (collection, tenant) pair and perform all
// data I/O through it, so no read or write can be issued without a tenant.
package store

import (
	"context"
	"fmt"

	"github/itish2003/tenantrag/embedding"
	"github/itish2003/tenantrag/models"
)

// PropertyFilename is the only chunk property that can be used as a filter.
const PropertyFilename = "filename"

// Metadata keys stored alongside every chunk.
const (
	metaFilename = "filename"
	metaPosition = "position"
)

// CollectionConfig describes a multi-tenant collection.
type CollectionConfig struct {
	Name string
	// VectorModel is the embedding model the collection's vectors come from.
	VectorModel string
	// MultiTenancy partitions the collection by tenant.
	MultiTenancy bool
	// AutoTenantCreation lets the first write for an unknown tenant create it.
	AutoTenantCreation bool
	// AutoTenantActivation activates an inactive tenant on access. Backends
	// without tenant activity states treat every tenant as active.
	AutoTenantActivation bool
	DistanceMetric       string
}

// DefaultCollectionConfig returns a multi-tenant cosine collection with
// automatic tenant creation and activation.
func DefaultCollectionConfig(name, vectorModel string) CollectionConfig {
	return CollectionConfig{
		Name:                 name,
		VectorModel:          vectorModel,
		MultiTenancy:         true,
		AutoTenantCreation:   true,
		AutoTenantActivation: true,
		DistanceMetric:       "cosine",
	}
}

// CollectionAdmin manages collection lifecycle.
type CollectionAdmin interface {
	// EnsureCollection creates the collection if it is absent. It is idempotent.
	EnsureCollection(ctx context.Context, cfg CollectionConfig) error
	DeleteCollection(ctx context.Context, name string) error
	// ListCollections returns the collection names in sorted order.
	ListCollections(ctx context.Context) ([]string, error)
}

// TenantAdmin manages tenants and hands out tenant-scoped handles.
type TenantAdmin interface {
	CreateTenants(ctx context.Context, collection string, tenants ...models.TenantID) error
	ListTenants(ctx context.Context, collection string) ([]models.TenantID, error)
	Tenant(ctx context.Context, collection string, tenant models.TenantID) (TenantCollection, error)
}

// DataWriter writes and deletes chunks of a single tenant.
type DataWriter interface {
	// Upload writes the chunks in dynamically sized batches. Objects the store
	// rejects are counted in the report. Connection-level failures are
	// returned wrapping models.ErrStoreFailure, and failures of the embedding
	// model wrapping models.ErrEmbeddingFailure.
	Upload(ctx context.Context, chunks []models.Chunk) (models.UploadReport, error)
	DeleteByProperty(ctx context.Context, property string, values []string) (int, error)
}

// DataReader reads chunks of a single tenant.
type DataReader interface {
	// Query returns at most limit chunks ordered by ascending distance.
	Query(ctx context.Context, text string, limit int) ([]models.RetrievedChunk, error)
	// FetchByProperty returns the full text of each matching filename, with
	// chunk texts joined by a single space in source order.
	FetchByProperty(ctx context.Context, property string, values []string) (map[string]string, error)
}

// TenantCollection is a handle bound to one collection and one tenant.
type TenantCollection interface {
	Tenant() models.TenantID
	DataWriter
	DataReader
}

// Gateway is the full store surface used by the application.
type Gateway interface {
	CollectionAdmin
	TenantAdmin
	Close() error
}

// Upload writes chunks for one tenant of a collection.
func Upload(ctx context.Context, admin TenantAdmin, collection string, tenant models.TenantID, chunks []models.Chunk) (models.UploadReport, error) {
	h, err := admin.Tenant(ctx, collection, tenant)
	if err != nil {
		return models.UploadReport{}, err
	}
	return h.Upload(ctx, chunks)
}

// Query runs a similarity search within one tenant of a collection.
func Query(ctx context.Context, admin TenantAdmin, collection string, tenant models.TenantID, text string, limit int) ([]models.RetrievedChunk, error) {
	h, err := admin.Tenant(ctx, collection, tenant)
	if err != nil {
		return nil, err
	}
	return h.Query(ctx, text, limit)
}

// FetchByProperty returns full document texts within one tenant of a collection.
func FetchByProperty(ctx context.Context, admin TenantAdmin, collection string, tenant models.TenantID, property string, values []string) (map[string]string, error) {
	h, err := admin.Tenant(ctx, collection, tenant)
	if err != nil {
		return nil, err
	}
	return h.FetchByProperty(ctx, property, values)
}

// DeleteByProperty deletes matching chunks within one tenant of a collection.
func DeleteByProperty(ctx context.Context, admin TenantAdmin, collection string, tenant models.TenantID, property string, values []string) (int, error) {
	h, err := admin.Tenant(ctx, collection, tenant)
	if err != nil {
		return 0, err
	}
	return h.DeleteByProperty(ctx, property, values)
}

// embedBatch vectorises texts with one embedder call. Any failure is an
// embedding failure, never a rejection of the batch's objects.
func embedBatch(ctx context.Context, embedder embedding.Embedder, texts []string) ([][]float32, error) {
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStoreFailure, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", models.ErrEmbeddingFailure, embedder.Model(), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", models.ErrEmbeddingFailure, embedder.Model(), len(vectors), len(texts))
	}
	return vectors, nil
}

func checkProperty(property string) error {
	if property != PropertyFilename {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedProperty, property)
	}
	return nil
}
