package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github/itish2003/tenantrag/common"
	"github/itish2003/tenantrag/embedding"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chhttp "github.com/amikos-tech/chroma-go/pkg/commons/http"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// chromaHTTP implements chromaAPI with the chroma-go HTTP client.
type chromaHTTP struct {
	client chromago.Client
	ef     embeddings.EmbeddingFunction
}

func newChromaHTTP(cfg common.StoreConfig, embedder embedding.Embedder) (*chromaHTTP, error) {
	opts := []chromago.ClientOption{
		chromago.WithBaseURL(cfg.URL),
		chromago.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}),
	}
	if cfg.APIKey != "" {
		opts = append(opts, chromago.WithAuth(chromago.NewTokenAuthCredentialsProvider(cfg.APIKey, chromago.XChromaTokenHeader)))
	}
	client, err := chromago.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return &chromaHTTP{client: client, ef: &embeddingFunction{embedder: embedder}}, nil
}

func (c *chromaHTTP) database(tenant, database string) chromago.Database {
	return chromago.NewDatabase(database, chromago.NewTenant(tenant))
}

func (c *chromaHTTP) Heartbeat(ctx context.Context) error {
	return c.client.Heartbeat(ctx)
}

func (c *chromaHTTP) GetTenant(ctx context.Context, tenant string) error {
	_, err := c.client.GetTenant(ctx, chromago.NewTenant(tenant))
	return err
}

func (c *chromaHTTP) CreateTenant(ctx context.Context, tenant string) error {
	_, err := c.client.CreateTenant(ctx, chromago.NewTenant(tenant))
	return err
}

func (c *chromaHTTP) GetDatabase(ctx context.Context, tenant, database string) error {
	_, err := c.client.GetDatabase(ctx, c.database(tenant, database))
	return err
}

func (c *chromaHTTP) CreateDatabase(ctx context.Context, tenant, database string) error {
	_, err := c.client.CreateDatabase(ctx, c.database(tenant, database))
	return err
}

func (c *chromaHTTP) GetCollection(ctx context.Context, scope chromaScope) (chromaCollection, error) {
	coll, err := c.client.GetCollection(ctx, scope.Collection,
		chromago.WithDatabaseGet(c.database(scope.Tenant, scope.Database)),
		chromago.WithEmbeddingFunctionGet(c.ef),
	)
	if err != nil {
		return nil, err
	}
	return &chromaHTTPCollection{coll: coll}, nil
}

func (c *chromaHTTP) GetOrCreateCollection(ctx context.Context, scope chromaScope, metadata map[string]string) (chromaCollection, error) {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]*chromago.MetaAttribute, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, chromago.NewStringAttribute(k, metadata[k]))
	}

	coll, err := c.client.GetOrCreateCollection(ctx, scope.Collection,
		chromago.WithDatabaseCreate(c.database(scope.Tenant, scope.Database)),
		chromago.WithEmbeddingFunctionCreate(c.ef),
		chromago.WithCollectionMetadataCreate(chromago.NewMetadata(attrs...)),
	)
	if err != nil {
		return nil, err
	}
	return &chromaHTTPCollection{coll: coll}, nil
}

func (c *chromaHTTP) DeleteCollection(ctx context.Context, scope chromaScope) error {
	return c.client.DeleteCollection(ctx, scope.Collection, chromago.WithDatabaseDelete(c.database(scope.Tenant, scope.Database)))
}

func (c *chromaHTTP) Close() error {
	return c.client.Close()
}

type chromaHTTPCollection struct {
	coll chromago.Collection
}

func (h *chromaHTTPCollection) Add(ctx context.Context, records []chromaRecord, vectors [][]float32) error {
	ids := make([]chromago.DocumentID, len(records))
	texts := make([]string, len(records))
	embs := make([]embeddings.Embedding, len(records))
	metas := make([]chromago.DocumentMetadata, len(records))
	for i, r := range records {
		ids[i] = chromago.DocumentID(r.ID)
		texts[i] = r.Text
		embs[i] = embeddings.NewEmbeddingFromFloat32(vectors[i])
		attrs := make([]*chromago.MetaAttribute, 0, len(r.Metadata))
		for k, v := range r.Metadata {
			switch v := v.(type) {
			case string:
				attrs = append(attrs, chromago.NewStringAttribute(k, v))
			case int64:
				attrs = append(attrs, chromago.NewIntAttribute(k, v))
			}
		}
		metas[i] = chromago.NewDocumentMetadata(attrs...)
	}
	return h.coll.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
}

func (h *chromaHTTPCollection) Query(ctx context.Context, vector []float32, limit int) ([]chromaRecord, error) {
	results, err := h.coll.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(limit),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, chromago.Include("distances")),
	)
	if err != nil {
		return nil, err
	}

	documentGroups := results.GetDocumentsGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()

	records := make([]chromaRecord, 0, len(documentGroups[0]))
	for i, doc := range documentGroups[0] {
		r := chromaRecord{Text: doc.ContentString()}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			r.Metadata = metadataMap(metadataGroups[0][i])
		}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			r.Distance = float64(distanceGroups[0][i])
		}
		records = append(records, r)
	}
	return records, nil
}

func (h *chromaHTTPCollection) GetByFilename(ctx context.Context, filenames []string) ([]chromaRecord, error) {
	results, err := h.coll.Get(ctx,
		chromago.WithWhereGet(chromago.InString(metaFilename, filenames...)),
		chromago.WithIncludeGet(chromago.IncludeDocuments, chromago.IncludeMetadatas),
	)
	if err != nil {
		return nil, err
	}
	ids := results.GetIDs()
	documents := results.GetDocuments()
	metadatas := results.GetMetadatas()
	records := make([]chromaRecord, 0, len(documents))
	for i, doc := range documents {
		r := chromaRecord{Text: doc.ContentString()}
		if i < len(ids) {
			r.ID = string(ids[i])
		}
		if i < len(metadatas) {
			r.Metadata = metadataMap(metadatas[i])
		}
		records = append(records, r)
	}
	return records, nil
}

func (h *chromaHTTPCollection) DeleteByFilename(ctx context.Context, filenames []string) error {
	return h.coll.Delete(ctx, chromago.WithWhereDelete(chromago.InString(metaFilename, filenames...)))
}

// embeddingFunction binds a collection to the application's embedder so the
// client never falls back to its bundled default model.
type embeddingFunction struct {
	embedder embedding.Embedder
}

func (f *embeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	vectors, err := embedBatch(ctx, f.embedder, texts)
	if err != nil {
		return nil, err
	}
	out := make([]embeddings.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = embeddings.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (f *embeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	vectors, err := embedBatch(ctx, f.embedder, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbeddingFromFloat32(vectors[0]), nil
}

// chromaStatus extracts the HTTP status carried by a chroma client error.
// Transport failures carry status 0.
func chromaStatus(err error) (int, bool) {
	var chErr *chhttp.ChromaError
	if errors.As(err, &chErr) {
		return chErr.ErrorCode, true
	}
	return 0, false
}
