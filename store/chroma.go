package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github/itish2003/tenantrag/common"
	"github/itish2003/tenantrag/embedding"
	"github/itish2003/tenantrag/models"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// chromaScope addresses one collection inside one tenant's database.
type chromaScope struct {
	Tenant     string
	Database   string
	Collection string
}

// chromaRecord is one stored object. Distance is only set on query results.
type chromaRecord struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
	Distance float64
}

// chromaAPI is the part of the Chroma server the gateway talks to.
type chromaAPI interface {
	Heartbeat(ctx context.Context) error
	GetTenant(ctx context.Context, tenant string) error
	CreateTenant(ctx context.Context, tenant string) error
	GetDatabase(ctx context.Context, tenant, database string) error
	CreateDatabase(ctx context.Context, tenant, database string) error
	GetCollection(ctx context.Context, scope chromaScope) (chromaCollection, error)
	GetOrCreateCollection(ctx context.Context, scope chromaScope, metadata map[string]string) (chromaCollection, error)
	DeleteCollection(ctx context.Context, scope chromaScope) error
	Close() error
}

// chromaCollection is a resolved collection handle.
type chromaCollection interface {
	Add(ctx context.Context, records []chromaRecord, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, limit int) ([]chromaRecord, error)
	GetByFilename(ctx context.Context, filenames []string) ([]chromaRecord, error)
	DeleteByFilename(ctx context.Context, filenames []string) error
}

// ChromaGateway maps each TenantID onto a Chroma tenant with its own database.
// A collection is materialised inside a tenant's database on the first write.
type ChromaGateway struct {
	api       chromaAPI
	embedder  embedding.Embedder
	database  string
	batchSize int
	logger    arbor.ILogger

	mu      sync.Mutex
	configs map[string]CollectionConfig
	handles map[handleKey]chromaCollection
	tenants map[string]map[models.TenantID]struct{}
}

type handleKey struct {
	collection string
	tenant     models.TenantID
}

// NewChromaGateway connects to the Chroma server described by cfg.
func NewChromaGateway(cfg common.StoreConfig, embedder embedding.Embedder, logger arbor.ILogger) (*ChromaGateway, error) {
	api, err := newChromaHTTP(cfg, embedder)
	if err != nil {
		return nil, err
	}
	return newChromaGateway(api, embedder, cfg.Database, cfg.BatchSize, logger), nil
}

func newChromaGateway(api chromaAPI, embedder embedding.Embedder, database string, batchSize int, logger arbor.ILogger) *ChromaGateway {
	return &ChromaGateway{
		api:       api,
		embedder:  embedder,
		database:  database,
		batchSize: batchSize,
		logger:    logger,
		configs:   make(map[string]CollectionConfig),
		handles:   make(map[handleKey]chromaCollection),
		tenants:   make(map[string]map[models.TenantID]struct{}),
	}
}

// EnsureCollection checks the server is reachable and registers the
// collection configuration used when tenants materialise it.
func (g *ChromaGateway) EnsureCollection(ctx context.Context, cfg CollectionConfig) error {
	if err := g.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: heartbeat failed: %w", models.ErrStoreFailure, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.configs[cfg.Name]; !ok {
		g.configs[cfg.Name] = cfg
		g.logger.Info().Str("collection", cfg.Name).Str("model", cfg.VectorModel).Msg("Registered chroma collection")
	}
	return nil
}

func (g *ChromaGateway) DeleteCollection(ctx context.Context, name string) error {
	g.mu.Lock()
	known := g.tenants[name]
	delete(g.configs, name)
	delete(g.tenants, name)
	for key := range g.handles {
		if key.collection == name {
			delete(g.handles, key)
		}
	}
	g.mu.Unlock()

	for tenant := range known {
		if err := g.api.DeleteCollection(ctx, g.scope(name, tenant)); err != nil {
			if IsConnectionError(err) {
				return fmt.Errorf("%w: %w", models.ErrStoreFailure, err)
			}
			g.logger.Warn().Str("collection", name).Str("tenant", tenant.String()).Err(err).Msg("Failed to delete tenant collection")
		}
	}
	return nil
}

// ListCollections returns the collections registered with this gateway.
// Chroma keeps collections per tenant database, so there is no global list.
func (g *ChromaGateway) ListCollections(_ context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.configs))
	for name := range g.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *ChromaGateway) CreateTenants(ctx context.Context, collection string, tenants ...models.TenantID) error {
	for _, t := range tenants {
		if _, err := g.collectionFor(ctx, collection, t, true); err != nil {
			return err
		}
	}
	return nil
}

// ListTenants returns the tenants this gateway has provisioned or written to.
// Chroma has no tenant listing endpoint.
func (g *ChromaGateway) ListTenants(_ context.Context, collection string) ([]models.TenantID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.TenantID, 0, len(g.tenants[collection]))
	for t := range g.tenants[collection] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (g *ChromaGateway) Tenant(_ context.Context, collection string, tenant models.TenantID) (TenantCollection, error) {
	return &chromaTenant{gw: g, collection: collection, tenant: tenant}, nil
}

func (g *ChromaGateway) Close() error {
	return g.api.Close()
}

func (g *ChromaGateway) scope(collection string, tenant models.TenantID) chromaScope {
	return chromaScope{Tenant: tenant.String(), Database: g.database, Collection: collection}
}

func (g *ChromaGateway) configFor(collection string) CollectionConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cfg, ok := g.configs[collection]; ok {
		return cfg
	}
	cfg := DefaultCollectionConfig(collection, g.embedder.Model())
	g.configs[collection] = cfg
	return cfg
}

// collectionFor resolves the tenant's collection. With create set, missing
// tenants, databases and collections are created when the collection config
// allows it; otherwise a missing collection yields nil without an error.
func (g *ChromaGateway) collectionFor(ctx context.Context, collection string, tenant models.TenantID, create bool) (chromaCollection, error) {
	key := handleKey{collection: collection, tenant: tenant}
	g.mu.Lock()
	if h, ok := g.handles[key]; ok {
		g.mu.Unlock()
		return h, nil
	}
	g.mu.Unlock()

	scope := g.scope(collection, tenant)
	if !create {
		h, err := g.api.GetCollection(ctx, scope)
		if err != nil {
			if IsConnectionError(err) {
				return nil, fmt.Errorf("%w: %w", models.ErrStoreFailure, err)
			}
			g.logger.Debug().Str("collection", collection).Str("tenant", tenant.String()).Err(err).Msg("Tenant collection not found")
			return nil, nil
		}
		g.remember(key, h)
		return h, nil
	}

	cfg := g.configFor(collection)
	if err := g.ensureTenant(ctx, scope, cfg); err != nil {
		return nil, err
	}
	h, err := g.api.GetOrCreateCollection(ctx, scope, map[string]string{
		"hnsw:space":   cfg.DistanceMetric,
		"vector_model": cfg.VectorModel,
		"tenant":       tenant.String(),
	})
	if err != nil {
		return nil, g.classify(err, "get or create collection")
	}
	g.remember(key, h)
	return h, nil
}

func (g *ChromaGateway) ensureTenant(ctx context.Context, scope chromaScope, cfg CollectionConfig) error {
	if err := g.api.GetTenant(ctx, scope.Tenant); err != nil {
		if IsConnectionError(err) {
			return fmt.Errorf("%w: %w", models.ErrStoreFailure, err)
		}
		if !cfg.AutoTenantCreation {
			return fmt.Errorf("%w: %s", models.ErrTenantNotFound, scope.Tenant)
		}
		g.logger.Info().Str("tenant", scope.Tenant).Msg("Creating chroma tenant")
		if err := g.api.CreateTenant(ctx, scope.Tenant); err != nil {
			return g.classify(err, "create tenant")
		}
	}
	if err := g.api.GetDatabase(ctx, scope.Tenant, scope.Database); err != nil {
		if IsConnectionError(err) {
			return fmt.Errorf("%w: %w", models.ErrStoreFailure, err)
		}
		if err := g.api.CreateDatabase(ctx, scope.Tenant, scope.Database); err != nil {
			return g.classify(err, "create database")
		}
	}
	return nil
}

func (g *ChromaGateway) remember(key handleKey, h chromaCollection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handles[key] = h
	if g.tenants[key.collection] == nil {
		g.tenants[key.collection] = make(map[models.TenantID]struct{})
	}
	g.tenants[key.collection][key.tenant] = struct{}{}
}

func (g *ChromaGateway) classify(err error, op string) error {
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %s: %w", models.ErrStoreFailure, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// chromaTenant is the tenant-scoped handle of ChromaGateway.
type chromaTenant struct {
	gw         *ChromaGateway
	collection string
	tenant     models.TenantID
}

func (t *chromaTenant) Tenant() models.TenantID { return t.tenant }

func (t *chromaTenant) Upload(ctx context.Context, chunks []models.Chunk) (models.UploadReport, error) {
	coll, err := t.gw.collectionFor(ctx, t.collection, t.tenant, true)
	if err != nil {
		return models.UploadReport{}, err
	}
	write := func(ctx context.Context, batch []models.Chunk) error {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := embedBatch(ctx, t.gw.embedder, texts)
		if err != nil {
			return err
		}

		records := make([]chromaRecord, len(batch))
		for i, c := range batch {
			meta := map[string]interface{}{metaFilename: c.Filename}
			if c.SourcePosition != nil {
				meta[metaPosition] = int64(*c.SourcePosition)
			}
			records[i] = chromaRecord{ID: uuid.NewString(), Text: c.Text, Metadata: meta}
		}
		return coll.Add(ctx, records, vectors)
	}
	return writeBatches(ctx, chunks, t.gw.batchSize, write, t.gw.logger)
}

func (t *chromaTenant) Query(ctx context.Context, text string, limit int) ([]models.RetrievedChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	coll, err := t.gw.collectionFor(ctx, t.collection, t.tenant, false)
	if err != nil || coll == nil {
		return nil, err
	}

	vectors, err := embedBatch(ctx, t.gw.embedder, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	records, err := coll.Query(ctx, vectors[0], limit)
	if err != nil {
		return nil, t.gw.classify(err, "query chroma")
	}

	hits := make([]models.RetrievedChunk, 0, len(records))
	for _, r := range records {
		sc := chunkFromMetadata(r.Text, r.Metadata)
		hits = append(hits, models.RetrievedChunk{
			Text:           sc.Text,
			Filename:       sc.Filename,
			Distance:       r.Distance,
			SourcePosition: positionPtr(sc.Position),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (t *chromaTenant) fetch(ctx context.Context, values []string) (chromaCollection, []chromaRecord, error) {
	coll, err := t.gw.collectionFor(ctx, t.collection, t.tenant, false)
	if err != nil || coll == nil {
		return nil, nil, err
	}
	records, err := coll.GetByFilename(ctx, values)
	if err != nil {
		return nil, nil, t.gw.classify(err, "get from chroma")
	}
	return coll, records, nil
}

func (t *chromaTenant) FetchByProperty(ctx context.Context, property string, values []string) (map[string]string, error) {
	if err := checkProperty(property); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return map[string]string{}, nil
	}
	_, records, err := t.fetch(ctx, values)
	if err != nil {
		return nil, err
	}

	chunks := make([]storedChunk, 0, len(records))
	for _, r := range records {
		chunks = append(chunks, chunkFromMetadata(r.Text, r.Metadata))
	}
	return joinByFilename(chunks), nil
}

func (t *chromaTenant) DeleteByProperty(ctx context.Context, property string, values []string) (int, error) {
	if err := checkProperty(property); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	coll, records, err := t.fetch(ctx, values)
	if err != nil || coll == nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := coll.DeleteByFilename(ctx, values); err != nil {
		return 0, t.gw.classify(err, "delete from chroma")
	}
	return len(records), nil
}
