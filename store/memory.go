package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github/itish2003/tenantrag/embedding"
	"github/itish2003/tenantrag/models"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// MemoryGateway keeps every collection in process memory and searches by
// brute-force cosine distance. It is meant for local development and tests.
type MemoryGateway struct {
	embedder  embedding.Embedder
	batchSize int
	logger    arbor.ILogger

	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	cfg     CollectionConfig
	tenants map[models.TenantID][]memoryRecord
}

type memoryRecord struct {
	id     string
	chunk  storedChunk
	vector []float32
}

func NewMemoryGateway(embedder embedding.Embedder, batchSize int, logger arbor.ILogger) *MemoryGateway {
	return &MemoryGateway{
		embedder:    embedder,
		batchSize:   batchSize,
		logger:      logger,
		collections: make(map[string]*memoryCollection),
	}
}

func (g *MemoryGateway) EnsureCollection(_ context.Context, cfg CollectionConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.collections[cfg.Name]; ok {
		return nil
	}
	g.collections[cfg.Name] = &memoryCollection{cfg: cfg, tenants: make(map[models.TenantID][]memoryRecord)}
	g.logger.Info().Str("collection", cfg.Name).Str("model", cfg.VectorModel).Msg("Created in-memory collection")
	return nil
}

func (g *MemoryGateway) DeleteCollection(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.collections[name]; !ok {
		return fmt.Errorf("%w: %s", models.ErrCollectionNotFound, name)
	}
	delete(g.collections, name)
	return nil
}

func (g *MemoryGateway) ListCollections(_ context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.collections))
	for name := range g.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *MemoryGateway) CreateTenants(ctx context.Context, collection string, tenants ...models.TenantID) error {
	if err := g.EnsureCollection(ctx, DefaultCollectionConfig(collection, g.embedder.Model())); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	coll := g.collections[collection]
	for _, t := range tenants {
		if _, ok := coll.tenants[t]; !ok {
			coll.tenants[t] = nil
		}
	}
	return nil
}

func (g *MemoryGateway) ListTenants(_ context.Context, collection string) ([]models.TenantID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	coll, ok := g.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrCollectionNotFound, collection)
	}
	tenants := make([]models.TenantID, 0, len(coll.tenants))
	for t := range coll.tenants {
		tenants = append(tenants, t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i] < tenants[j] })
	return tenants, nil
}

func (g *MemoryGateway) Tenant(_ context.Context, collection string, tenant models.TenantID) (TenantCollection, error) {
	return &memoryTenant{gw: g, collection: collection, tenant: tenant}, nil
}

func (g *MemoryGateway) Close() error { return nil }

// memoryTenant is the tenant-scoped handle of MemoryGateway.
type memoryTenant struct {
	gw         *MemoryGateway
	collection string
	tenant     models.TenantID
}

func (t *memoryTenant) Tenant() models.TenantID { return t.tenant }

func (t *memoryTenant) Upload(ctx context.Context, chunks []models.Chunk) (models.UploadReport, error) {
	if err := t.gw.EnsureCollection(ctx, DefaultCollectionConfig(t.collection, t.gw.embedder.Model())); err != nil {
		return models.UploadReport{}, err
	}
	return writeBatches(ctx, chunks, t.gw.batchSize, t.write, t.gw.logger)
}

func (t *memoryTenant) write(ctx context.Context, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedBatch(ctx, t.gw.embedder, texts)
	if err != nil {
		return err
	}

	t.gw.mu.Lock()
	defer t.gw.mu.Unlock()
	coll, ok := t.gw.collections[t.collection]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrCollectionNotFound, t.collection)
	}
	existing, known := coll.tenants[t.tenant]
	if !known && !coll.cfg.AutoTenantCreation {
		return fmt.Errorf("%w: %s", models.ErrTenantNotFound, t.tenant)
	}
	for i, v := range vectors {
		if len(existing) > 0 && len(existing[0].vector) != len(v) {
			return fmt.Errorf("%w: vector dimension %d does not match collection dimension %d", models.ErrEmbeddingFailure, len(v), len(existing[0].vector))
		}
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector for chunk %d", models.ErrEmbeddingFailure, i)
		}
	}
	for i, c := range chunks {
		existing = append(existing, memoryRecord{
			id:     uuid.NewString(),
			chunk:  storedChunk{Text: c.Text, Filename: c.Filename, Position: c.Position()},
			vector: vectors[i],
		})
	}
	coll.tenants[t.tenant] = existing
	return nil
}

func (t *memoryTenant) records() []memoryRecord {
	t.gw.mu.RLock()
	defer t.gw.mu.RUnlock()
	coll, ok := t.gw.collections[t.collection]
	if !ok {
		return nil
	}
	recs := coll.tenants[t.tenant]
	return append([]memoryRecord(nil), recs...)
}

func (t *memoryTenant) Query(ctx context.Context, text string, limit int) ([]models.RetrievedChunk, error) {
	recs := t.records()
	if len(recs) == 0 || limit <= 0 {
		return nil, nil
	}
	vectors, err := embedBatch(ctx, t.gw.embedder, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	query := vectors[0]

	hits := make([]models.RetrievedChunk, 0, len(recs))
	for _, r := range recs {
		hits = append(hits, models.RetrievedChunk{
			Text:           r.chunk.Text,
			Filename:       r.chunk.Filename,
			Distance:       cosineDistance(query, r.vector),
			SourcePosition: positionPtr(r.chunk.Position),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (t *memoryTenant) FetchByProperty(_ context.Context, property string, values []string) (map[string]string, error) {
	if err := checkProperty(property); err != nil {
		return nil, err
	}
	wanted := toSet(values)
	var matched []storedChunk
	for _, r := range t.records() {
		if _, ok := wanted[r.chunk.Filename]; ok {
			matched = append(matched, r.chunk)
		}
	}
	return joinByFilename(matched), nil
}

func (t *memoryTenant) DeleteByProperty(_ context.Context, property string, values []string) (int, error) {
	if err := checkProperty(property); err != nil {
		return 0, err
	}
	wanted := toSet(values)

	t.gw.mu.Lock()
	defer t.gw.mu.Unlock()
	coll, ok := t.gw.collections[t.collection]
	if !ok {
		return 0, nil
	}
	recs := coll.tenants[t.tenant]
	kept := recs[:0:0]
	for _, r := range recs {
		if _, ok := wanted[r.chunk.Filename]; !ok {
			kept = append(kept, r)
		}
	}
	deleted := len(recs) - len(kept)
	if _, known := coll.tenants[t.tenant]; known {
		coll.tenants[t.tenant] = kept
	}
	return deleted, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
