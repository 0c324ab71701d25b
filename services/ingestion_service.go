package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github/itish2003/tenantrag/models"
	"github/itish2003/tenantrag/store"

	"github.com/ternarybob/arbor"
)

// Extractor produces the chunk batch of one input workspace.
type Extractor interface {
	Extract(ctx context.Context, inputDir, outputDir string) ([]models.Chunk, error)
}

// Workspace is the pair of directories one ingestion run owns.
type Workspace struct {
	InputDir  string
	OutputDir string
}

// WorkspaceLayout derives per-tenant workspaces from the configured roots.
type WorkspaceLayout struct {
	InputRoot  string
	OutputRoot string
}

func (l WorkspaceLayout) For(tenant models.TenantID) Workspace {
	return Workspace{
		InputDir:  filepath.Join(l.InputRoot, tenant.String()),
		OutputDir: filepath.Join(l.OutputRoot, tenant.String()),
	}
}

// StateFunc receives every state transition of a run.
type StateFunc func(models.IngestionState)

// IngestionService runs the extract-then-index pipeline for one tenant.
type IngestionService interface {
	// Run ingests the tenant's input workspace. The returned error, if any,
	// is also described by the result's Reason. Both workspaces are removed
	// before Run returns, whatever the outcome.
	Run(ctx context.Context, tenant models.TenantID, onState StateFunc) (models.IngestionResult, error)
}

type ingestionServiceImpl struct {
	extractor  Extractor
	gateway    storeGateway
	collection store.CollectionConfig
	layout     WorkspaceLayout
	logger     arbor.ILogger
}

type storeGateway interface {
	store.CollectionAdmin
	store.TenantAdmin
}

func NewIngestionService(extractor Extractor, gateway storeGateway, collection store.CollectionConfig, layout WorkspaceLayout, logger arbor.ILogger) IngestionService {
	return &ingestionServiceImpl{
		extractor:  extractor,
		gateway:    gateway,
		collection: collection,
		layout:     layout,
		logger:     logger,
	}
}

func (s *ingestionServiceImpl) Run(ctx context.Context, tenant models.TenantID, onState StateFunc) (result models.IngestionResult, err error) {
	ws := s.layout.For(tenant)
	setState := func(st models.IngestionState) {
		result.State = st
		if onState != nil {
			onState(st)
		}
	}
	fail := func(cause error) (models.IngestionResult, error) {
		result.Success = false
		result.SampleChunkText = ""
		result.Reason = cause.Error()
		setState(models.StateFailed)
		s.logger.Error().Str("tenant", tenant.String()).Err(cause).Msg("Ingestion failed")
		return result, cause
	}

	defer s.cleanup(tenant, ws)
	setState(models.StateIdle)

	info, statErr := os.Stat(ws.InputDir)
	if statErr != nil || !info.IsDir() {
		return fail(fmt.Errorf("%w: %s", models.ErrWorkspaceMissing, ws.InputDir))
	}

	setState(models.StateParsing)
	chunks, err := s.extractor.Extract(ctx, ws.InputDir, ws.OutputDir)
	if err != nil {
		return fail(err)
	}
	result.Chunks = len(chunks)

	setState(models.StateIndexing)
	if len(chunks) == 0 {
		s.logger.Info().Str("tenant", tenant.String()).Msg("Empty batch, nothing to index")
	} else {
		if err := s.gateway.EnsureCollection(ctx, s.collection); err != nil {
			return fail(fmt.Errorf("ensure collection %s: %w", s.collection.Name, err))
		}
		handle, err := s.gateway.Tenant(ctx, s.collection.Name, tenant)
		if err != nil {
			return fail(err)
		}
		report, err := handle.Upload(ctx, chunks)
		result.Succeeded, result.Failed = report.Succeeded, report.Failed
		if err != nil {
			return fail(fmt.Errorf("upload to %s: %w", s.collection.Name, err))
		}
		if report.Failed > 0 {
			s.logger.Warn().
				Str("tenant", tenant.String()).
				Int("failed", report.Failed).
				Int("succeeded", report.Succeeded).
				Strs("files", report.FailedFilenames()).
				Msg("Some chunks were rejected by the store")
		}
		if report.Succeeded == 0 {
			return fail(fmt.Errorf("%w: store rejected all %d chunks", models.ErrNothingIndexed, report.Failed))
		}
		result.SampleChunkText = sampleChunk(chunks, report)
	}

	result.Success = true
	setState(models.StateCompleted)
	s.logger.Info().Str("tenant", tenant.String()).Int("chunks", result.Chunks).Int("stored", result.Succeeded).Msg("Ingestion completed")
	return result, nil
}

// sampleChunk returns the text of the first chunk the store accepted.
func sampleChunk(chunks []models.Chunk, report models.UploadReport) string {
	failed := make(map[int]struct{}, len(report.FailedObjects))
	for _, f := range report.FailedObjects {
		failed[f.Index] = struct{}{}
	}
	for i, c := range chunks {
		if _, ok := failed[i]; !ok {
			return c.Text
		}
	}
	return ""
}

func (s *ingestionServiceImpl) cleanup(tenant models.TenantID, ws Workspace) {
	for _, dir := range []string{ws.InputDir, ws.OutputDir} {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn().Str("tenant", tenant.String()).Str("dir", dir).Err(err).Msg("Failed to clean workspace")
		}
	}
}
