package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github/itish2003/tenantrag/models"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// ApologyAnswer is returned to the user whenever an answer cannot be produced.
const ApologyAnswer = "I'm sorry, I couldn't generate a response."

// finishedTaskTTL is how long a completed run stays pollable.
const finishedTaskTTL = time.Hour

// SessionService is the surface-facing coordinator. It runs ingestion in the
// background, reports progress and forwards questions to the query engine.
type SessionService struct {
	ingestion IngestionService
	rag       RAGService
	logger    arbor.ILogger

	mu        sync.Mutex
	tasks     map[string]*ingestionTask
	active    map[models.TenantID]string
	uploading map[models.TenantID]int
}

// ingestionTask is one background run. Its result is written exactly once,
// after which done is closed.
type ingestionTask struct {
	handle string
	tenant models.TenantID
	done   chan struct{}
	once   sync.Once

	mu         sync.Mutex
	state      models.IngestionState
	result     models.IngestionResult
	summary    string
	finishedAt time.Time
}

func NewSessionService(ingestion IngestionService, rag RAGService, logger arbor.ILogger) *SessionService {
	return &SessionService{
		ingestion: ingestion,
		rag:       rag,
		logger:    logger,
		tasks:     make(map[string]*ingestionTask),
		active:    make(map[models.TenantID]string),
		uploading: make(map[models.TenantID]int),
	}
}

// BeginIngestion starts ingesting the tenant's workspace and returns a handle
// for polling. It fails with models.ErrIngestionInProgress while another run
// for the same tenant is active or uploads into its workspace are being saved.
func (s *SessionService) BeginIngestion(tenant models.TenantID) (string, error) {
	s.mu.Lock()
	if h, ok := s.active[tenant]; ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s (handle %s)", models.ErrIngestionInProgress, tenant, h)
	}
	if n := s.uploading[tenant]; n > 0 {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s has %d uploads in flight", models.ErrIngestionInProgress, tenant, n)
	}
	s.pruneLocked(time.Now())

	task := &ingestionTask{
		handle: uuid.NewString(),
		tenant: tenant,
		done:   make(chan struct{}),
		state:  models.StateIdle,
	}
	s.tasks[task.handle] = task
	s.active[tenant] = task.handle
	s.mu.Unlock()

	s.logger.Info().Str("tenant", tenant.String()).Str("handle", task.handle).Msg("Starting background ingestion")
	go s.run(task)
	return task.handle, nil
}

// IsIngesting reports whether a run is active for the tenant.
func (s *SessionService) IsIngesting(tenant models.TenantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[tenant]
	return ok
}

// ClaimUploads reserves the tenant's input workspace for saving uploads. No
// ingestion can start until release is called. It fails with
// models.ErrIngestionInProgress while a run is active.
func (s *SessionService) ClaimUploads(tenant models.TenantID) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.active[tenant]; ok {
		return nil, fmt.Errorf("%w: %s (handle %s)", models.ErrIngestionInProgress, tenant, h)
	}
	s.uploading[tenant]++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.uploading[tenant]--; s.uploading[tenant] <= 0 {
				delete(s.uploading, tenant)
			}
		})
	}, nil
}

func (s *SessionService) run(task *ingestionTask) {
	var (
		result  models.IngestionResult
		summary string
	)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("tenant", task.tenant.String()).Str("panic", fmt.Sprint(r)).Msg("Ingestion run panicked")
			result = models.IngestionResult{
				Success: false,
				State:   models.StateFailed,
				Reason:  fmt.Sprintf("internal error: %v", r),
			}
			summary = ""
			task.setState(models.StateFailed)
		}
		s.release(task)
		task.complete(result, summary)
	}()

	// Runs are not cancellable once started.
	ctx := context.Background()
	result, _ = s.ingestion.Run(ctx, task.tenant, task.setState)

	if result.Success && result.HasSample() {
		var err error
		summary, err = s.rag.Summarize(ctx, task.tenant, []string{result.SampleChunkText})
		if err != nil {
			s.logger.Warn().Str("tenant", task.tenant.String()).Err(err).Msg("Initial summary failed")
			summary = ""
		}
	}
}

func (s *SessionService) release(task *ingestionTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[task.tenant] == task.handle {
		delete(s.active, task.tenant)
	}
}

func (s *SessionService) pruneLocked(now time.Time) {
	for h, task := range s.tasks {
		if task.finished(now, finishedTaskTTL) {
			delete(s.tasks, h)
		}
	}
}

func (s *SessionService) lookup(handle string) (*ingestionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownIngestion, handle)
	}
	return task, nil
}

// PollIngestion returns the current status of a run without blocking.
func (s *SessionService) PollIngestion(handle string) (models.IngestionStatus, error) {
	task, err := s.lookup(handle)
	if err != nil {
		return models.IngestionStatus{}, err
	}
	return task.status(), nil
}

// WaitIngestion blocks until the run finishes or ctx is done.
func (s *SessionService) WaitIngestion(ctx context.Context, handle string) (models.IngestionStatus, error) {
	task, err := s.lookup(handle)
	if err != nil {
		return models.IngestionStatus{}, err
	}
	select {
	case <-task.done:
		return task.status(), nil
	case <-ctx.Done():
		return task.status(), ctx.Err()
	}
}

// Ask answers a question for the tenant. It never returns a raw error: when
// no answer can be produced the user gets ApologyAnswer.
func (s *SessionService) Ask(ctx context.Context, tenant models.TenantID, query string, history []models.ConversationTurn) models.Answer {
	answer, err := s.rag.Answer(ctx, tenant, query, history)
	if err != nil {
		s.logger.Error().Str("tenant", tenant.String()).Err(err).Msg("Query failed")
		return models.Answer{Text: ApologyAnswer}
	}
	return *answer
}

// SummarizeBatch summarises the given chunk texts for the tenant.
func (s *SessionService) SummarizeBatch(ctx context.Context, tenant models.TenantID, chunkTexts []string) (string, error) {
	return s.rag.Summarize(ctx, tenant, chunkTexts)
}

func (t *ingestionTask) setState(st models.IngestionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = st
}

func (t *ingestionTask) complete(result models.IngestionResult, summary string) {
	t.once.Do(func() {
		t.mu.Lock()
		t.result = result
		t.summary = summary
		if result.State != "" {
			t.state = result.State
		}
		t.finishedAt = time.Now()
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *ingestionTask) finished(now time.Time, ttl time.Duration) bool {
	select {
	case <-t.done:
	default:
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.finishedAt) > ttl
}

func (t *ingestionTask) status() models.IngestionStatus {
	st := models.IngestionStatus{Handle: t.handle, Tenant: t.tenant}
	select {
	case <-t.done:
		st.Done = true
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st.State = t.state
	if st.Done {
		result := t.result
		st.Result = &result
		st.Summary = t.summary
	}
	return st
}
