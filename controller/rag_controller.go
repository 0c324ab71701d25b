package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ternarybob/arbor"

	"github/itish2003/tenantrag/models"
	"github/itish2003/tenantrag/store"
)

// TenantHeader carries the tenant id of a request.
const TenantHeader = "X-Tenant-ID"

// Coordinator is the part of the session service the HTTP layer drives.
type Coordinator interface {
	BeginIngestion(tenant models.TenantID) (string, error)
	PollIngestion(handle string) (models.IngestionStatus, error)
	// ClaimUploads keeps ingestion from starting until release is called.
	ClaimUploads(tenant models.TenantID) (release func(), err error)
	Ask(ctx context.Context, tenant models.TenantID, query string, history []models.ConversationTurn) models.Answer
	SummarizeBatch(ctx context.Context, tenant models.TenantID, chunkTexts []string) (string, error)
}

// Uploader stores uploaded files in a tenant's input workspace.
type Uploader interface {
	SaveUpload(tenant models.TenantID, filename string, src io.Reader) (string, error)
	PendingUploads(tenant models.TenantID) ([]string, error)
}

// RAGController handles the HTTP requests for our RAG API.
type RAGController struct {
	coordinator Coordinator
	documents   store.TenantAdmin
	collection  string
	uploads     Uploader
	sessions    *SessionStore
	logger      arbor.ILogger
}

// NewRAGController is called from main.go to inject the service dependencies.
func NewRAGController(coordinator Coordinator, documents store.TenantAdmin, collection string, uploads Uploader, sessions *SessionStore, logger arbor.ILogger) *RAGController {
	return &RAGController{
		coordinator: coordinator,
		documents:   documents,
		collection:  collection,
		uploads:     uploads,
		sessions:    sessions,
		logger:      logger,
	}
}

// RegisterRoutes mounts every endpoint on the router.
func (c *RAGController) RegisterRoutes(router gin.IRouter) {
	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/documents", c.UploadDocuments)
		apiV1.GET("/documents", c.GetDocuments)
		apiV1.DELETE("/documents", c.DeleteDocuments)
		apiV1.GET("/uploads", c.PendingUploads)
		apiV1.POST("/ingestions", c.BeginIngestion)
		apiV1.GET("/ingestions/:handle", c.PollIngestion)
		apiV1.POST("/query", c.QueryRAG)
		apiV1.POST("/summary", c.Summarize)
	}
}

// tenantFrom reads the tenant from the header or the query string.
func tenantFrom(ctx *gin.Context) (models.TenantID, error) {
	raw := ctx.GetHeader(TenantHeader)
	if raw == "" {
		raw = ctx.Query("tenant")
	}
	return models.ParseTenantID(raw)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidTenant), errors.Is(err, models.ErrUnsupportedProperty), errors.Is(err, models.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownIngestion):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIngestionInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrStoreFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (c *RAGController) fail(ctx *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.logger.Error().Str("path", ctx.FullPath()).Err(err).Msg(msg)
		ctx.JSON(status, gin.H{"error": msg})
		return
	}
	ctx.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}

// UploadDocuments is the Gin handler for POST /api/v1/documents. Files come
// in the multipart field "files".
func (c *RAGController) UploadDocuments(ctx *gin.Context) {
	tenant, err := tenantFrom(ctx)
	if err != nil {
		c.fail(ctx, err, "Invalid tenant")
		return
	}
	release, err := c.coordinator.ClaimUploads(tenant)
	if err != nil {
		c.fail(ctx, err, "Uploads are closed while ingestion runs")
		return
	}
	defer release()

	form, err := ctx.MultipartForm()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form: " + err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return
	}

	stored := make([]string, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read upload " + fh.Filename})
			return
		}
		name, err := c.uploads.SaveUpload(tenant, fh.Filename, src)
		src.Close()
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		stored = append(stored, name)
	}

	c.logger.Info().Str("tenant", tenant.String()).Strs("files", stored).Msg("Stored uploads")
	ctx.JSON(http.StatusCreated, models.UploadResponse{Tenant: tenant, Files: stored})
}

// PendingUploads is the Gin handler for GET /api/v1/uploads.
func (c *RAGController) PendingUploads(ctx *gin.Context) {
	tenant, err := tenantFrom(ctx)
	if err != nil {
		c.fail(ctx, err, "Invalid tenant")
		return
	}
	names, err := c.uploads.PendingUploads(tenant)
	if err != nil {
		c.fail(ctx, err, "Failed to list uploads")
		return
	}
	ctx.JSON(http.StatusOK, models.UploadResponse{Tenant: tenant, Files: names})
}

// BeginIngestion is the Gin handler for POST /api/v1/ingestions.
func (c *RAGController) BeginIngestion(ctx *gin.Context) {
	tenant, err := tenantFrom(ctx)
	if err != nil {
		c.fail(ctx, err, "Invalid tenant")
		return
	}
	handle, err := c.coordinator.BeginIngestion(tenant)
	if err != nil {
		c.fail(ctx, err, "Failed to start ingestion")
		return
	}
	ctx.JSON(http.StatusAccepted, models.BeginIngestionResponse{Handle: handle, Tenant: tenant})
}

// PollIngestion is the Gin handler for GET /api/v1/ingestions/:handle.
func (c *RAGController) PollIngestion(ctx *gin.Context) {
	status, err := c.coordinator.PollIngestion(ctx.Param("handle"))
	if err != nil {
		c.fail(ctx, err, "Failed to poll ingestion")
		return
	}
	ctx.JSON(http.StatusOK, status)
}

// QueryRAG is the Gin handler for the POST /api/v1/query endpoint.
func (c *RAGController) QueryRAG(ctx *gin.Context) {
	var req models.QueryTextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	tenant, err := tenantFrom(ctx)
	if err != nil {
		c.fail(ctx, err, "Invalid tenant")
		return
	}

	sessionID, history := c.sessions.Resolve(req.SessionID, tenant)
	answer := c.coordinator.Ask(ctx.Request.Context(), tenant, req.Query, history)
	c.sessions.Append(sessionID,
		models.ConversationTurn{Role: models.RoleUser, Content: req.Query},
		models.ConversationTurn{Role: models.RoleAssistant, Content: answer.Text},
	)

	ctx.JSON(http.StatusOK, models.QueryRAGResponse{
		Answer:     answer.Text,
		SourceDocs: answer.Sources,
		SessionID:  sessionID,
	})
}

// Summarize is the Gin handler for POST /api/v1/summary.
func (c *RAGController) Summarize(ctx *gin.Context) {
	var req models.SummaryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	tenant, err := tenantFrom(ctx)
	if err != nil {
		c.fail(ctx, err, "Invalid tenant")
		return
	}
	summary, err := c.coordinator.SummarizeBatch(ctx.Request.Context(), tenant, req.Texts)
	if err != nil {
		c.fail(ctx, err, "Failed to summarize")
		return
	}
	ctx.JSON(http.StatusOK, models.SummaryResponse{Summary: summary})
}

func filenamesFrom(ctx *gin.Context) []string {
	var names []string
	for _, v := range ctx.QueryArray("filename") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// GetDocuments is the Gin handler for GET /api/v1/documents?filename=...
func (c *RAGController) GetDocuments(ctx *gin.Context) {
	tenant, err := tenantFrom(ctx)
	if err != nil {
		c.fail(ctx, err, "Invalid tenant")
		return
	}
	names := filenamesFrom(ctx)
	if len(names) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "At least one filename is required"})
		return
	}
	docs, err := store.FetchByProperty(ctx.Request.Context(), c.documents, c.collection, tenant, store.PropertyFilename, names)
	if err != nil {
		c.fail(ctx, err, "Failed to retrieve documents")
		return
	}
	ctx.JSON(http.StatusOK, models.DocumentsResponse{Tenant: tenant, Count: len(docs), Documents: docs})
}

// DeleteDocuments is the Gin handler for DELETE /api/v1/documents?filename=...
func (c *RAGController) DeleteDocuments(ctx *gin.Context) {
	tenant, err := tenantFrom(ctx)
	if err != nil {
		c.fail(ctx, err, "Invalid tenant")
		return
	}
	names := filenamesFrom(ctx)
	if len(names) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "At least one filename is required"})
		return
	}
	deleted, err := store.DeleteByProperty(ctx.Request.Context(), c.documents, c.collection, tenant, store.PropertyFilename, names)
	if err != nil {
		c.fail(ctx, err, "Failed to delete documents")
		return
	}
	ctx.JSON(http.StatusOK, models.DeleteDocumentsResponse{Tenant: tenant, Deleted: deleted})
}
