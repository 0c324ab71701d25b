package services

import (
	"context"
	"fmt"
	"strings"

	"github/itish2003/tenantrag/common"
	"github/itish2003/tenantrag/models"
	"github/itish2003/tenantrag/store"

	"github.com/ternarybob/arbor"
)

const noContextNotice = "No matching context was found in the user's documents."

var errEmptyQuery = fmt.Errorf("%w: query is blank", models.ErrEmptyInput)

// RAGService answers questions from a tenant's indexed documents and
// summarises chunk batches.
type RAGService interface {
	// Answer retrieves the tenant's closest chunks for query and asks the
	// language model to answer from them. history holds the turns before
	// query; it is only read.
	Answer(ctx context.Context, tenant models.TenantID, query string, history []models.ConversationTurn) (*models.Answer, error)
	// Summarize asks the language model for a short summary of chunkTexts.
	Summarize(ctx context.Context, tenant models.TenantID, chunkTexts []string) (string, error)
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	store            store.TenantAdmin
	collection       string
	llm              LLMProvider
	topK             int
	historyExchanges int
	logger           arbor.ILogger
}

// NewRAGService creates a new RAG service instance
func NewRAGService(gw store.TenantAdmin, collection string, llm LLMProvider, cfg common.RetrievalConfig, logger arbor.ILogger) RAGService {
	return &ragServiceImpl{
		store:            gw,
		collection:       collection,
		llm:              llm,
		topK:             cfg.TopK,
		historyExchanges: cfg.HistoryExchanges,
		logger:           logger,
	}
}

func (r *ragServiceImpl) Answer(ctx context.Context, tenant models.TenantID, query string, history []models.ConversationTurn) (*models.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errEmptyQuery
	}

	hits, err := r.retrieve(ctx, tenant, query)
	if err != nil {
		// An unreachable index is answered like an empty one.
		r.logger.Warn().Str("tenant", tenant.String()).Err(err).Msg("Retrieval failed, answering without context")
		hits = nil
	}

	prompt := BuildAnswerPrompt(query, RecentHistory(history, query, r.historyExchanges), hits)
	r.logger.Debug().Str("tenant", tenant.String()).Int("context_chunks", len(hits)).Int("prompt_chars", len(prompt)).Msg("Sending answer prompt")

	text, err := r.llm.Generate(ctx, GetSystemPrompt(ModeAnswer), prompt)
	if err != nil {
		return nil, fmt.Errorf("could not generate answer with %s: %w", r.llm.Name(), err)
	}
	return &models.Answer{Text: text, Sources: hits}, nil
}

func (r *ragServiceImpl) Summarize(ctx context.Context, tenant models.TenantID, chunkTexts []string) (string, error) {
	texts := make([]string, 0, len(chunkTexts))
	for _, t := range chunkTexts {
		if strings.TrimSpace(t) != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("%w: nothing to summarize", models.ErrEmptyInput)
	}

	r.logger.Info().Str("tenant", tenant.String()).Int("chunks", len(texts)).Msg("Summarizing chunk batch")
	summary, err := r.llm.Generate(ctx, GetSystemPrompt(ModeSummary), BuildSummaryPrompt(texts))
	if err != nil {
		return "", fmt.Errorf("could not generate summary with %s: %w", r.llm.Name(), err)
	}
	return summary, nil
}

func (r *ragServiceImpl) retrieve(ctx context.Context, tenant models.TenantID, query string) ([]models.RetrievedChunk, error) {
	handle, err := r.store.Tenant(ctx, r.collection, tenant)
	if err != nil {
		return nil, err
	}
	hits, err := handle.Query(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	r.logger.Info().Str("tenant", tenant.String()).Int("hits", len(hits)).Msg("Retrieved context")
	return hits, nil
}

// RecentHistory returns at most the last 2*exchanges turns that precede the
// in-flight query. A trailing user turn equal to query is treated as the
// in-flight turn and dropped. The input slice is never modified.
func RecentHistory(history []models.ConversationTurn, query string, exchanges int) []models.ConversationTurn {
	if exchanges <= 0 || len(history) == 0 {
		return nil
	}
	end := len(history)
	last := history[end-1]
	if last.Role == models.RoleUser && strings.TrimSpace(last.Content) == strings.TrimSpace(query) {
		end--
	}
	start := max(end-2*exchanges, 0)
	out := make([]models.ConversationTurn, end-start)
	copy(out, history[start:end])
	return out
}

// BuildAnswerPrompt renders the query, the conversation window and the
// retrieved context, keeping both lists in the order given.
func BuildAnswerPrompt(query string, history []models.ConversationTurn, hits []models.RetrievedChunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n", query)
	sb.WriteString("----------\n")
	sb.WriteString("Previous Conversation:\n")
	for _, turn := range history {
		fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
	}
	sb.WriteString("\n----------\n")

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}
	if len(texts) == 0 {
		texts = append(texts, noContextNotice)
	}
	writeContextBlock(&sb, texts)
	return sb.String()
}

// BuildSummaryPrompt wraps chunk texts in the context delimiters.
func BuildSummaryPrompt(texts []string) string {
	var sb strings.Builder
	writeContextBlock(&sb, texts)
	return sb.String()
}

func writeContextBlock(sb *strings.Builder, texts []string) {
	sb.WriteString("<Context Starts>:\n")
	sb.WriteString(strings.Join(texts, "\n\n"))
	sb.WriteString("\n</Context Ends>")
}
