package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github/itish2003/tenantrag/common"
	"github/itish2003/tenantrag/embedding"
	"github/itish2003/tenantrag/models"
	"github/itish2003/tenantrag/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func turns(n int) []models.ConversationTurn {
	out := make([]models.ConversationTurn, n)
	for i := range out {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out[i] = models.ConversationTurn{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}
	return out
}

func TestRecentHistoryBounds(t *testing.T) {
	history := turns(10)

	got := RecentHistory(history, "next question", 3)
	require.Len(t, got, 6)
	assert.Equal(t, "turn 4", got[0].Content)
	assert.Equal(t, "turn 9", got[5].Content)

	assert.Len(t, RecentHistory(turns(3), "q", 3), 3)
	assert.Nil(t, RecentHistory(history, "q", 0))
	assert.Nil(t, RecentHistory(nil, "q", 3))
}

func TestRecentHistoryDropsInFlightTurn(t *testing.T) {
	history := append(turns(8), models.ConversationTurn{Role: models.RoleUser, Content: "What changed?"})

	got := RecentHistory(history, "What changed?", 3)
	require.Len(t, got, 6)
	assert.Equal(t, "turn 7", got[5].Content)
	// The caller's slice is untouched.
	assert.Len(t, history, 9)
}

func TestBuildAnswerPromptLayout(t *testing.T) {
	prompt := BuildAnswerPrompt("What is X?",
		[]models.ConversationTurn{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
		},
		[]models.RetrievedChunk{{Text: "X is a letter."}, {Text: "X follows W."}},
	)

	assert.True(t, strings.HasPrefix(prompt, "Query: What is X?\n"))
	assert.Contains(t, prompt, "Previous Conversation:\nuser: hi\nassistant: hello\n")
	assert.Contains(t, prompt, "<Context Starts>:\nX is a letter.\n\nX follows W.\n</Context Ends>")
	assert.Less(t, strings.Index(prompt, "X is a letter."), strings.Index(prompt, "X follows W."))
}

func TestBuildAnswerPromptWithoutContext(t *testing.T) {
	prompt := BuildAnswerPrompt("anything?", nil, nil)
	assert.Contains(t, prompt, noContextNotice)
	assert.Contains(t, prompt, "</Context Ends>")
}

func TestBuildSummaryPrompt(t *testing.T) {
	assert.Equal(t, "<Context Starts>:\na\n\nb\n</Context Ends>", BuildSummaryPrompt([]string{"a", "b"}))
}

func newTestRAG(t *testing.T, llm LLMProvider) (RAGService, *store.MemoryGateway) {
	t.Helper()
	logger := arbor.NewLogger()
	gw := store.NewMemoryGateway(embedding.NewHashEmbedder(embedding.DefaultHashDimension), 50, logger)
	require.NoError(t, gw.EnsureCollection(context.Background(), store.DefaultCollectionConfig("Documents", "hash-512")))
	rag := NewRAGService(gw, "Documents", llm, common.RetrievalConfig{TopK: 5, HistoryExchanges: 3}, logger)
	return rag, gw
}

func TestAnswerUsesTenantContext(t *testing.T) {
	llm := &fakeLLM{}
	rag, gw := newTestRAG(t, llm)
	ctx := context.Background()

	_, err := store.Upload(ctx, gw, "Documents", "acme", []models.Chunk{
		{Text: "Quarterly revenue rose 5%.", Filename: "report.pdf", SourcePosition: models.IntPtr(0)},
		{Text: "Headcount grew to 120.", Filename: "report.pdf", SourcePosition: models.IntPtr(1)},
	})
	require.NoError(t, err)

	answer, err := rag.Answer(ctx, "acme", "What happened to headcount?", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "Headcount grew to 120.", answer.Sources[0].Text)
	assert.Contains(t, llm.lastPrompt(), "Headcount grew to 120.")
	assert.Equal(t, GetSystemPrompt(ModeAnswer), llm.systems[0])

	other, err := rag.Answer(ctx, "other-tenant", "What happened to headcount?", nil)
	require.NoError(t, err)
	assert.Empty(t, other.Sources)
	assert.NotContains(t, llm.lastPrompt(), "Headcount grew to 120.")
	assert.Contains(t, llm.lastPrompt(), noContextNotice)
}

func TestAnswerRejectsEmptyQuery(t *testing.T) {
	rag, _ := newTestRAG(t, &fakeLLM{})
	_, err := rag.Answer(context.Background(), "acme", "   ", nil)
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestAnswerPropagatesModelErrors(t *testing.T) {
	llm := &fakeLLM{generate: func(string, string) (string, error) { return "", errors.New("rate limited") }}
	rag, _ := newTestRAG(t, llm)

	_, err := rag.Answer(context.Background(), "acme", "anything", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestSummarize(t *testing.T) {
	llm := &fakeLLM{generate: func(system, prompt string) (string, error) {
		return "short summary", nil
	}}
	rag, _ := newTestRAG(t, llm)

	summary, err := rag.Summarize(context.Background(), "acme", []string{"first chunk", " ", "second chunk"})
	require.NoError(t, err)
	assert.Equal(t, "short summary", summary)
	assert.Equal(t, GetSystemPrompt(ModeSummary), llm.systems[0])
	assert.Equal(t, "<Context Starts>:\nfirst chunk\n\nsecond chunk\n</Context Ends>", llm.lastPrompt())

	_, err = rag.Summarize(context.Background(), "acme", nil)
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestSummarizeBlankTextsIsEmptyInput(t *testing.T) {
	llm := &fakeLLM{}
	rag, _ := newTestRAG(t, llm)

	_, err := rag.Summarize(context.Background(), "acme", []string{"   ", "\n\t"})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
	assert.Empty(t, llm.prompts)
}
