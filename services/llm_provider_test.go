package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github/itish2003/tenantrag/common"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// recordingServer answers every request with a fixed JSON body and keeps the
// request bodies it saw.
type recordingServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
	paths  []string
}

func newRecordingServer(t *testing.T, status int, response string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.bodies = append(rs.bodies, string(body))
		rs.paths = append(rs.paths, r.URL.Path)
		rs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) lastBody() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.bodies) == 0 {
		return ""
	}
	return rs.bodies[len(rs.bodies)-1]
}

func testLLMConfig(model string) common.LLMConfig {
	return common.LLMConfig{Model: model, Temperature: 0.2, MaxTokens: 256}
}

func TestOpenAICompatProviderGenerate(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "llama-3.1-8b-instant",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Revenue rose 5%."}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)

	p, err := NewOpenAICompatProvider(srv.URL, "test-key", testLLMConfig("llama-3.1-8b-instant"))
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), GetSystemPrompt(ModeAnswer), "What happened to revenue?")
	require.NoError(t, err)
	assert.Equal(t, "Revenue rose 5%.", text)
	assert.Equal(t, "openai-compat:llama-3.1-8b-instant", p.Name())
	assert.Contains(t, srv.paths[0], "/chat/completions")
	assert.Contains(t, srv.lastBody(), "What happened to revenue?")
	assert.Contains(t, srv.lastBody(), `"system"`)
}

func TestOpenAICompatProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAICompatProvider("http://localhost", "", testLLMConfig("m"))
	assert.Error(t, err)
}

func TestOpenAICompatProviderServerError(t *testing.T) {
	srv := newRecordingServer(t, http.StatusUnauthorized, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)

	p, err := NewOpenAICompatProvider(srv.URL, "bad-key", testLLMConfig("m"))
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "system", "prompt")
	assert.ErrorContains(t, err, "chat completion failed")
}

func TestClaudeProviderGenerate(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-haiku-latest",
		"content": [{"type": "text", "text": "Headcount grew to 120."}],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 12, "output_tokens": 6}
	}`)

	cfg := testLLMConfig("claude-3-5-haiku-latest")
	cfg.AnthropicAPIKey = "test-key"
	p := NewClaudeProvider(cfg, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	text, err := p.Generate(context.Background(), GetSystemPrompt(ModeSummary), "Summarise the chunks")
	require.NoError(t, err)
	assert.Equal(t, "Headcount grew to 120.", text)
	assert.Contains(t, srv.paths[0], "/v1/messages")
	assert.Contains(t, srv.lastBody(), "Summarise the chunks")
	assert.Contains(t, srv.lastBody(), `"system"`)
}

func TestClaudeProviderEmptyContent(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{
		"id": "msg_2",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-haiku-latest",
		"content": [],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 1, "output_tokens": 0}
	}`)

	cfg := testLLMConfig("claude-3-5-haiku-latest")
	cfg.AnthropicAPIKey = "test-key"
	p := NewClaudeProvider(cfg, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	_, err := p.Generate(context.Background(), "system", "prompt")
	assert.ErrorContains(t, err, "no response generated")
}

func TestGeminiProviderGenerate(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "Quarterly "}, {"text": "summary."}]}, "finishReason": "STOP"}]
	}`)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	})
	require.NoError(t, err)

	p := NewGeminiProvider(client, testLLMConfig("gemini-2.0-flash"))
	text, err := p.Generate(context.Background(), GetSystemPrompt(ModeAnswer), "Ask about revenue")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly summary.", text)
	assert.Contains(t, srv.paths[0], "gemini-2.0-flash:generateContent")
	assert.Contains(t, srv.lastBody(), "Ask about revenue")
	assert.Contains(t, srv.lastBody(), "systemInstruction")
}

func TestGeminiProviderNoCandidates(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"candidates": []}`)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	})
	require.NoError(t, err)

	_, err = NewGeminiProvider(client, testLLMConfig("gemini-2.0-flash")).Generate(context.Background(), "system", "prompt")
	assert.ErrorContains(t, err, "no response generated")
}

func TestNewLLMProviderValidation(t *testing.T) {
	_, err := NewLLMProvider(common.LLMConfig{Provider: "gemini"}, nil, nil)
	assert.Error(t, err)
	_, err = NewLLMProvider(common.LLMConfig{Provider: "claude"}, nil, nil)
	assert.Error(t, err)
	_, err = NewLLMProvider(common.LLMConfig{Provider: "mystery"}, nil, nil)
	assert.Error(t, err)
}
