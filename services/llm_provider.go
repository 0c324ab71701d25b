package services

import (
	"context"
	"fmt"
	"strings"

	"github/itish2003/tenantrag/common"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"
)

// LLMProvider is a stateless chat completion: one system instruction, one
// user prompt, one text answer.
type LLMProvider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// NewLLMProvider builds the provider selected in the configuration. The
// Gemini client is shared with the embedder and only required for gemini.
func NewLLMProvider(cfg common.LLMConfig, geminiClient *genai.Client, logger arbor.ILogger) (LLMProvider, error) {
	switch cfg.Provider {
	case "gemini":
		if geminiClient == nil {
			return nil, fmt.Errorf("gemini provider requires a Gemini client")
		}
		return NewGeminiProvider(geminiClient, cfg), nil
	case "groq":
		return NewOpenAICompatProvider(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg)
	case "claude":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("claude provider requires ANTHROPIC_API_KEY")
		}
		return NewClaudeProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// GeminiProvider calls Gemini through the genai SDK.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewGeminiProvider(client *genai.Client, cfg common.LLMConfig) *GeminiProvider {
	return &GeminiProvider{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
	}
}

func (g *GeminiProvider) Name() string { return "gemini:" + g.model }

func (g *GeminiProvider) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}

	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from gemini")
	}
	return response.String(), nil
}

// OpenAICompatProvider talks to Groq or any other OpenAI-compatible chat
// endpoint through langchaingo.
type OpenAICompatProvider struct {
	llm         *openai.LLM
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenAICompatProvider(baseURL, apiKey string, cfg common.LLMConfig) (*OpenAICompatProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai-compatible provider requires an API key")
	}
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai-compatible client: %w", err)
	}
	return &OpenAICompatProvider{
		llm:         llm,
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *OpenAICompatProvider) Name() string { return "openai-compat:" + o.model }

func (o *OpenAICompatProvider) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := o.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(o.temperature),
		llms.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("no response generated from %s", o.model)
	}
	return resp.Choices[0].Content, nil
}

// ClaudeProvider calls the Anthropic Messages API.
type ClaudeProvider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewClaudeProvider builds the provider. Extra options are applied after the
// API key, for endpoint overrides.
func NewClaudeProvider(cfg common.LLMConfig, opts ...option.RequestOption) *ClaudeProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}, opts...)
	return &ClaudeProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   int64(cfg.MaxTokens),
	}
}

func (c *ClaudeProvider) Name() string { return "claude:" + c.model }

func (c *ClaudeProvider) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{{Text: systemPrompt}},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude api call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from claude")
	}
	return response.String(), nil
}
