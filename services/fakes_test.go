package services

import (
	"context"
	"errors"
	"sync"

	"github/itish2003/tenantrag/models"
)

type fakeLLM struct {
	mu       sync.Mutex
	generate func(systemPrompt, prompt string) (string, error)
	prompts  []string
	systems  []string
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Generate(_ context.Context, systemPrompt, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, systemPrompt)
	f.mu.Unlock()
	if f.generate != nil {
		return f.generate(systemPrompt, prompt)
	}
	return "ok", nil
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeExtractor struct {
	extract func(ctx context.Context, inputDir, outputDir string) ([]models.Chunk, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, inputDir, outputDir string) ([]models.Chunk, error) {
	return f.extract(ctx, inputDir, outputDir)
}

type fakeParser struct {
	parse func(path string) (*ParsedDocument, error)
}

func (f *fakeParser) SupportedExtensions() []string { return []string{".pdf", ".txt", ".md"} }

func (f *fakeParser) Parse(_ context.Context, path string) (*ParsedDocument, error) {
	return f.parse(path)
}

// brokenEmbedder fails every call.
type brokenEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (b *brokenEmbedder) Model() string { return "nomic-embed-text" }

func (b *brokenEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return nil, errors.New("ollama returned non-200 status: 404")
}
