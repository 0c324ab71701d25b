package embedding

import (
	"context"
	"fmt"
	"strings"

	"github/itish2003/tenantrag/common"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// Embedder turns text into vectors. Implementations return exactly one vector
// per input text, in input order.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the embedder selected in the configuration. The Gemini client is
// only needed for the gemini embedder and may be nil otherwise.
func New(cfg common.EmbedderConfig, geminiClient *genai.Client, logger arbor.ILogger) (Embedder, error) {
	switch strings.ToLower(cfg.Type) {
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, nil), nil
	case "gemini":
		if geminiClient == nil {
			return nil, fmt.Errorf("gemini embedder requires a Gemini client")
		}
		return NewGeminiEmbedder(geminiClient, cfg.Model), nil
	case "hash":
		logger.Warn().Msg("Using the local hashing embedder; retrieval quality is keyword level only")
		return NewHashEmbedder(DefaultHashDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder type %q", cfg.Type)
	}
}

func checkCount(model string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s returned %d embeddings for %d inputs", model, got, want)
	}
	return nil
}
