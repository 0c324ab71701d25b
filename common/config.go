package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=chroma memory"`
	URL        string `yaml:"url" validate:"required_if=Backend chroma"`
	APIKey     string `yaml:"api_key"`
	Database   string `yaml:"database" validate:"required"`
	Collection string `yaml:"collection" validate:"required"`
	BatchSize  int    `yaml:"batch_size" validate:"min=1"`
	TimeoutSec int    `yaml:"timeout_secs" validate:"min=1"`
}

// EmbedderConfig selects the embedding model used for chunks and queries.
type EmbedderConfig struct {
	Type      string `yaml:"type" validate:"oneof=ollama gemini hash"`
	Model     string `yaml:"model"`
	OllamaURL string `yaml:"ollama_url" validate:"required_if=Type ollama"`
}

// LLMConfig selects the chat model provider.
type LLMConfig struct {
	Provider        string  `yaml:"provider" validate:"oneof=gemini groq claude"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens       int     `yaml:"max_tokens" validate:"min=1"`
	GeminiAPIKey    string  `yaml:"-"`
	GroqAPIKey      string  `yaml:"-"`
	GroqBaseURL     string  `yaml:"groq_base_url"`
	AnthropicAPIKey string  `yaml:"-"`
}

// ParserConfig configures how uploaded documents are turned into markdown.
type ParserConfig struct {
	Type       string `yaml:"type" validate:"oneof=remote local"`
	URL        string `yaml:"url" validate:"required_if=Type remote"`
	APIKey     string `yaml:"-"`
	LicenseKey string `yaml:"-"`
	TimeoutSec int    `yaml:"timeout_secs" validate:"min=1"`
}

// WorkspaceConfig points at the per-tenant upload and intermediate directories.
type WorkspaceConfig struct {
	InputDir     string `yaml:"input_dir" validate:"required"`
	OutputDir    string `yaml:"output_dir" validate:"required,nefield=InputDir"`
	WatchUploads bool   `yaml:"watch_uploads"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" validate:"min=1"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"min=0,ltfield=ChunkSize"`
}

type RetrievalConfig struct {
	TopK             int `yaml:"top_k" validate:"min=1"`
	HistoryExchanges int `yaml:"history_exchanges" validate:"min=0"`
}

// SessionConfig bounds the in-memory chat sessions.
type SessionConfig struct {
	TTLMinutes  int `yaml:"ttl_minutes" validate:"min=1"`
	MaxSessions int `yaml:"max_sessions" validate:"min=1"`
}

type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

// Config is the root application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	LLM       LLMConfig       `yaml:"llm"`
	Parser    ParserConfig    `yaml:"parser"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns a configuration that runs against a local Chroma and
// Ollama with Gemini answering questions.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    "chroma",
			URL:        "http://localhost:8000",
			Database:   "rag",
			Collection: "Documents",
			BatchSize:  100,
			TimeoutSec: 30,
		},
		Embedder: EmbedderConfig{
			Type:      "ollama",
			OllamaURL: "http://localhost:11434",
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Temperature: 0.2,
			MaxTokens:   1024,
			GroqBaseURL: "https://api.groq.com/openai/v1",
		},
		Parser: ParserConfig{
			Type:       "local",
			TimeoutSec: 300,
		},
		Workspace: WorkspaceConfig{
			InputDir:  "data/input",
			OutputDir: "data/output",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    512,
			ChunkOverlap: 64,
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			HistoryExchanges: 3,
		},
		Sessions: SessionConfig{
			TTLMinutes:  60,
			MaxSessions: 1000,
		},
		Server:  ServerConfig{Port: "8080"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// a .env file and finally the process environment, in that order.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	// A missing .env is normal in containers; the environment is used as is.
	_ = godotenv.Load()

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyModelDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and flattens validator errors into one message.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str("STORE_BACKEND", &cfg.Store.Backend)
	str("CHROMA_URL", &cfg.Store.URL)
	str("CHROMA_API_KEY", &cfg.Store.APIKey)
	str("CHROMA_DATABASE", &cfg.Store.Database)
	str("COLLECTION_NAME", &cfg.Store.Collection)

	str("EMBEDDER", &cfg.Embedder.Type)
	str("EMBEDDING_MODEL", &cfg.Embedder.Model)
	str("OLLAMA_URL", &cfg.Embedder.OllamaURL)

	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("GEMINI_API_KEY", &cfg.LLM.GeminiAPIKey)
	str("GROQ_API_KEY", &cfg.LLM.GroqAPIKey)
	str("GROQ_BASE_URL", &cfg.LLM.GroqBaseURL)
	str("ANTHROPIC_API_KEY", &cfg.LLM.AnthropicAPIKey)

	str("PARSER", &cfg.Parser.Type)
	str("PARSER_URL", &cfg.Parser.URL)
	str("PARSER_API_KEY", &cfg.Parser.APIKey)
	str("UNIDOC_LICENSE_KEY", &cfg.Parser.LicenseKey)

	str("LOCAL_FILE_INPUT_DIR", &cfg.Workspace.InputDir)
	str("LOCAL_FILE_OUTPUT_DIR", &cfg.Workspace.OutputDir)
	if v, ok := lookup("WATCH_UPLOADS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid WATCH_UPLOADS %q: %w", v, err)
		}
		cfg.Workspace.WatchUploads = b
	}

	str("SERVER_PORT", &cfg.Server.Port)
	str("LOG_LEVEL", &cfg.Logging.Level)

	for key, dst := range map[string]*int{
		"TOP_K":               &cfg.Retrieval.TopK,
		"HISTORY_EXCHANGES":   &cfg.Retrieval.HistoryExchanges,
		"CHUNK_SIZE":          &cfg.Chunking.ChunkSize,
		"CHUNK_OVERLAP":       &cfg.Chunking.ChunkOverlap,
		"UPLOAD_BATCH_SIZE":   &cfg.Store.BatchSize,
		"CHROMA_TIMEOUT_SECS": &cfg.Store.TimeoutSec,
		"SESSION_TTL_MINUTES": &cfg.Sessions.TTLMinutes,
		"MAX_SESSIONS":        &cfg.Sessions.MaxSessions,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// applyModelDefaults fills in the model name of the selected provider when
// none was configured.
func applyModelDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "groq":
			cfg.LLM.Model = "llama-3.3-70b-versatile"
		case "claude":
			cfg.LLM.Model = "claude-sonnet-4-5"
		default:
			cfg.LLM.Model = "gemini-2.5-flash"
		}
	}
	if cfg.Embedder.Model == "" {
		switch cfg.Embedder.Type {
		case "gemini":
			cfg.Embedder.Model = "text-embedding-004"
		case "hash":
			cfg.Embedder.Model = "hash-512"
		default:
			cfg.Embedder.Model = "nomic-embed-text:v1.5"
		}
	}
}
