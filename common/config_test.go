package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	applyModelDefaults(cfg)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retrieval.HistoryExchanges)
	assert.Equal(t, "nomic-embed-text:v1.5", cfg.Embedder.Model)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 30, cfg.Store.TimeoutSec)
	assert.Equal(t, 60, cfg.Sessions.TTLMinutes)
	assert.Equal(t, 1000, cfg.Sessions.MaxSessions)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(cfg, envFrom(map[string]string{
		"STORE_BACKEND":       "memory",
		"LLM_PROVIDER":        "groq",
		"GROQ_API_KEY":        "gsk-test",
		"EMBEDDER":            "hash",
		"TOP_K":               "8",
		"HISTORY_EXCHANGES":   "2",
		"WATCH_UPLOADS":       "true",
		"CHROMA_TIMEOUT_SECS": "5",
		"SESSION_TTL_MINUTES": "15",
		"MAX_SESSIONS":        "50",
	}))
	require.NoError(t, err)
	applyModelDefaults(cfg)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(t, "hash-512", cfg.Embedder.Model)
	assert.Equal(t, "gsk-test", cfg.LLM.GroqAPIKey)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Retrieval.HistoryExchanges)
	assert.True(t, cfg.Workspace.WatchUploads)
	assert.Equal(t, 5, cfg.Store.TimeoutSec)
	assert.Equal(t, 15, cfg.Sessions.TTLMinutes)
	assert.Equal(t, 50, cfg.Sessions.MaxSessions)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(cfg, envFrom(map[string]string{"TOP_K": "many"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOP_K")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	applyModelDefaults(cfg)
	cfg.Store.Backend = "weaviate"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Store.Backend")
}

func TestValidateRejectsSharedWorkspace(t *testing.T) {
	cfg := DefaultConfig()
	applyModelDefaults(cfg)
	cfg.Workspace.OutputDir = cfg.Workspace.InputDir

	require.Error(t, cfg.Validate())
}

func TestLoadConfigReadsYAML(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "COLLECTION_NAME", "TOP_K", "HISTORY_EXCHANGES", "UPLOAD_BATCH_SIZE"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
store:
  backend: memory
  collection: Manuals
retrieval:
  top_k: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Manuals", cfg.Store.Collection)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Retrieval.HistoryExchanges)
	assert.Equal(t, 100, cfg.Store.BatchSize)
}
