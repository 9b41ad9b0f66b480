package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qanerd/internal/embedding"
	"qanerd/internal/planner"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "OLLAMA_HOST", "QANERD_DB", "QANERD_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "qanerd", cfg.Name)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 0.5, cfg.Planner.RelevanceThreshold)
	assert.Equal(t, 3, cfg.Planner.DefaultK)
	assert.NotEmpty(t, cfg.Planner.Features)
	assert.NotEmpty(t, cfg.Planner.Risks)
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".qanerd", "config.yaml")

	cfg := DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.OllamaModel = "nomic-embed-text"
	cfg.Planner.RelevanceThreshold = 0.7
	cfg.Server.Addr = ":9000"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", loaded.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", loaded.Embedding.OllamaModel)
	assert.Equal(t, 0.7, loaded.Planner.RelevanceThreshold)
	assert.Equal(t, ":9000", loaded.Server.Addr)
	assert.Equal(t, cfg.Planner.Features, loaded.Planner.Features)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  relevance_threshold: 0.25\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Planner.RelevanceThreshold)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 3, cfg.Planner.DefaultK)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("OLLAMA_HOST", "http://ollama:11434")
	t.Setenv("QANERD_DB", "/tmp/x.db")
	t.Setenv("QANERD_ADDR", ":7000")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "gem-key", cfg.Embedding.GenAIAPIKey)
	assert.Equal(t, "http://ollama:11434", cfg.Embedding.OllamaEndpoint)
	assert.Equal(t, "/tmp/x.db", cfg.Store.DatabasePath)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestEnvOverrides_EmptyValuesIgnored(t *testing.T) {
	clearEnv(t)

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "bert" }, "invalid embedding provider"},
		{"genai without key", func(c *Config) { c.Embedding.Provider = "genai" }, "requires an API key"},
		{"threshold above one", func(c *Config) { c.Planner.RelevanceThreshold = 1.5 }, "relevance_threshold"},
		{"threshold below zero", func(c *Config) { c.Planner.RelevanceThreshold = -0.1 }, "relevance_threshold"},
		{"negative k", func(c *Config) { c.Planner.DefaultK = -1 }, "default_k"},
		{"no database", func(c *Config) { c.Store.DatabasePath = "" }, "database_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetQueryTimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.GetQueryTimeout())

	cfg.Store.QueryTimeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.GetQueryTimeout())

	cfg.Store.QueryTimeout = "soon"
	assert.Equal(t, 30*time.Second, cfg.GetQueryTimeout())
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/ws", ".qanerd", "intents.db"), ResolvePath("/ws", filepath.Join(".qanerd", "intents.db")))
	assert.Equal(t, "/abs/db", ResolvePath("/ws", "/abs/db"))
	assert.Equal(t, ":memory:", ResolvePath("/ws", ":memory:"))
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.GenAIAPIKey = "k"
	cfg.Logging.DebugMode = true

	ec := cfg.EmbeddingEngineConfig()
	assert.Equal(t, "hash", ec.Provider)
	assert.Equal(t, "k", ec.GenAIAPIKey)
	assert.Equal(t, cfg.Embedding.CacheSize, ec.CacheSize)

	pc := cfg.PlannerConfig()
	assert.Equal(t, cfg.Planner.RelevanceThreshold, pc.RelevanceThreshold)
	assert.Len(t, pc.Features, len(cfg.Planner.Features))

	ls := cfg.LoggingSettings()
	assert.True(t, ls.DebugMode)
	assert.Equal(t, "info", ls.Level)
}

func TestEmbeddingEngineConfig_MergesConcepts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Concepts = map[string][]string{"payments": {"invoice"}}
	cfg.Planner.Features = append(cfg.Planner.Features, planner.Term{Name: "Search", Keywords: []string{"query"}})

	ec := cfg.EmbeddingEngineConfig()
	assert.Contains(t, ec.Concepts["authentication"], "login", "built-in lexicon")
	assert.Contains(t, ec.Concepts["authentication"], "credentials", "planner feature keywords")
	assert.Contains(t, ec.Concepts["validation"], "validate", "planner risk keywords")
	assert.Equal(t, []string{"invoice"}, ec.Concepts["payments"])
	assert.Equal(t, []string{"query"}, ec.Concepts["search"])

	// The conversion leaves the package defaults untouched.
	assert.NotContains(t, embedding.DefaultConcepts()["authentication"], "credentials")
}
