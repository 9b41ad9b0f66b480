package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"qanerd/internal/embedding"
	"qanerd/internal/logging"
	"qanerd/internal/planner"
)

// Config holds all qanerd configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Intent store (SQLite)
	Store StoreConfig `yaml:"store"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Regression planner
	Planner PlannerConfig `yaml:"planner"`

	// Manual-test ingestion
	Ingest IngestConfig `yaml:"ingest"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the intent store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	QueryTimeout string `yaml:"query_timeout"`
}

// EmbeddingConfig configures the vector embedding engine.
// Supports hash (offline), Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "hash", "ollama" or "genai"
	Provider string `yaml:"provider"`

	// Hash engine dimensionality
	Dimensions int `yaml:"dimensions"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint   string `yaml:"ollama_endpoint"`
	OllamaModel      string `yaml:"ollama_model"`
	OllamaDimensions int    `yaml:"ollama_dimensions,omitempty"` // 0 learns it from the server

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`

	// LRU cache entries; 0 disables caching
	CacheSize int `yaml:"cache_size"`

	// Extra hash engine concepts (concept -> words), merged with the
	// built-in lexicon and the planner catalogs
	Concepts map[string][]string `yaml:"concepts,omitempty"`
}

// PlannerConfig configures the regression planner.
type PlannerConfig struct {
	// Minimum similarity for a retrieved intent to be rerun (default: 0.5)
	RelevanceThreshold float64 `yaml:"relevance_threshold"`

	// Number of intents retrieved per change (default: 3)
	DefaultK int `yaml:"default_k"`

	// Known feature names and the words that mention them
	Features []planner.Term `yaml:"features"`

	// Known risk areas and the words that mention them
	Risks []planner.Term `yaml:"risks"`
}

// IngestConfig configures manual-test ingestion.
type IngestConfig struct {
	// Files or directories holding catalogs and manual-test markdown
	Paths []string `yaml:"paths"`

	// Files parsed concurrently (default: 4)
	Parallelism int `yaml:"parallelism"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	emb := embedding.DefaultConfig()
	plan := planner.DefaultConfig()
	return &Config{
		Name:    "qanerd",
		Version: "0.3.0",

		Store: StoreConfig{
			DatabasePath: filepath.Join(".qanerd", "intents.db"),
			QueryTimeout: "30s",
		},

		Embedding: EmbeddingConfig{
			Provider:       emb.Provider,
			Dimensions:     emb.Dimensions,
			OllamaEndpoint: emb.OllamaEndpoint,
			OllamaModel:    emb.OllamaModel,
			GenAIModel:     emb.GenAIModel,
			TaskType:       emb.TaskType,
			CacheSize:      emb.CacheSize,
		},

		Planner: PlannerConfig{
			RelevanceThreshold: plan.RelevanceThreshold,
			DefaultK:           3,
			Features:           plan.Features,
			Risks:              plan.Risks,
		},

		Ingest: IngestConfig{
			Paths:       []string{"manual-tests"},
			Parallelism: 4,
		},

		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the config path for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".qanerd", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// A .env file next to the working directory is loaded first so API keys can
// live outside the config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}
	if path := os.Getenv("QANERD_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if addr := os.Getenv("QANERD_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// ResolvePath makes a relative path absolute against the workspace.
func ResolvePath(workspace, p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// GetQueryTimeout returns the store query timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Store.QueryTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ValidProviders lists all supported embedding providers.
var ValidProviders = []string{"hash", "ollama", "genai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidProviders)
	}
	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("genai embedding provider requires an API key (set GEMINI_API_KEY)")
	}
	if c.Planner.RelevanceThreshold < 0 || c.Planner.RelevanceThreshold > 1 {
		return fmt.Errorf("planner.relevance_threshold must be within [0,1], got %v", c.Planner.RelevanceThreshold)
	}
	if c.Planner.DefaultK < 0 {
		return fmt.Errorf("planner.default_k must not be negative, got %d", c.Planner.DefaultK)
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	return nil
}

// EmbeddingEngineConfig converts to the embedding package's config.
// The hash engine lexicon combines the built-in concepts, embedding.concepts
// and every planner feature and risk term.
func (c *Config) EmbeddingEngineConfig() embedding.Config {
	concepts := embedding.DefaultConcepts()
	for name, words := range c.Embedding.Concepts {
		concepts[name] = append(concepts[name], words...)
	}
	for _, terms := range [][]planner.Term{c.Planner.Features, c.Planner.Risks} {
		for _, t := range terms {
			name := strings.ToLower(strings.TrimSpace(t.Name))
			if name == "" {
				continue
			}
			concepts[name] = append(concepts[name], t.Keywords...)
		}
	}

	return embedding.Config{
		Provider:         c.Embedding.Provider,
		Dimensions:       c.Embedding.Dimensions,
		OllamaEndpoint:   c.Embedding.OllamaEndpoint,
		OllamaModel:      c.Embedding.OllamaModel,
		OllamaDimensions: c.Embedding.OllamaDimensions,
		GenAIAPIKey:      c.Embedding.GenAIAPIKey,
		GenAIModel:       c.Embedding.GenAIModel,
		TaskType:         c.Embedding.TaskType,
		CacheSize:        c.Embedding.CacheSize,
		Concepts:         concepts,
	}
}

// PlannerConfig converts to the planner package's config.
func (c *Config) PlannerConfig() planner.Config {
	return planner.Config{
		RelevanceThreshold: c.Planner.RelevanceThreshold,
		Features:           c.Planner.Features,
		Risks:              c.Planner.Risks,
	}
}

// LoggingSettings converts to the logging package's settings.
func (c *Config) LoggingSettings() logging.Settings {
	return logging.Settings{
		DebugMode:  c.Logging.DebugMode,
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.JSONFormat,
		Categories: c.Logging.Categories,
	}
}
