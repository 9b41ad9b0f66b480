// Package embedding provides vector embedding generation for semantic search.
// Supports multiple backends: a local feature-hashing engine, Ollama (local
// server) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"

	"qanerd/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates embeddings for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for embedding engines that support
// health checks.
type HealthChecker interface {
	// HealthCheck verifies the embedding service is reachable.
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "hash", "ollama" or "genai"
	Provider string `json:"provider"`

	// Hash engine dimensionality. Default: 512
	Dimensions int `json:"dimensions"`

	// Ollama Configuration
	OllamaEndpoint string `json:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `json:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI Configuration
	GenAIAPIKey string `json:"genai_api_key"`
	GenAIModel  string `json:"genai_model"` // Default: "gemini-embedding-001"

	// TaskType for GenAI when no purpose-specific type applies.
	TaskType string `json:"task_type"`

	// Ollama model dimensionality; 0 learns it from the first embedding.
	OllamaDimensions int `json:"ollama_dimensions"`

	// CacheSize > 0 wraps the engine in an LRU cache of that many entries.
	CacheSize int `json:"cache_size"`

	// Concepts feeds the hash engine's lexicon: concept name -> words.
	Concepts map[string][]string `json:"concepts,omitempty"`
}

// DefaultConcepts is the built-in hash engine lexicon. It groups everyday
// wording of manual-test outcomes with the feature and risk they point at.
func DefaultConcepts() map[string][]string {
	return map[string][]string{
		"authentication": {"login", "logon", "signin", "logout", "password", "passcode", "credential", "auth", "session", "2fa", "mfa"},
		"validation":     {"invalid", "validate", "wrong", "incorrect", "reject", "rejected", "error", "fail", "fails", "failure", "malformed", "denied"},
		"security":       {"password", "token", "permission", "xss", "csrf", "leak", "exposed"},
		"performance":    {"slow", "latency", "timeout", "lag", "hang"},
		"signup":         {"signup", "register", "registration", "onboarding"},
		"cart":           {"cart", "basket", "checkout"},
		"navigation":     {"header", "menu", "nav", "navigation", "breadcrumb"},
	}
}

// DefaultConfig returns sensible defaults. The hash engine needs no service.
func DefaultConfig() Config {
	return Config{
		Provider:       "hash",
		Dimensions:     DefaultHashDimensions,
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "SEMANTIC_SIMILARITY",
		CacheSize:      1024,
		Concepts:       DefaultConcepts(),
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)

	var engine EmbeddingEngine
	var err error

	switch cfg.Provider {
	case "hash", "":
		engine = NewConceptHashEngine(cfg.Dimensions, cfg.Concepts)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.OllamaDimensions)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'hash', 'ollama' or 'genai')", cfg.Provider)
	}
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	if cfg.CacheSize > 0 {
		cached, cerr := NewCachedEngine(engine, cfg.CacheSize)
		if cerr != nil {
			return nil, cerr
		}
		engine = cached
	}

	logging.Embedding("Embedding engine created: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// ClampScore clamps a cosine value into [0,1].
func ClampScore(cos float64) float64 {
	switch {
	case math.IsNaN(cos) || cos < 0:
		return 0
	case cos > 1:
		return 1
	default:
		return cos
	}
}
