package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI EMBEDDING ENGINE
// =============================================================================

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEngine creates a new GenAI embedding engine.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{
		client:   client,
		model:    model,
		taskType: parseTaskType(taskType),
	}, nil
}

var knownTaskTypes = map[string]bool{
	"SEMANTIC_SIMILARITY": true,
	"RETRIEVAL_DOCUMENT":  true,
	"RETRIEVAL_QUERY":     true,
	"CLASSIFICATION":      true,
	"CLUSTERING":          true,
	"QUESTION_ANSWERING":  true,
	"FACT_VERIFICATION":   true,
}

// parseTaskType falls back to SEMANTIC_SIMILARITY for unknown task types.
func parseTaskType(taskType string) string {
	if knownTaskTypes[taskType] {
		return taskType
	}
	return "SEMANTIC_SIMILARITY"
}

// Embed generates an embedding for a single text with the configured task type.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, e.taskType)
}

// EmbedWithTask generates an embedding for a specific task type.
func (e *GenAIEngine) EmbedWithTask(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.embed(ctx, text, parseTaskType(taskType))
}

func (e *GenAIEngine) embed(ctx context.Context, text string, task string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, e.embedConfig(task))
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// genAIDimensions is requested explicitly; gemini-embedding-001 would
// otherwise return 3072 values.
const genAIDimensions = 768

func (e *GenAIEngine) embedConfig(task string) *genai.EmbedContentConfig {
	dims := int32(genAIDimensions)
	return &genai.EmbedContentConfig{
		TaskType:             task,
		OutputDimensionality: &dims,
	}
}

// EmbedBatch generates embeddings for multiple texts.
// GenAI has native batch support.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, e.embedConfig(e.taskType))
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// Dimensions returns the requested dimensionality.
func (e *GenAIEngine) Dimensions() int {
	return genAIDimensions
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
