package embedding

import (
	"context"
)

// =============================================================================
// TASK TYPE SELECTION
// =============================================================================

// Purpose describes what a piece of text is embedded for.
type Purpose string

const (
	PurposeDocument Purpose = "document" // Stored intent summaries
	PurposeQuery    Purpose = "query"    // Change descriptions and search text
)

// TaskEmbedder is implemented by engines whose embeddings depend on a task
// type (GenAI). Other engines ignore the purpose.
type TaskEmbedder interface {
	EmbedWithTask(ctx context.Context, text string, taskType string) ([]float32, error)
}

// SelectTaskType returns the GenAI task type for a purpose.
func SelectTaskType(purpose Purpose) string {
	switch purpose {
	case PurposeDocument:
		return "RETRIEVAL_DOCUMENT"
	case PurposeQuery:
		return "RETRIEVAL_QUERY"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}

// EmbedFor embeds text for a purpose, using the task-specific path when the
// engine supports one.
func EmbedFor(ctx context.Context, engine EmbeddingEngine, text string, purpose Purpose) ([]float32, error) {
	if te, ok := engine.(TaskEmbedder); ok {
		return te.EmbedWithTask(ctx, text, SelectTaskType(purpose))
	}
	return engine.Embed(ctx, text)
}
