package store

import (
	"context"
	"fmt"
)

// MockEmbeddingEngine implements embedding.EmbeddingEngine for testing.
type MockEmbeddingEngine struct {
	EmbedFunc         func(ctx context.Context, text string) ([]float32, error)
	EmbedWithTaskFunc func(ctx context.Context, text string, taskType string) ([]float32, error)
	DimensionsFunc    func() int
	NameFunc          func() string
	HealthCheckFunc   func(ctx context.Context) error
}

func (m *MockEmbeddingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	// Return a dummy vector of length 4 by default
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (m *MockEmbeddingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

func (m *MockEmbeddingEngine) Dimensions() int {
	if m.DimensionsFunc != nil {
		return m.DimensionsFunc()
	}
	return 4
}

func (m *MockEmbeddingEngine) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock-embedding-engine"
}

func (m *MockEmbeddingEngine) EmbedWithTask(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.EmbedWithTaskFunc != nil {
		return m.EmbedWithTaskFunc(ctx, text, taskType)
	}
	return m.Embed(ctx, text)
}

func (m *MockEmbeddingEngine) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

// lookupEngine returns fixed vectors per text and fails for unknown text.
func lookupEngine(vectors map[string][]float32) *MockEmbeddingEngine {
	return &MockEmbeddingEngine{
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			if v, ok := vectors[text]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("no vector for %q", text)
		},
		DimensionsFunc: func() int { return 3 },
	}
}
