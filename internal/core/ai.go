package core

import "context"

// EmbeddingProvider wraps the external embedding service. Implementations
// return one fixed-dimension vector per input text, in input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates an answer from a system prompt and a user prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
