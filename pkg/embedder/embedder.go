// Package embedder provides text embedding clients used by the semantic
// grounding stage to turn key phrases into vectors.
//
// The Client interface is the pipeline's EmbeddingProvider collaborator;
// the OpenAI implementation is the production default and tests substitute
// their own.
package embedder

import (
	"context"
)

// Client converts text into fixed-dimension vectors.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per text,
	// in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector width this client produces.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds settings shared by embedder implementations.
type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	BatchSize  int
}
