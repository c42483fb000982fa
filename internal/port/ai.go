package port

import (
	"context"

	"github.com/ragswitch/ragswitch/internal/domain"
)

// ChatClient is the unified handle over one provider's chat API. An empty
// model means the configuration's default model.
type ChatClient interface {
	// Call sends the messages and waits for the complete response.
	Call(ctx context.Context, model string, messages []domain.Message) (string, error)

	// Stream sends the messages and returns a finite stream of response
	// fragments. The channel closes when the provider ends the turn; a
	// provider failure arrives as a chunk with Err set.
	Stream(ctx context.Context, model string, messages []domain.Message) (<-chan domain.StreamChunk, error)
}

// EmbeddingClient is the unified handle over one provider's embedding API.
type EmbeddingClient interface {
	// Embed generates a vector embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatStrategy turns a provider configuration into a chat client. One
// strategy per provider family; dispatch picks the first match,
// case-insensitively.
type ChatStrategy interface {
	Supports(providerType string) bool
	CreateClient(cfg *domain.ProviderConfig) (ChatClient, error)
}

// EmbeddingStrategy is the embedding counterpart of ChatStrategy.
type EmbeddingStrategy interface {
	Supports(providerType string) bool
	CreateEmbedding(cfg *domain.ProviderConfig) (EmbeddingClient, error)
}
