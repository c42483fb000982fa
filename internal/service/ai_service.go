package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/factory"
	"github.com/ragswitch/ragswitch/internal/port"
)

// ragSystemPrompt frames retrieved documents for the model. The model is
// told to answer as if it already knew the material.
const ragSystemPrompt = `Answer the user's question using the reference documents below.
Answer as if you already knew this information; do not mention the documents.
If the documents do not cover the question, say you are not sure.

Reference documents:
%s`

// AIService routes chat calls through the dynamic factories, optionally
// augmenting them with retrieved knowledge.
type AIService struct {
	chat      *factory.ChatFactory
	embedding *factory.EmbeddingFactory
	vectors   port.VectorRepository

	topK      int
	threshold float64
}

// NewAIService creates an AI service. topK and threshold gate retrieval for
// RAG calls.
func NewAIService(chat *factory.ChatFactory, embedding *factory.EmbeddingFactory, vectors port.VectorRepository, topK int, threshold float64) *AIService {
	if topK <= 0 {
		topK = 5
	}
	return &AIService{
		chat:      chat,
		embedding: embedding,
		vectors:   vectors,
		topK:      topK,
		threshold: threshold,
	}
}

// Generate sends one message and waits for the complete response. An empty
// model selects the active configuration's default model.
func (s *AIService) Generate(ctx context.Context, model, message string) (string, error) {
	client, err := s.chat.GetActiveClient(ctx)
	if err != nil {
		return "", err
	}
	return client.Call(ctx, model, []domain.Message{{Role: domain.RoleUser, Content: message}})
}

// GenerateStream sends one message and streams the response.
func (s *AIService) GenerateStream(ctx context.Context, model, message string) (<-chan domain.StreamChunk, error) {
	client, err := s.chat.GetActiveClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Stream(ctx, model, []domain.Message{{Role: domain.RoleUser, Content: message}})
}

// GenerateStreamRag streams a response augmented with documents retrieved
// from the knowledge bases named by tags. An empty tag list degrades to
// plain streaming; so does retrieval where no document clears the
// similarity threshold — a context-free system message is never injected.
func (s *AIService) GenerateStreamRag(ctx context.Context, model string, tags []string, message string) (<-chan domain.StreamChunk, error) {
	if len(tags) == 0 {
		return s.GenerateStream(ctx, model, message)
	}

	docs, err := s.retrieve(ctx, tags, message)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		slog.Info("no documents above similarity threshold, falling back to plain generation",
			"tags", tags)
		return s.GenerateStream(ctx, model, message)
	}

	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: fmt.Sprintf(ragSystemPrompt, strings.Join(contents, "\n"))},
		{Role: domain.RoleUser, Content: message},
	}

	client, err := s.chat.GetActiveClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Stream(ctx, model, messages)
}

// retrieve embeds the query and runs a tag-filtered similarity search.
// Tags combine as OR: a document matches when its knowledge tag equals any
// of them.
func (s *AIService) retrieve(ctx context.Context, tags []string, query string) ([]domain.SimilarDocument, error) {
	embedder, err := s.embedding.GetActiveClient(ctx)
	if err != nil {
		return nil, err
	}

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	docs, err := s.vectors.Search(ctx, vector, tags, s.topK, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return docs, nil
}
