package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/port"
)

// OllamaChatStrategy builds chat clients for a local or hosted Ollama server.
type OllamaChatStrategy struct{}

func (OllamaChatStrategy) Supports(providerType string) bool {
	return strings.EqualFold(providerType, domain.ProviderOllama)
}

func (OllamaChatStrategy) CreateClient(cfg *domain.ProviderConfig) (port.ChatClient, error) {
	baseURL := normalizeOllamaBaseURL(cfg.BaseURL)
	slog.Info("creating Ollama chat client", "name", cfg.Name, "base_url", baseURL)
	return &ollamaClient{
		baseURL:      baseURL,
		token:        cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{},
	}, nil
}

// OllamaEmbeddingStrategy builds embedding clients for Ollama.
type OllamaEmbeddingStrategy struct{}

func (OllamaEmbeddingStrategy) Supports(providerType string) bool {
	return strings.EqualFold(providerType, domain.ProviderOllama)
}

func (OllamaEmbeddingStrategy) CreateEmbedding(cfg *domain.ProviderConfig) (port.EmbeddingClient, error) {
	baseURL := normalizeOllamaBaseURL(cfg.BaseURL)
	slog.Info("creating Ollama embedding client", "model", cfg.EmbeddingModel, "base_url", baseURL)
	return &ollamaClient{
		baseURL:    baseURL,
		token:      cfg.APIKey,
		embedModel: cfg.EmbeddingModel,
		httpClient: &http.Client{},
	}, nil
}

// ollamaClient talks the Ollama REST API: /api/chat (NDJSON when streaming)
// and /api/embed.
type ollamaClient struct {
	baseURL      string
	token        string
	defaultModel string
	embedModel   string
	httpClient   *http.Client
}

func (c *ollamaClient) Call(ctx context.Context, model string, messages []domain.Message) (string, error) {
	payload := map[string]interface{}{
		"model":    c.resolveModel(model),
		"messages": messages,
		"stream":   false,
	}

	body, err := c.post(ctx, "/api/chat", payload)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("ollama chat decode: %w", err)
	}
	return resp.Message.Content, nil
}

func (c *ollamaClient) Stream(ctx context.Context, model string, messages []domain.Message) (<-chan domain.StreamChunk, error) {
	payload := map[string]interface{}{
		"model":    c.resolveModel(model),
		"messages": messages,
		"stream":   true,
	}

	resp, err := c.request(ctx, "/api/chat", payload)
	if err != nil {
		return nil, fmt.Errorf("ollama stream: %w", err)
	}

	ch := make(chan domain.StreamChunk, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for decoder.More() {
			var chunk struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
				Done bool `json:"done"`
			}
			if err := decoder.Decode(&chunk); err != nil {
				ch <- domain.StreamChunk{Err: fmt.Errorf("ollama stream decode: %w", err)}
				return
			}
			if chunk.Message.Content != "" {
				ch <- domain.StreamChunk{Content: chunk.Message.Content}
			}
			if chunk.Done {
				return
			}
		}
	}()

	return ch, nil
}

func (c *ollamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response")
	}
	return vectors[0], nil
}

func (c *ollamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts)
}

func (c *ollamaClient) embed(ctx context.Context, input interface{}) ([][]float32, error) {
	payload := map[string]interface{}{
		"model": c.embedModel,
		"input": input,
	}

	body, err := c.post(ctx, "/api/embed", payload)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	return resp.Embeddings, nil
}

func (c *ollamaClient) resolveModel(model string) string {
	if model != "" {
		return model
	}
	return c.defaultModel
}

func (c *ollamaClient) request(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (c *ollamaClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	resp, err := c.request(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// normalizeOllamaBaseURL strips trailing slashes and an /api suffix.
func normalizeOllamaBaseURL(url string) string {
	normalized := strings.TrimRight(strings.TrimSpace(url), "/")
	normalized = strings.TrimSuffix(normalized, "/api")
	return normalized
}
