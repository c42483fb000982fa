package ai

import (
	"bufio"
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

// OpenAIChatStrategy builds chat clients for OpenAI and OpenAI-compatible
// services (GLM, DeepSeek, Gemini proxies, OneAPI and friends).
type OpenAIChatStrategy struct{}

func (OpenAIChatStrategy) Supports(providerType string) bool {
	switch strings.ToUpper(providerType) {
	case domain.ProviderOpenAI, domain.ProviderGLM, domain.ProviderDeepSeek, domain.ProviderGemini:
		return true
	}
	return false
}

func (OpenAIChatStrategy) CreateClient(cfg *domain.ProviderConfig) (port.ChatClient, error) {
	baseURL := normalizeOpenAIBaseURL(cfg.BaseURL)
	slog.Info("creating OpenAI-compatible chat client", "name", cfg.Name, "base_url", baseURL)
	return &openAIClient{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{},
	}, nil
}

// OpenAIEmbeddingStrategy builds embedding clients for the same family.
type OpenAIEmbeddingStrategy struct{}

func (OpenAIEmbeddingStrategy) Supports(providerType string) bool {
	switch strings.ToUpper(providerType) {
	case domain.ProviderOpenAI, domain.ProviderGLM, domain.ProviderDeepSeek:
		return true
	}
	return false
}

func (OpenAIEmbeddingStrategy) CreateEmbedding(cfg *domain.ProviderConfig) (port.EmbeddingClient, error) {
	baseURL := normalizeOpenAIBaseURL(cfg.BaseURL)
	slog.Info("creating OpenAI-compatible embedding client",
		"model", cfg.EmbeddingModel, "base_url", baseURL)
	return &openAIClient{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		embedModel:   cfg.EmbeddingModel,
		httpClient:   &http.Client{},
	}, nil
}

// openAIClient talks the OpenAI wire format: /chat/completions for chat
// (SSE when streaming) and /embeddings for vectors.
type openAIClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	embedModel   string
	httpClient   *http.Client
}

func (c *openAIClient) Call(ctx context.Context, model string, messages []domain.Message) (string, error) {
	payload := map[string]interface{}{
		"model":    c.resolveModel(model),
		"messages": messages,
		"stream":   false,
	}

	body, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("openai chat decode: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) Stream(ctx context.Context, model string, messages []domain.Message) (<-chan domain.StreamChunk, error) {
	payload := map[string]interface{}{
		"model":    c.resolveModel(model),
		"messages": messages,
		"stream":   true,
	}

	resp, err := c.request(ctx, "/chat/completions", payload)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	ch := make(chan domain.StreamChunk, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				ch <- domain.StreamChunk{Err: fmt.Errorf("openai stream decode: %w", err)}
				return
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				ch <- domain.StreamChunk{Content: chunk.Choices[0].Delta.Content}
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- domain.StreamChunk{Err: fmt.Errorf("openai stream: %w", err)}
		}
	}()

	return ch, nil
}

func (c *openAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	return vectors[0], nil
}

func (c *openAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"model": c.embedModel,
		"input": texts,
	}

	body, err := c.post(ctx, "/embeddings", payload)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openai embed decode: %w", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (c *openAIClient) resolveModel(model string) string {
	if model != "" {
		return model
	}
	return c.defaultModel
}

func (c *openAIClient) request(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (c *openAIClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	resp, err := c.request(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// normalizeOpenAIBaseURL strips a trailing slash and the path suffixes users
// commonly paste along with the base URL, so both
// https://api.example.com/v1 and https://api.example.com/v1/chat/completions
// work.
func normalizeOpenAIBaseURL(url string) string {
	normalized := strings.TrimSpace(url)

	lower := strings.ToLower(normalized)
	for _, suffix := range []string{"/chat/completions", "/embeddings"} {
		if strings.HasSuffix(lower, suffix) {
			normalized = normalized[:len(normalized)-len(suffix)]
			lower = strings.ToLower(normalized)
		}
	}

	return strings.TrimRight(normalized, "/")
}
