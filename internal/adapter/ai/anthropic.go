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

const anthropicVersion = "2023-06-01"

// AnthropicChatStrategy builds chat clients for the Anthropic messages API.
type AnthropicChatStrategy struct{}

func (AnthropicChatStrategy) Supports(providerType string) bool {
	return strings.EqualFold(providerType, domain.ProviderAnthropic)
}

func (AnthropicChatStrategy) CreateClient(cfg *domain.ProviderConfig) (port.ChatClient, error) {
	baseURL := normalizeAnthropicBaseURL(cfg.BaseURL)
	slog.Info("creating Anthropic chat client", "name", cfg.Name, "base_url", baseURL)
	return &anthropicClient{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{},
	}, nil
}

// anthropicClient talks the Anthropic messages API. System messages travel
// in the top-level system field, not the messages array.
type anthropicClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
}

func (c *anthropicClient) Call(ctx context.Context, model string, messages []domain.Message) (string, error) {
	body, err := c.post(ctx, c.buildPayload(model, messages, false))
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("anthropic chat decode: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic chat: empty response")
	}
	return resp.Content[0].Text, nil
}

func (c *anthropicClient) Stream(ctx context.Context, model string, messages []domain.Message) (<-chan domain.StreamChunk, error) {
	resp, err := c.request(ctx, c.buildPayload(model, messages, true))
	if err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
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

			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				ch <- domain.StreamChunk{Err: fmt.Errorf("anthropic stream decode: %w", err)}
				return
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text != "" {
					ch <- domain.StreamChunk{Content: event.Delta.Text}
				}
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- domain.StreamChunk{Err: fmt.Errorf("anthropic stream: %w", err)}
		}
	}()

	return ch, nil
}

func (c *anthropicClient) buildPayload(model string, messages []domain.Message, stream bool) map[string]interface{} {
	var (
		system string
		turns  []domain.Message
	)
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = m.Content
			continue
		}
		turns = append(turns, m)
	}

	if model == "" {
		model = c.defaultModel
	}
	payload := map[string]interface{}{
		"model":      model,
		"messages":   turns,
		"max_tokens": 4096,
		"stream":     stream,
	}
	if system != "" {
		payload["system"] = system
	}
	return payload
}

func (c *anthropicClient) request(ctx context.Context, payload interface{}) (*http.Response, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic API error (%d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (c *anthropicClient) post(ctx context.Context, payload interface{}) ([]byte, error) {
	resp, err := c.request(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// normalizeAnthropicBaseURL strips trailing slashes and a /v1/messages suffix.
func normalizeAnthropicBaseURL(url string) string {
	normalized := strings.TrimRight(strings.TrimSpace(url), "/")
	normalized = strings.TrimSuffix(normalized, "/v1/messages")
	return strings.TrimRight(normalized, "/")
}
