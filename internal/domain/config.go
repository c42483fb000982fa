package domain

import (
	"strings"
	"time"
)

// Provider type families. Aliases such as GLM or DEEPSEEK expose the
// OpenAI-compatible wire format and are handled by the same strategy.
const (
	ProviderOpenAI    = "OPENAI"
	ProviderOllama    = "OLLAMA"
	ProviderAnthropic = "ANTHROPIC"
	ProviderGLM       = "GLM"
	ProviderDeepSeek  = "DEEPSEEK"
	ProviderGemini    = "GEMINI"
)

// ProviderConfig is a named provider configuration persisted in the shared
// store. Active and ActiveForEmbedding are derived from the singleton active
// pointers at read time; they are never stored.
type ProviderConfig struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ProviderType string   `json:"providerType"`
	BaseURL      string   `json:"baseUrl"`
	APIKey       string   `json:"apiKey,omitempty"`
	DefaultModel string   `json:"defaultModel"`
	Models       []string `json:"models,omitempty"`

	// Embedding support is optional. EmbeddingDimension is required whenever
	// EmbeddingModel is set.
	EmbeddingModel     string `json:"embeddingModel,omitempty"`
	EmbeddingDimension int    `json:"embeddingDimension,omitempty"`

	Active             bool `json:"active"`
	ActiveForEmbedding bool `json:"activeForEmbedding"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SupportsEmbedding reports whether this configuration can serve as an
// embedding provider.
func (c *ProviderConfig) SupportsEmbedding() bool {
	return strings.TrimSpace(c.EmbeddingModel) != ""
}

// ModelTestResult is the outcome of probing a single model during a
// connection test. Failures are data, not errors.
type ModelTestResult struct {
	Model     string `json:"model"`
	Success   bool   `json:"success"`
	ErrorInfo string `json:"errorInfo,omitempty"`
}

// EmbeddingActivation describes the outcome of an embedding activation
// attempt. When RequireClearKnowledge is set the activation was not applied:
// the caller must confirm the destructive reset and retry with force.
type EmbeddingActivation struct {
	Success               bool            `json:"success"`
	RequireClearKnowledge bool            `json:"requireClearKnowledge"`
	CurrentDimension      int             `json:"currentDimension,omitempty"`
	NewDimension          int             `json:"newDimension"`
	CurrentConfig         *ProviderConfig `json:"currentConfig,omitempty"`
	NewConfig             *ProviderConfig `json:"newConfig"`
	KnowledgeCount        int64           `json:"knowledgeCount"`
	VectorCount           int64           `json:"vectorCount"`
}
