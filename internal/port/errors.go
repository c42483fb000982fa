package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrNoActiveConfig         = errors.New("no active provider configuration")
	ErrConfigNotFound         = errors.New("provider configuration not found")
	ErrUnsupportedProvider    = errors.New("unsupported provider type")
	ErrInvalidEmbeddingConfig = errors.New("configuration is missing embedding model or dimension")
	ErrTaskNotFound           = errors.New("task not found or expired")
)
