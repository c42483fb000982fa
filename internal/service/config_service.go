package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/factory"
	"github.com/ragswitch/ragswitch/internal/port"
)

// ConfigService manages provider configuration CRUD and activation. The
// Active/ActiveForEmbedding flags on returned records are a read-time
// projection of the two singleton pointers, never stored state.
type ConfigService struct {
	store     port.ConfigStore
	chat      *factory.ChatFactory
	embedding *factory.EmbeddingFactory
}

// NewConfigService creates a configuration service.
func NewConfigService(store port.ConfigStore, chat *factory.ChatFactory, embedding *factory.EmbeddingFactory) *ConfigService {
	return &ConfigService{store: store, chat: chat, embedding: embedding}
}

// List returns all configurations with derived activation flags.
func (s *ConfigService) List(ctx context.Context) ([]*domain.ProviderConfig, error) {
	configs, err := s.store.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}

	activeID, _ := s.store.GetActiveChatID(ctx)
	activeEmbeddingID, _ := s.store.GetActiveEmbeddingID(ctx)
	for _, cfg := range configs {
		cfg.Active = cfg.ID == activeID
		cfg.ActiveForEmbedding = cfg.ID == activeEmbeddingID
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].CreatedAt.Before(configs[j].CreatedAt)
	})
	return configs, nil
}

// Get returns one configuration with derived activation flags.
func (s *ConfigService) Get(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	cfg, err := s.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	activeID, _ := s.store.GetActiveChatID(ctx)
	activeEmbeddingID, _ := s.store.GetActiveEmbeddingID(ctx)
	cfg.Active = cfg.ID == activeID
	cfg.ActiveForEmbedding = cfg.ID == activeEmbeddingID
	return cfg, nil
}

// Create assigns a fresh id and persists the configuration.
func (s *ConfigService) Create(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	now := time.Now()
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	cfg.Active = false
	cfg.ActiveForEmbedding = false

	if err := s.store.PutConfig(ctx, cfg); err != nil {
		return nil, err
	}
	slog.Info("created provider configuration", "config_id", cfg.ID, "name", cfg.Name)
	return cfg, nil
}

// Update replaces a configuration. Id and creation time are immutable; any
// cached client for this id is invalidated.
func (s *ConfigService) Update(ctx context.Context, id string, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error) {
	existing, err := s.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	cfg.ID = id
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now()
	cfg.Active = false
	cfg.ActiveForEmbedding = false

	if err := s.store.PutConfig(ctx, cfg); err != nil {
		return nil, err
	}

	s.chat.Invalidate(id)
	s.embedding.Invalidate(id)
	slog.Info("updated provider configuration", "config_id", id)
	return cfg, nil
}

// Delete removes a configuration. Deleting the active chat or active
// embedding configuration is refused.
func (s *ConfigService) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetConfig(ctx, id); err != nil {
		return err
	}

	activeID, err := s.store.GetActiveChatID(ctx)
	if err != nil {
		return err
	}
	if id == activeID {
		return fmt.Errorf("configuration %s is the active chat configuration", id)
	}
	activeEmbeddingID, err := s.store.GetActiveEmbeddingID(ctx)
	if err != nil {
		return err
	}
	if id == activeEmbeddingID {
		return fmt.Errorf("configuration %s is the active embedding configuration", id)
	}

	if err := s.store.DeleteConfig(ctx, id); err != nil {
		return err
	}
	s.chat.Invalidate(id)
	s.embedding.Invalidate(id)
	slog.Info("deleted provider configuration", "config_id", id)
	return nil
}

// Activate makes id the active chat configuration.
func (s *ConfigService) Activate(ctx context.Context, id string) error {
	if _, err := s.store.GetConfig(ctx, id); err != nil {
		return err
	}
	return s.chat.Activate(ctx, id)
}

// ActivateEmbedding makes id the active embedding configuration, subject to
// the dimension-compatibility protocol.
func (s *ConfigService) ActivateEmbedding(ctx context.Context, id string, force bool) (*domain.EmbeddingActivation, error) {
	return s.embedding.Activate(ctx, id, force)
}

// GetActive returns the active chat configuration.
func (s *ConfigService) GetActive(ctx context.Context) (*domain.ProviderConfig, error) {
	id, err := s.store.GetActiveChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, port.ErrNoActiveConfig
	}
	return s.Get(ctx, id)
}

// GetActiveEmbedding returns the active embedding configuration.
func (s *ConfigService) GetActiveEmbedding(ctx context.Context) (*domain.ProviderConfig, error) {
	id, err := s.store.GetActiveEmbeddingID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, port.ErrNoActiveConfig
	}
	return s.Get(ctx, id)
}

// TestConnection probes an arbitrary configuration, one result per model.
func (s *ConfigService) TestConnection(ctx context.Context, cfg *domain.ProviderConfig) []domain.ModelTestResult {
	return s.chat.TestConnection(ctx, cfg)
}

// validateConfig enforces the embedding invariant: a dimension is required
// whenever an embedding model is declared.
func validateConfig(cfg *domain.ProviderConfig) error {
	if cfg.SupportsEmbedding() && cfg.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: embeddingDimension required when embeddingModel is set", port.ErrInvalidEmbeddingConfig)
	}
	return nil
}
