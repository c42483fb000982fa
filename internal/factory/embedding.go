package factory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/port"
)

// EmbeddingFactory is the embedding counterpart of ChatFactory with one
// added responsibility: dimension-safe activation. Embeddings produced by
// models of different dimensions are not comparable, so switching the
// active embedding provider across dimensions requires an explicit, forced
// reset of the knowledge base.
type EmbeddingFactory struct {
	store      port.ConfigStore
	vectors    port.VectorRepository
	strategies []port.EmbeddingStrategy

	mu       sync.RWMutex
	activeID string
	cache    map[string]port.EmbeddingClient

	activateMu sync.Mutex
}

// NewEmbeddingFactory creates a factory dispatching to the given strategies
// in order.
func NewEmbeddingFactory(store port.ConfigStore, vectors port.VectorRepository, strategies ...port.EmbeddingStrategy) *EmbeddingFactory {
	return &EmbeddingFactory{
		store:      store,
		vectors:    vectors,
		strategies: strategies,
		cache:      make(map[string]port.EmbeddingClient),
	}
}

// GetActiveClient returns the embedding client for the currently active
// embedding configuration, creating and caching it on first use.
func (f *EmbeddingFactory) GetActiveClient(ctx context.Context) (port.EmbeddingClient, error) {
	id, err := f.resolveActiveID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, port.ErrNoActiveConfig
	}

	f.mu.RLock()
	client, ok := f.cache[id]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	cfg, err := f.store.GetConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("active embedding configuration %s: %w", id, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.cache[id]; ok {
		return client, nil
	}
	client, err = f.createClient(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("created embedding client", "config", cfg.Name, "model", cfg.EmbeddingModel)
	f.cache[id] = client
	return client, nil
}

// Activate performs dimension-safe embedding activation.
//
// When the new configuration's dimension differs from the currently active
// one, existing stored vectors are incompatible with the new embedding
// space. Without force the call performs no mutation and returns a result
// asking for confirmation; with force it destructively truncates the vector
// store, alters the stored vector width, and clears the tag set before
// switching.
func (f *EmbeddingFactory) Activate(ctx context.Context, configID string, force bool) (*domain.EmbeddingActivation, error) {
	f.activateMu.Lock()
	defer f.activateMu.Unlock()

	newCfg, err := f.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("embedding configuration %s: %w", configID, err)
	}
	if !newCfg.SupportsEmbedding() || newCfg.EmbeddingDimension <= 0 {
		return nil, fmt.Errorf("%w: %s", port.ErrInvalidEmbeddingConfig, configID)
	}

	oldID, err := f.store.GetActiveEmbeddingID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read active embedding id: %w", err)
	}
	var oldCfg *domain.ProviderConfig
	if oldID != "" {
		if oldCfg, err = f.store.GetConfig(ctx, oldID); err != nil {
			slog.Warn("active embedding configuration unreadable", "config_id", oldID, "error", err)
			oldCfg = nil
		}
	}

	knowledgeCount, err := f.store.CountTags(ctx)
	if err != nil {
		slog.Warn("counting knowledge bases failed", "error", err)
	}
	vectorCount, err := f.vectors.CountAll(ctx)
	if err != nil {
		slog.Warn("counting vectors failed", "error", err)
	}

	result := &domain.EmbeddingActivation{
		NewDimension:   newCfg.EmbeddingDimension,
		NewConfig:      newCfg,
		CurrentConfig:  oldCfg,
		KnowledgeCount: knowledgeCount,
		VectorCount:    vectorCount,
	}
	if oldCfg != nil {
		result.CurrentDimension = oldCfg.EmbeddingDimension
	}

	if oldCfg != nil && oldCfg.EmbeddingDimension != newCfg.EmbeddingDimension {
		if !force {
			result.RequireClearKnowledge = true
			return result, nil
		}
		if err := f.clearAllKnowledge(ctx, newCfg.EmbeddingDimension); err != nil {
			return nil, err
		}
	}

	if err := f.store.SetActiveEmbeddingID(ctx, configID); err != nil {
		return nil, fmt.Errorf("set active embedding id: %w", err)
	}

	f.mu.Lock()
	f.activeID = configID
	delete(f.cache, oldID)
	delete(f.cache, configID)
	f.mu.Unlock()

	result.Success = true
	slog.Info("activated embedding configuration",
		"config", newCfg.Name, "dimension", newCfg.EmbeddingDimension)
	return result, nil
}

// GetActiveConfig returns the active embedding configuration, or
// ErrNoActiveConfig when none is set.
func (f *EmbeddingFactory) GetActiveConfig(ctx context.Context) (*domain.ProviderConfig, error) {
	id, err := f.resolveActiveID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, port.ErrNoActiveConfig
	}
	cfg, err := f.store.GetConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("active embedding configuration %s: %w", id, err)
	}
	return cfg, nil
}

// Invalidate removes any cached client for id. If id is the last known
// active embedding configuration, the in-process mirror is cleared.
// Idempotent.
func (f *EmbeddingFactory) Invalidate(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, id)
	if id == f.activeID {
		f.activeID = ""
	}
	slog.Info("invalidated embedding client cache", "config_id", id)
}

// clearAllKnowledge is the destructive reset: truncate the vector store,
// alter the stored vector width, and clear the known-tag set.
func (f *EmbeddingFactory) clearAllKnowledge(ctx context.Context, newDimension int) error {
	if err := f.vectors.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate vector store: %w", err)
	}
	if err := f.vectors.AlterDimension(ctx, newDimension); err != nil {
		return fmt.Errorf("alter vector dimension: %w", err)
	}
	if err := f.store.ClearTags(ctx); err != nil {
		return fmt.Errorf("clear knowledge tags: %w", err)
	}
	slog.Warn("all knowledge bases cleared, vector dimension changed", "dimension", newDimension)
	return nil
}

func (f *EmbeddingFactory) resolveActiveID(ctx context.Context) (string, error) {
	f.mu.RLock()
	id := f.activeID
	f.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	id, err := f.store.GetActiveEmbeddingID(ctx)
	if err != nil {
		return "", fmt.Errorf("read active embedding id: %w", err)
	}
	if id != "" {
		f.mu.Lock()
		f.activeID = id
		f.mu.Unlock()
	}
	return id, nil
}

func (f *EmbeddingFactory) createClient(cfg *domain.ProviderConfig) (port.EmbeddingClient, error) {
	for _, s := range f.strategies {
		if s.Supports(cfg.ProviderType) {
			return s.CreateEmbedding(cfg)
		}
	}
	return nil, fmt.Errorf("%w: %s", port.ErrUnsupportedProvider, cfg.ProviderType)
}
