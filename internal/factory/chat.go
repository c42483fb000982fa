package factory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/port"
)

// defaultProbeModels maps a provider family to a sane model for connection
// probing when a configuration declares no models at all. Data, not logic:
// extend the table to cover a new family.
var defaultProbeModels = map[string]string{
	domain.ProviderOllama:    "llama3:8b",
	domain.ProviderAnthropic: "claude-3-5-sonnet-20241022",
	domain.ProviderGLM:       "glm-4",
	domain.ProviderDeepSeek:  "deepseek-chat",
	domain.ProviderGemini:    "gemini-2.0-flash",
}

const fallbackProbeModel = "gpt-4o-mini"

// ChatFactory resolves the active chat configuration to a ready client,
// constructing and caching the client at most once per configuration id.
//
// Locking discipline: mu guards only the in-memory cache and the mirrored
// active-id — it is never held across a store or provider call. activateMu
// serializes activations with each other.
type ChatFactory struct {
	store      port.ConfigStore
	strategies []port.ChatStrategy

	mu       sync.RWMutex
	activeID string
	cache    map[string]port.ChatClient

	activateMu sync.Mutex
}

// NewChatFactory creates a factory dispatching to the given strategies in
// order.
func NewChatFactory(store port.ConfigStore, strategies ...port.ChatStrategy) *ChatFactory {
	return &ChatFactory{
		store:      store,
		strategies: strategies,
		cache:      make(map[string]port.ChatClient),
	}
}

// GetActiveClient returns the client for the currently active configuration,
// creating and caching it on first use.
func (f *ChatFactory) GetActiveClient(ctx context.Context) (port.ChatClient, error) {
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

	// Cache miss: load the configuration outside any lock, then construct
	// under the write lock with a double-check so concurrent callers never
	// build two clients for the same id.
	cfg, err := f.store.GetConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("active configuration %s: %w", id, err)
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
	slog.Info("created chat client", "config", cfg.Name, "provider", cfg.ProviderType)
	f.cache[id] = client
	return client, nil
}

// Activate makes newID the active chat configuration and pre-warms its
// client so the first subsequent call does not pay construction latency.
// A pre-warm construction failure is logged, not propagated: a later
// GetActiveClient retries and surfaces the error then.
func (f *ChatFactory) Activate(ctx context.Context, newID string) error {
	f.activateMu.Lock()
	defer f.activateMu.Unlock()

	if err := f.store.SetActiveChatID(ctx, newID); err != nil {
		return fmt.Errorf("set active configuration: %w", err)
	}

	cfg, err := f.store.GetConfig(ctx, newID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeID = newID

	if _, cached := f.cache[newID]; cached {
		return nil
	}
	if err != nil {
		slog.Warn("pre-warm skipped, configuration not readable", "config_id", newID, "error", err)
		return nil
	}
	client, err := f.createClient(cfg)
	if err != nil {
		slog.Warn("pre-warm failed", "config_id", newID, "error", err)
		return nil
	}
	f.cache[newID] = client
	slog.Info("pre-warmed chat client", "config", cfg.Name)
	return nil
}

// Invalidate removes any cached client for id. If id is the last known
// active configuration, the in-process active-id mirror is cleared so the
// next use re-reads the shared store. Idempotent.
func (f *ChatFactory) Invalidate(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, id)
	if id == f.activeID {
		f.activeID = ""
	}
	slog.Info("invalidated chat client cache", "config_id", id)
}

// GetActiveProviderType returns the provider type of the active
// configuration without materializing a client.
func (f *ChatFactory) GetActiveProviderType(ctx context.Context) (string, error) {
	cfg, err := f.activeConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.ProviderType, nil
}

// GetActiveDefaultModel returns the default model of the active
// configuration without materializing a client.
func (f *ChatFactory) GetActiveDefaultModel(ctx context.Context) (string, error) {
	cfg, err := f.activeConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.DefaultModel, nil
}

// TestConnection probes every candidate model of an arbitrary (possibly
// unsaved) configuration with one minimal chat call each. No client is
// cached. Individual model failures are results, not errors.
func (f *ChatFactory) TestConnection(ctx context.Context, cfg *domain.ProviderConfig) []domain.ModelTestResult {
	models := probeModels(cfg)

	client, err := f.createClient(cfg)
	if err != nil {
		results := make([]domain.ModelTestResult, len(models))
		for i, m := range models {
			results[i] = domain.ModelTestResult{
				Model:     m,
				ErrorInfo: fmt.Sprintf("client creation failed: %v", err),
			}
		}
		return results
	}

	probe := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}
	results := make([]domain.ModelTestResult, 0, len(models))
	for _, model := range models {
		if _, err := client.Call(ctx, model, probe); err != nil {
			slog.Warn("connection test failed", "provider", cfg.ProviderType, "model", model, "error", err)
			results = append(results, domain.ModelTestResult{Model: model, ErrorInfo: err.Error()})
			continue
		}
		results = append(results, domain.ModelTestResult{Model: model, Success: true})
	}
	return results
}

// resolveActiveID returns the active configuration id from the in-process
// mirror, falling back to the shared store.
func (f *ChatFactory) resolveActiveID(ctx context.Context) (string, error) {
	f.mu.RLock()
	id := f.activeID
	f.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	id, err := f.store.GetActiveChatID(ctx)
	if err != nil {
		return "", fmt.Errorf("read active configuration id: %w", err)
	}
	if id != "" {
		f.mu.Lock()
		f.activeID = id
		f.mu.Unlock()
	}
	return id, nil
}

func (f *ChatFactory) activeConfig(ctx context.Context) (*domain.ProviderConfig, error) {
	id, err := f.resolveActiveID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, port.ErrNoActiveConfig
	}
	cfg, err := f.store.GetConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("active configuration %s: %w", id, err)
	}
	return cfg, nil
}

func (f *ChatFactory) createClient(cfg *domain.ProviderConfig) (port.ChatClient, error) {
	for _, s := range f.strategies {
		if s.Supports(cfg.ProviderType) {
			return s.CreateClient(cfg)
		}
	}
	return nil, fmt.Errorf("%w: %s", port.ErrUnsupportedProvider, cfg.ProviderType)
}

// probeModels builds the candidate list for a connection test: the declared
// model list, else the default model, else the family default.
func probeModels(cfg *domain.ProviderConfig) []string {
	var models []string
	if len(cfg.Models) > 0 {
		models = append(models, cfg.Models...)
	} else if cfg.DefaultModel != "" {
		models = append(models, cfg.DefaultModel)
	} else if m, ok := defaultProbeModels[strings.ToUpper(cfg.ProviderType)]; ok {
		models = append(models, m)
	} else {
		models = append(models, fallbackProbeModel)
	}

	seen := make(map[string]bool, len(models))
	distinct := models[:0]
	for _, m := range models {
		if !seen[m] {
			seen[m] = true
			distinct = append(distinct, m)
		}
	}
	return distinct
}
