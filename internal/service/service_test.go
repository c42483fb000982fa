package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ragswitch/ragswitch/internal/adapter/store"
	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/factory"
	"github.com/ragswitch/ragswitch/internal/port"
)

// recordingChatClient streams a canned reply and remembers the messages of
// the last call so tests can inspect prompt construction.
type recordingChatClient struct {
	mu       sync.Mutex
	reply    string
	messages []domain.Message
}

func (c *recordingChatClient) Call(_ context.Context, _ string, messages []domain.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = messages
	return c.reply, nil
}

func (c *recordingChatClient) Stream(_ context.Context, _ string, messages []domain.Message) (<-chan domain.StreamChunk, error) {
	c.mu.Lock()
	c.messages = messages
	c.mu.Unlock()
	ch := make(chan domain.StreamChunk, 1)
	ch <- domain.StreamChunk{Content: c.reply}
	close(ch)
	return ch, nil
}

func (c *recordingChatClient) lastMessages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

type recordingChatStrategy struct {
	client *recordingChatClient
}

func (recordingChatStrategy) Supports(providerType string) bool { return true }

func (s recordingChatStrategy) CreateClient(_ *domain.ProviderConfig) (port.ChatClient, error) {
	return s.client, nil
}

// stubEmbeddingClient returns a constant vector regardless of input.
type stubEmbeddingClient struct {
	dimension int
}

func (c stubEmbeddingClient) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, c.dimension), nil
}

func (c stubEmbeddingClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, c.dimension)
	}
	return out, nil
}

type stubEmbeddingStrategy struct{}

func (stubEmbeddingStrategy) Supports(string) bool { return true }

func (stubEmbeddingStrategy) CreateEmbedding(cfg *domain.ProviderConfig) (port.EmbeddingClient, error) {
	return stubEmbeddingClient{dimension: cfg.EmbeddingDimension}, nil
}

// memVectorRepo is an in-memory vector repository tracking inserts and
// serving canned search results.
type memVectorRepo struct {
	mu            sync.Mutex
	docs          []domain.Document
	searchResults []domain.SimilarDocument
}

func (r *memVectorRepo) Insert(_ context.Context, docs []domain.Document, _ [][]float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, docs...)
	return nil
}

func (r *memVectorRepo) Search(_ context.Context, _ []float32, _ []string, _ int, _ float64) ([]domain.SimilarDocument, error) {
	return r.searchResults, nil
}

func (r *memVectorRepo) DeleteByTag(_ context.Context, tag string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Document
	var deleted int64
	for _, d := range r.docs {
		if d.Metadata[domain.MetadataKnowledge] == tag {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	r.docs = kept
	return deleted, nil
}

func (r *memVectorRepo) CountByTag(_ context.Context, tag string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.docs {
		if d.Metadata[domain.MetadataKnowledge] == tag {
			n++
		}
	}
	return n, nil
}

func (r *memVectorRepo) CountAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.docs)), nil
}

func (r *memVectorRepo) Truncate(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = nil
	return nil
}

func (r *memVectorRepo) AlterDimension(_ context.Context, _ int) error { return nil }

// fixtureVCS materializes a fixed file tree at the clone destination,
// optionally after a delay so tests can race a cancellation against it.
type fixtureVCS struct {
	files map[string]string
	delay time.Duration
}

func (v *fixtureVCS) Clone(ctx context.Context, _ string, dest, _, _ string) error {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for name, content := range v.files {
		path := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func newServiceTestStore(t *testing.T) *store.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewRedisStoreWithClient(rdb)
}

// activeEmbedding seeds the store with one embedding configuration and makes
// it active.
func activeEmbedding(t *testing.T, s *store.RedisStore) {
	t.Helper()
	ctx := context.Background()
	cfg := &domain.ProviderConfig{
		ID:                 "embed-1",
		Name:               "embedder",
		ProviderType:       domain.ProviderOllama,
		EmbeddingModel:     "nomic-embed-text",
		EmbeddingDimension: 8,
	}
	require.NoError(t, s.PutConfig(ctx, cfg))
	require.NoError(t, s.SetActiveEmbeddingID(ctx, "embed-1"))
}

func newTestEmbeddingFactory(s *store.RedisStore, repo port.VectorRepository) *factory.EmbeddingFactory {
	return factory.NewEmbeddingFactory(s, repo, stubEmbeddingStrategy{})
}
