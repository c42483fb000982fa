package factory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ragswitch/ragswitch/internal/adapter/store"
	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/port"
)

// fakeChatClient answers every call with a fixed reply, or fails models
// listed in failModels.
type fakeChatClient struct {
	reply      string
	failModels map[string]bool
}

func (c *fakeChatClient) Call(_ context.Context, model string, _ []domain.Message) (string, error) {
	if c.failModels[model] {
		return "", errors.New("model not available")
	}
	return c.reply, nil
}

func (c *fakeChatClient) Stream(_ context.Context, _ string, _ []domain.Message) (<-chan domain.StreamChunk, error) {
	ch := make(chan domain.StreamChunk, 1)
	ch <- domain.StreamChunk{Content: c.reply}
	close(ch)
	return ch, nil
}

// fakeChatStrategy counts constructions so tests can assert
// construct-at-most-once semantics.
type fakeChatStrategy struct {
	providerType string
	constructed  atomic.Int64
	createErr    error
	failModels   map[string]bool
}

func (s *fakeChatStrategy) Supports(providerType string) bool {
	return providerType == s.providerType
}

func (s *fakeChatStrategy) CreateClient(cfg *domain.ProviderConfig) (port.ChatClient, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.constructed.Add(1)
	return &fakeChatClient{reply: "ok:" + cfg.ID, failModels: s.failModels}, nil
}

// fakeEmbeddingClient returns a constant vector of the configured dimension.
type fakeEmbeddingClient struct {
	dimension int
}

func (c *fakeEmbeddingClient) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, c.dimension), nil
}

func (c *fakeEmbeddingClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, c.dimension)
	}
	return out, nil
}

type fakeEmbeddingStrategy struct {
	providerType string
	constructed  atomic.Int64
}

func (s *fakeEmbeddingStrategy) Supports(providerType string) bool {
	return providerType == s.providerType
}

func (s *fakeEmbeddingStrategy) CreateEmbedding(cfg *domain.ProviderConfig) (port.EmbeddingClient, error) {
	s.constructed.Add(1)
	return &fakeEmbeddingClient{dimension: cfg.EmbeddingDimension}, nil
}

// fakeVectorRepo records the destructive operations the embedding factory
// may trigger.
type fakeVectorRepo struct {
	count          int64
	truncated      bool
	alteredTo      int
	searchResults  []domain.SimilarDocument
	insertedChunks int
}

func (r *fakeVectorRepo) Insert(_ context.Context, docs []domain.Document, _ [][]float32) error {
	r.insertedChunks += len(docs)
	return nil
}

func (r *fakeVectorRepo) Search(_ context.Context, _ []float32, _ []string, _ int, _ float64) ([]domain.SimilarDocument, error) {
	return r.searchResults, nil
}

func (r *fakeVectorRepo) DeleteByTag(_ context.Context, _ string) (int64, error) { return 0, nil }
func (r *fakeVectorRepo) CountByTag(_ context.Context, _ string) (int64, error)  { return 0, nil }
func (r *fakeVectorRepo) CountAll(_ context.Context) (int64, error)              { return r.count, nil }

func (r *fakeVectorRepo) Truncate(_ context.Context) error {
	r.truncated = true
	r.count = 0
	return nil
}

func (r *fakeVectorRepo) AlterDimension(_ context.Context, dimension int) error {
	r.alteredTo = dimension
	return nil
}

func newFactoryTestStore(t *testing.T) *store.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewRedisStoreWithClient(rdb)
}

func putConfig(t *testing.T, s *store.RedisStore, cfg *domain.ProviderConfig) {
	t.Helper()
	require.NoError(t, s.PutConfig(context.Background(), cfg))
}
