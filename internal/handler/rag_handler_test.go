package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragswitch/ragswitch/internal/adapter/store"
	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/factory"
	"github.com/ragswitch/ragswitch/internal/ingest"
	"github.com/ragswitch/ragswitch/internal/service"
)

type noopVCS struct{}

func (noopVCS) Clone(context.Context, string, string, string, string) error { return nil }

func newRAGTestApp(t *testing.T) (*fiber.App, *store.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := store.NewRedisStoreWithClient(rdb)

	embedding := factory.NewEmbeddingFactory(s, nullVectorRepo{}, stubEmbeddingStrategy{})
	rag, err := service.NewRAGService(
		s, nullVectorRepo{}, embedding,
		noopVCS{}, ingest.NewPlainTextExtractor(), ingest.NewSplitter(512),
		1, t.TempDir(),
	)
	require.NoError(t, err)
	t.Cleanup(rag.Close)

	app := fiber.New()
	api := app.Group("/api/v1")
	NewRAGHandler(rag).Register(api)
	return app, s
}

func TestListTags(t *testing.T) {
	app, s := newRAGTestApp(t)
	require.NoError(t, s.AddTag(context.Background(), "widgets"))

	resp, envelope := doJSON(t, app, http.MethodGet, "/api/v1/rag/tags", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, codeOK, envelope.Code)
	assert.Equal(t, []interface{}{"widgets"}, envelope.Data)
}

func TestTaskProgressNotFound(t *testing.T) {
	app, _ := newRAGTestApp(t)

	resp, envelope := doJSON(t, app, http.MethodGet, "/api/v1/rag/tasks/unknown", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNotFound, envelope.Code)
}

func TestAnalyzeRepositoryRequiresURL(t *testing.T) {
	app, _ := newRAGTestApp(t)

	resp, envelope := doJSON(t, app, http.MethodPost, "/api/v1/rag/analyze_repository",
		map[string]string{"repoUrl": ""})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeInvalid, envelope.Code)
}

func TestUploadRequiresTag(t *testing.T) {
	app, _ := newRAGTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", "a.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("alpha"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadWithoutEmbeddingProvider(t *testing.T) {
	app, _ := newRAGTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("tag", "manuals"))
	part, err := writer.CreateFormFile("files", "a.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("alpha"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	// No active embedding configuration: refused, not a server error.
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUploadSucceedsWithActiveEmbedding(t *testing.T) {
	app, s := newRAGTestApp(t)
	ctx := context.Background()

	require.NoError(t, s.PutConfig(ctx, &domain.ProviderConfig{
		ID:                 "e1",
		ProviderType:       domain.ProviderOpenAI,
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDimension: 2,
	}))
	require.NoError(t, s.SetActiveEmbeddingID(ctx, "e1"))

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("tag", "manuals"))
	part, err := writer.CreateFormFile("files", "a.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("alpha beta gamma"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"manuals"}, tags)
}
