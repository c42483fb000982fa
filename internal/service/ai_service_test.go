package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/factory"
	"github.com/ragswitch/ragswitch/internal/port"
)

func newTestAIService(t *testing.T, repo *memVectorRepo) (*AIService, *recordingChatClient) {
	t.Helper()
	s := newServiceTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutConfig(ctx, &domain.ProviderConfig{
		ID:           "chat-1",
		ProviderType: domain.ProviderOpenAI,
		DefaultModel: "gpt-4o-mini",
	}))
	require.NoError(t, s.SetActiveChatID(ctx, "chat-1"))
	activeEmbedding(t, s)

	client := &recordingChatClient{reply: "answer"}
	chat := factory.NewChatFactory(s, recordingChatStrategy{client: client})
	embedding := newTestEmbeddingFactory(s, repo)

	return NewAIService(chat, embedding, repo, 5, 0.30), client
}

func TestGenerate(t *testing.T) {
	svc, client := newTestAIService(t, &memVectorRepo{})

	got, err := svc.Generate(context.Background(), "", "hello")

	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	msgs := client.lastMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestGenerateNoActiveConfig(t *testing.T) {
	s := newServiceTestStore(t)
	chat := factory.NewChatFactory(s, recordingChatStrategy{client: &recordingChatClient{}})
	svc := NewAIService(chat, newTestEmbeddingFactory(s, &memVectorRepo{}), &memVectorRepo{}, 5, 0.30)

	_, err := svc.Generate(context.Background(), "", "hello")

	assert.ErrorIs(t, err, port.ErrNoActiveConfig)
}

func TestGenerateStreamRagInjectsContext(t *testing.T) {
	repo := &memVectorRepo{searchResults: []domain.SimilarDocument{
		{Document: domain.Document{Content: "widgets are assembled in plant 7"}, Similarity: 0.91},
		{Document: domain.Document{Content: "plant 7 opened in 1998"}, Similarity: 0.72},
	}}
	svc, client := newTestAIService(t, repo)

	ch, err := svc.GenerateStreamRag(context.Background(), "", []string{"widgets"}, "where are widgets made?")
	require.NoError(t, err)
	for range ch {
	}

	msgs := client.lastMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "widgets are assembled in plant 7")
	assert.Contains(t, msgs[0].Content, "plant 7 opened in 1998")
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, "where are widgets made?", msgs[1].Content)
}

func TestGenerateStreamRagEmptyTagsSkipsRetrieval(t *testing.T) {
	svc, client := newTestAIService(t, &memVectorRepo{})

	ch, err := svc.GenerateStreamRag(context.Background(), "", nil, "hello")
	require.NoError(t, err)
	for range ch {
	}

	// Plain streaming: one user message, no system context.
	msgs := client.lastMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
}

func TestGenerateStreamRagNoHitsFallsBackPlain(t *testing.T) {
	// Search returns nothing above threshold.
	svc, client := newTestAIService(t, &memVectorRepo{})

	ch, err := svc.GenerateStreamRag(context.Background(), "", []string{"widgets"}, "hello")
	require.NoError(t, err)

	var out string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		out += chunk.Content
	}
	assert.Equal(t, "answer", out)

	// No empty reference-document prompt was injected.
	msgs := client.lastMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
}
