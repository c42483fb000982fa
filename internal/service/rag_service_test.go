package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragswitch/ragswitch/internal/adapter/store"
	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/ingest"
	"github.com/ragswitch/ragswitch/internal/port"
)

func newTestRAGService(t *testing.T, s *store.RedisStore, repo *memVectorRepo, vcs port.VCSProvider) *RAGService {
	t.Helper()
	svc, err := NewRAGService(
		s, repo, newTestEmbeddingFactory(s, repo),
		vcs, ingest.NewPlainTextExtractor(), ingest.NewSplitter(512),
		2, t.TempDir(),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func waitForTask(t *testing.T, svc *RAGService, taskID string) *domain.TaskProgress {
	t.Helper()
	var last *domain.TaskProgress
	require.Eventually(t, func() bool {
		p, err := svc.QueryTaskProgress(context.Background(), taskID)
		if err != nil {
			return false
		}
		last = p
		return p.Done()
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

func TestExtractProjectName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widgets.git", "widgets"},
		{"https://github.com/acme/widgets", "widgets"},
		{"https://github.com/acme/widgets/", "widgets"},
		{"git@host:tools.git", "git@host:tools"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractProjectName(tt.url), tt.url)
	}
}

func TestUploadFiles(t *testing.T) {
	s := newServiceTestStore(t)
	activeEmbedding(t, s)
	repo := &memVectorRepo{}
	svc := newTestRAGService(t, s, repo, &fixtureVCS{})
	ctx := context.Background()

	err := svc.UploadFiles(ctx, "manuals", []UploadFile{
		{Name: "intro.md", Data: []byte("# Widgets\n\nWidgets are great.\n")},
		{Name: "setup.md", Data: []byte("Run the installer.\n")},
	})
	require.NoError(t, err)

	require.NotEmpty(t, repo.docs)
	for _, doc := range repo.docs {
		assert.Equal(t, "manuals", doc.Metadata[domain.MetadataKnowledge])
		assert.NotEmpty(t, doc.Metadata["source"])
	}

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"manuals"}, tags)
}

func TestUploadFilesRejectsBinary(t *testing.T) {
	s := newServiceTestStore(t)
	activeEmbedding(t, s)
	repo := &memVectorRepo{}
	svc := newTestRAGService(t, s, repo, &fixtureVCS{})

	err := svc.UploadFiles(context.Background(), "bin", []UploadFile{
		{Name: "app.txt", Data: []byte{0x00, 0x01, 0x02}},
	})

	require.Error(t, err)
	assert.Empty(t, repo.docs)
}

func TestAnalyzeRepositoryCompletes(t *testing.T) {
	s := newServiceTestStore(t)
	activeEmbedding(t, s)
	repo := &memVectorRepo{}
	vcs := &fixtureVCS{files: map[string]string{
		"main.go":          "package main\n\nfunc main() {}\n",
		"README.md":        "# Widgets\n",
		"docs/usage.md":    "Use widgets carefully.\n",
		".git/config":      "[core]\n", // skipped directory
		"logo.png":         "not really a png",
		"internal/util.go": "package internal\n",
	}}
	svc := newTestRAGService(t, s, repo, vcs)
	ctx := context.Background()

	taskID, err := svc.AnalyzeRepository(ctx, "https://github.com/acme/widgets.git", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	final := waitForTask(t, svc, taskID)
	assert.Equal(t, domain.TaskCompleted, final.State)
	assert.Equal(t, 100, final.Percentage)

	// The four eligible files were vectorized under the project tag.
	n, err := svc.CountByTag(ctx, "widgets")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	assert.Contains(t, tags, "widgets")
}

func TestAnalyzeRepositoryCloneFailure(t *testing.T) {
	s := newServiceTestStore(t)
	activeEmbedding(t, s)
	svc := newTestRAGService(t, s, &memVectorRepo{}, failingVCS{})

	taskID, err := svc.AnalyzeRepository(context.Background(), "https://github.com/acme/widgets.git", "", "")
	require.NoError(t, err)

	final := waitForTask(t, svc, taskID)
	assert.Equal(t, domain.TaskFailed, final.State)
	assert.NotEmpty(t, final.Error)
}

func TestAnalyzeRepositoryCancel(t *testing.T) {
	s := newServiceTestStore(t)
	activeEmbedding(t, s)
	repo := &memVectorRepo{}
	vcs := &fixtureVCS{
		files: map[string]string{"main.go": "package main\n"},
		delay: 300 * time.Millisecond,
	}
	svc := newTestRAGService(t, s, repo, vcs)
	ctx := context.Background()

	taskID, err := svc.AnalyzeRepository(ctx, "https://github.com/acme/widgets.git", "", "")
	require.NoError(t, err)
	require.NoError(t, svc.CancelTask(ctx, taskID))

	final := waitForTask(t, svc, taskID)
	assert.Equal(t, domain.TaskCancelled, final.State)

	// Nothing was ingested, no tag registered, no clone left behind.
	assert.Empty(t, repo.docs)
	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	assert.NotContains(t, tags, "widgets")
	_, err = os.Stat(filepath.Join(svc.cloneBase, taskID))
	assert.True(t, os.IsNotExist(err))

	// The cancellation flag was cleared on the way out.
	cancelled, err := s.IsCancelRequested(ctx, taskID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestDeleteTag(t *testing.T) {
	s := newServiceTestStore(t)
	activeEmbedding(t, s)
	repo := &memVectorRepo{}
	svc := newTestRAGService(t, s, repo, &fixtureVCS{})
	ctx := context.Background()

	require.NoError(t, svc.UploadFiles(ctx, "manuals", []UploadFile{
		{Name: "a.md", Data: []byte("alpha\n")},
	}))

	deleted, err := svc.DeleteTag(ctx, "manuals")
	require.NoError(t, err)
	assert.Positive(t, deleted)

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestQueryTaskProgressUnknownTask(t *testing.T) {
	s := newServiceTestStore(t)
	svc := newTestRAGService(t, s, &memVectorRepo{}, &fixtureVCS{})

	_, err := svc.QueryTaskProgress(context.Background(), "no-such-task")

	assert.Error(t, err)
}

// failingVCS rejects every clone.
type failingVCS struct{}

func (failingVCS) Clone(context.Context, string, string, string, string) error {
	return assert.AnError
}
