package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/factory"
	"github.com/ragswitch/ragswitch/internal/ingest"
	"github.com/ragswitch/ragswitch/internal/port"
)

// Progress checkpoints for repository ingestion. Clone and scan own the
// first 35 percent of the bar; per-file processing spreads over the
// remaining 60, with 100 reserved for completion.
const (
	progressConnect  = 5
	progressCloning  = 10
	progressCloned   = 30
	progressScanned  = 35
	progressFileSpan = 60
	fileUpdateStride = 5
)

// UploadFile is one file submitted through the direct upload path.
type UploadFile struct {
	Name string
	Data []byte
}

// RAGService manages knowledge bases: direct uploads, asynchronous
// repository ingestion with progress and cancellation, and tag lifecycle.
type RAGService struct {
	store     port.ConfigStore
	vectors   port.VectorRepository
	embedding *factory.EmbeddingFactory
	vcs       port.VCSProvider
	extractor port.TextExtractor
	splitter  *ingest.Splitter

	pool      *ants.Pool
	cloneBase string
}

// NewRAGService creates the service with a bounded pool of workers
// executing repository ingestion tasks.
func NewRAGService(
	store port.ConfigStore,
	vectors port.VectorRepository,
	embedding *factory.EmbeddingFactory,
	vcs port.VCSProvider,
	extractor port.TextExtractor,
	splitter *ingest.Splitter,
	workers int,
	cloneBase string,
) (*RAGService, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &RAGService{
		store:     store,
		vectors:   vectors,
		embedding: embedding,
		vcs:       vcs,
		extractor: extractor,
		splitter:  splitter,
		pool:      pool,
		cloneBase: cloneBase,
	}, nil
}

// Close releases the worker pool.
func (s *RAGService) Close() {
	s.pool.Release()
}

// UploadFiles ingests uploaded files into the knowledge base named by tag:
// extract, chunk, stamp, vectorize, store, register the tag. Synchronous.
func (s *RAGService) UploadFiles(ctx context.Context, tag string, files []UploadFile) error {
	slog.Info("knowledge upload started", "tag", tag, "files", len(files))

	for _, file := range files {
		text, err := s.extractor.Extract(file.Name, file.Data)
		if err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
		if err := s.storeChunks(ctx, tag, file.Name, text); err != nil {
			return fmt.Errorf("store %s: %w", file.Name, err)
		}
	}

	if err := s.store.AddTag(ctx, tag); err != nil {
		return fmt.Errorf("register tag %q: %w", tag, err)
	}
	slog.Info("knowledge upload complete", "tag", tag)
	return nil
}

// AnalyzeRepository accepts a repository ingestion request, publishes an
// initial progress record, schedules the work on the pool, and returns the
// task id immediately. Background failures are observable only by polling.
func (s *RAGService) AnalyzeRepository(ctx context.Context, repoURL, username, token string) (string, error) {
	taskID := uuid.NewString()

	initial := &domain.TaskProgress{
		TaskID:     taskID,
		Percentage: 0,
		Status:     "preparing to clone repository...",
		State:      domain.TaskProcessing,
	}
	if err := s.store.SetTaskProgress(ctx, initial); err != nil {
		return "", fmt.Errorf("publish initial progress: %w", err)
	}

	if err := s.pool.Submit(func() {
		s.processRepository(context.Background(), taskID, repoURL, username, token)
	}); err != nil {
		s.updateProgress(ctx, taskID, 0, "task could not be scheduled", domain.TaskFailed, err.Error())
		return "", fmt.Errorf("schedule ingestion task: %w", err)
	}

	slog.Info("repository ingestion scheduled", "task_id", taskID, "url", repoURL)
	return taskID, nil
}

// QueryTaskProgress returns the progress record for a task.
func (s *RAGService) QueryTaskProgress(ctx context.Context, taskID string) (*domain.TaskProgress, error) {
	return s.store.GetTaskProgress(ctx, taskID)
}

// CancelTask requests cooperative cancellation of a running task. The task
// observes the flag at its next checkpoint.
func (s *RAGService) CancelTask(ctx context.Context, taskID string) error {
	return s.store.RequestCancel(ctx, taskID)
}

// ListTags returns all registered knowledge tags.
func (s *RAGService) ListTags(ctx context.Context) ([]string, error) {
	return s.store.ListTags(ctx)
}

// DeleteTag removes a knowledge base: its vectors and its tag registration.
func (s *RAGService) DeleteTag(ctx context.Context, tag string) (int64, error) {
	deleted, err := s.vectors.DeleteByTag(ctx, tag)
	if err != nil {
		return 0, fmt.Errorf("delete vectors for %q: %w", tag, err)
	}
	if err := s.store.RemoveTag(ctx, tag); err != nil {
		return deleted, fmt.Errorf("remove tag %q: %w", tag, err)
	}
	slog.Info("knowledge base deleted", "tag", tag, "vectors", deleted)
	return deleted, nil
}

// CountByTag counts the vectors stored under a knowledge tag.
func (s *RAGService) CountByTag(ctx context.Context, tag string) (int64, error) {
	return s.vectors.CountByTag(ctx, tag)
}

// processRepository is the background ingestion task. Every long stage
// updates the shared progress record and checks the cancellation flag;
// cancellation is a checked outcome, not an error. Whatever happens, no
// clone directory and no cancellation flag survive the task.
func (s *RAGService) processRepository(ctx context.Context, taskID, repoURL, username, token string) {
	localPath := filepath.Join(s.cloneBase, taskID)
	projectName := ExtractProjectName(repoURL)
	slog.Info("repository ingestion started", "task_id", taskID, "url", repoURL, "tag", projectName)

	defer func() {
		if err := s.store.ClearCancel(ctx, taskID); err != nil {
			slog.Warn("clearing cancellation flag failed", "task_id", taskID, "error", err)
		}
	}()

	s.updateProgress(ctx, taskID, progressConnect, "connecting to remote repository...", domain.TaskProcessing, "")
	if err := os.RemoveAll(localPath); err != nil {
		s.fail(ctx, taskID, localPath, fmt.Errorf("remove stale clone: %w", err))
		return
	}

	if s.cancelled(ctx, taskID) {
		s.cancel(ctx, taskID, localPath)
		return
	}

	s.updateProgress(ctx, taskID, progressCloning, "cloning repository (this can take a few minutes)...", domain.TaskProcessing, "")
	if err := s.vcs.Clone(ctx, repoURL, localPath, username, token); err != nil {
		if s.cancelled(ctx, taskID) {
			s.cancel(ctx, taskID, localPath)
			return
		}
		s.fail(ctx, taskID, localPath, fmt.Errorf("clone repository: %w", err))
		return
	}

	if s.cancelled(ctx, taskID) {
		s.cancel(ctx, taskID, localPath)
		return
	}
	s.updateProgress(ctx, taskID, progressCloned, "clone complete, scanning files...", domain.TaskProcessing, "")

	total, cancelled, err := s.countEligibleFiles(ctx, taskID, localPath)
	if cancelled {
		s.cancel(ctx, taskID, localPath)
		return
	}
	if err != nil {
		s.fail(ctx, taskID, localPath, fmt.Errorf("scan repository: %w", err))
		return
	}

	slog.Info("repository scanned", "task_id", taskID, "files", total)
	s.updateProgress(ctx, taskID,
		progressScanned, fmt.Sprintf("scan complete, %d files, parsing...", total),
		domain.TaskProcessing, "")

	cancelled, err = s.ingestFiles(ctx, taskID, localPath, projectName, total)
	if cancelled {
		s.cancel(ctx, taskID, localPath)
		return
	}
	if err != nil {
		s.fail(ctx, taskID, localPath, err)
		return
	}

	if err := os.RemoveAll(localPath); err != nil {
		slog.Warn("clone cleanup failed", "task_id", taskID, "error", err)
	}
	if err := s.store.AddTag(ctx, projectName); err != nil {
		s.fail(ctx, taskID, localPath, fmt.Errorf("register tag %q: %w", projectName, err))
		return
	}

	s.updateProgress(ctx, taskID, 100, "analysis complete", domain.TaskCompleted, "")
	slog.Info("repository ingestion complete", "task_id", taskID, "tag", projectName)
}

// countEligibleFiles walks the clone once to size the progress denominator.
func (s *RAGService) countEligibleFiles(ctx context.Context, taskID, root string) (total int, cancelled bool, err error) {
	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if s.cancelled(ctx, taskID) {
			cancelled = true
			return filepath.SkipAll
		}
		if ingest.EligibleFileInfo(path, info) {
			total++
		}
		return nil
	})
	return total, cancelled, err
}

// ingestFiles walks the clone a second time and vectorizes every eligible
// file. A single file's failure is logged and skipped; progress is pushed
// only every few files to bound store write volume.
func (s *RAGService) ingestFiles(ctx context.Context, taskID, root, tag string, total int) (cancelled bool, err error) {
	if total == 0 {
		total = 1
	}

	processed := 0
	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if s.cancelled(ctx, taskID) {
			cancelled = true
			return filepath.SkipAll
		}
		if !ingest.EligibleFileInfo(path, info) {
			return nil
		}

		processed++
		p := progressScanned + processed*progressFileSpan/total
		if p > progressScanned+progressFileSpan {
			p = progressScanned + progressFileSpan
		}
		if processed%fileUpdateStride == 0 || p%10 == 0 {
			s.updateProgress(ctx, taskID, p, "parsing: "+info.Name(), domain.TaskProcessing, "")
		}

		if err := s.ingestFile(ctx, tag, path); err != nil {
			slog.Error("file ingestion failed, skipping", "task_id", taskID, "file", path, "error", err)
		}
		return nil
	})
	return cancelled, err
}

func (s *RAGService) ingestFile(ctx context.Context, tag, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	text, err := s.extractor.Extract(filepath.Base(path), data)
	if err != nil {
		return err
	}
	return s.storeChunks(ctx, tag, filepath.Base(path), text)
}

// storeChunks splits text, stamps source document and chunks with the
// knowledge tag, vectorizes and stores them.
func (s *RAGService) storeChunks(ctx context.Context, tag, source, text string) error {
	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil
	}

	embedder, err := s.embedding.GetActiveClient(ctx)
	if err != nil {
		return err
	}
	vectors, err := embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]domain.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = domain.Document{
			Content: chunk,
			Metadata: map[string]string{
				domain.MetadataKnowledge: tag,
				"source":                 source,
			},
		}
	}
	return s.vectors.Insert(ctx, docs, vectors)
}

func (s *RAGService) cancelled(ctx context.Context, taskID string) bool {
	stop, err := s.store.IsCancelRequested(ctx, taskID)
	if err != nil {
		slog.Warn("cancellation check failed", "task_id", taskID, "error", err)
		return false
	}
	return stop
}

// cancel marks the task CANCELLED and removes the clone. A normal outcome.
func (s *RAGService) cancel(ctx context.Context, taskID, localPath string) {
	slog.Warn("task cancelled", "task_id", taskID)
	if err := os.RemoveAll(localPath); err != nil {
		slog.Warn("clone cleanup failed", "task_id", taskID, "error", err)
	}
	s.updateProgress(ctx, taskID, -1, "task cancelled", domain.TaskCancelled, "")
}

// fail marks the task FAILED and removes the clone.
func (s *RAGService) fail(ctx context.Context, taskID, localPath string, cause error) {
	slog.Error("task failed", "task_id", taskID, "error", cause)
	if err := os.RemoveAll(localPath); err != nil {
		slog.Warn("clone cleanup failed", "task_id", taskID, "error", err)
	}
	s.updateProgress(ctx, taskID, -1, "task failed: "+cause.Error(), domain.TaskFailed, cause.Error())
}

// updateProgress rewrites the shared progress record. A percentage below
// zero keeps the record's current percentage, so terminal CANCELLED/FAILED
// states never move the bar backwards.
func (s *RAGService) updateProgress(ctx context.Context, taskID string, percentage int, status, state, errMsg string) {
	current, err := s.store.GetTaskProgress(ctx, taskID)
	if err != nil {
		slog.Warn("progress record missing", "task_id", taskID, "error", err)
		return
	}
	if percentage >= 0 {
		current.Percentage = percentage
	}
	current.Status = status
	current.State = state
	current.Error = errMsg
	if err := s.store.SetTaskProgress(ctx, current); err != nil {
		slog.Warn("progress update failed", "task_id", taskID, "error", err)
	}
}

// ExtractProjectName derives the knowledge tag from a repository URL: the
// last path segment with a .git suffix stripped.
func ExtractProjectName(repoURL string) string {
	trimmed := strings.TrimRight(repoURL, "/")
	segment := trimmed[strings.LastIndex(trimmed, "/")+1:]
	return strings.TrimSuffix(segment, ".git")
}
