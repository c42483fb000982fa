package port

import (
	"context"

	"github.com/ragswitch/ragswitch/internal/domain"
)

// ConfigStore is the shared key-value store backing provider configurations,
// the two active-configuration pointers, the knowledge tag set, and the
// per-task progress and cancellation cells. It is shared across process
// instances; last-writer-wins is acceptable for configuration CRUD.
type ConfigStore interface {
	GetConfig(ctx context.Context, id string) (*domain.ProviderConfig, error)
	ListConfigs(ctx context.Context) ([]*domain.ProviderConfig, error)
	PutConfig(ctx context.Context, cfg *domain.ProviderConfig) error
	DeleteConfig(ctx context.Context, id string) error

	GetActiveChatID(ctx context.Context) (string, error)
	SetActiveChatID(ctx context.Context, id string) error
	GetActiveEmbeddingID(ctx context.Context) (string, error)
	SetActiveEmbeddingID(ctx context.Context, id string) error

	ListTags(ctx context.Context) ([]string, error)
	AddTag(ctx context.Context, tag string) error
	RemoveTag(ctx context.Context, tag string) error
	ClearTags(ctx context.Context) error
	CountTags(ctx context.Context) (int64, error)

	GetTaskProgress(ctx context.Context, taskID string) (*domain.TaskProgress, error)
	SetTaskProgress(ctx context.Context, progress *domain.TaskProgress) error
	RequestCancel(ctx context.Context, taskID string) error
	IsCancelRequested(ctx context.Context, taskID string) (bool, error)
	ClearCancel(ctx context.Context, taskID string) error
}

// VectorRepository is the opaque vector-similarity store. Destructive
// operations (Truncate, AlterDimension) must only be reached through the
// forced embedding activation path.
type VectorRepository interface {
	Insert(ctx context.Context, docs []domain.Document, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, tags []string, topK int, threshold float64) ([]domain.SimilarDocument, error)
	DeleteByTag(ctx context.Context, tag string) (int64, error)
	CountByTag(ctx context.Context, tag string) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	Truncate(ctx context.Context) error
	AlterDimension(ctx context.Context, dimension int) error
}

// VCSProvider abstracts repository acquisition for ingestion.
type VCSProvider interface {
	// Clone clones the repository at url into dest, authenticating with
	// username/token when provided.
	Clone(ctx context.Context, url, dest, username, token string) error
}

// TextExtractor turns a raw file into plain text suitable for chunking.
type TextExtractor interface {
	Extract(name string, data []byte) (string, error)
}
