package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ragswitch/ragswitch/internal/domain"
)

// VectorStore implements port.VectorRepository on pgvector. Documents carry
// their knowledge tag in the metadata JSONB column under the "knowledge" key.
type VectorStore struct {
	store *PostgresStore
}

// NewVectorStore creates a vector repository backed by the given Postgres store.
func NewVectorStore(store *PostgresStore) *VectorStore {
	return &VectorStore{store: store}
}

// Insert persists documents and their vectors in one transaction.
func (v *VectorStore) Insert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("insert: %d documents but %d vectors", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vector_store (content, metadata, embedding) VALUES ($1, $2, $3::vector)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, doc.Content, meta, vectorToString(vectors[i])); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}

	return tx.Commit()
}

// Search performs a cosine similarity search. A non-empty tag list restricts
// hits to documents whose knowledge tag matches any of the tags; only hits at
// or above threshold are returned.
func (v *VectorStore) Search(ctx context.Context, vector []float32, tags []string, topK int, threshold float64) ([]domain.SimilarDocument, error) {
	query := `SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
	          FROM vector_store`
	args := []interface{}{vectorToString(vector)}

	if len(tags) > 0 {
		query += ` WHERE metadata->>'knowledge' = ANY($2)`
		args = append(args, pq.Array(tags))
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1::vector LIMIT %d`, topK)

	rows, err := v.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var results []domain.SimilarDocument
	for rows.Next() {
		var (
			sd      domain.SimilarDocument
			rawMeta []byte
		)
		if err := rows.Scan(&sd.ID, &sd.Content, &rawMeta, &sd.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		if err := json.Unmarshal(rawMeta, &sd.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if sd.Similarity >= threshold {
			results = append(results, sd)
		}
	}
	return results, rows.Err()
}

// DeleteByTag removes all documents carrying the given knowledge tag.
func (v *VectorStore) DeleteByTag(ctx context.Context, tag string) (int64, error) {
	res, err := v.store.db.ExecContext(ctx,
		`DELETE FROM vector_store WHERE metadata->>'knowledge' = $1`, tag)
	if err != nil {
		return 0, fmt.Errorf("delete by tag %q: %w", tag, err)
	}
	return res.RowsAffected()
}

// CountByTag counts documents carrying the given knowledge tag.
func (v *VectorStore) CountByTag(ctx context.Context, tag string) (int64, error) {
	var n int64
	err := v.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vector_store WHERE metadata->>'knowledge' = $1`, tag).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by tag %q: %w", tag, err)
	}
	return n, nil
}

// CountAll counts every stored document.
func (v *VectorStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := v.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_store`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count all: %w", err)
	}
	return n, nil
}

// Truncate removes every stored document. Destructive; reached only through
// forced embedding activation.
func (v *VectorStore) Truncate(ctx context.Context) error {
	if _, err := v.store.db.ExecContext(ctx, `TRUNCATE TABLE vector_store`); err != nil {
		return fmt.Errorf("truncate vector_store: %w", err)
	}
	return nil
}

// AlterDimension changes the stored vector width. Existing vectors must have
// been truncated first; pgvector refuses an in-place width change otherwise.
func (v *VectorStore) AlterDimension(ctx context.Context, dimension int) error {
	stmt := fmt.Sprintf(`ALTER TABLE vector_store ALTER COLUMN embedding TYPE vector(%d)`, dimension)
	if _, err := v.store.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("alter vector dimension to %d: %w", dimension, err)
	}
	return nil
}

// vectorToString converts a float32 slice to pgvector string format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
