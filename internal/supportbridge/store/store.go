// Package store defines the persistence interfaces for the article mirror
// and the section vector index.
package store

import (
	"context"

	"github.com/kart-io/support-bridge/internal/model"
)

// SectionStore persists articles and their indexed sections.
type SectionStore interface {
	// UpsertArticle inserts or updates the article. Updates with a stale
	// updated_at are silently ignored; changed reports whether anything was
	// written.
	UpsertArticle(ctx context.Context, article *model.Article) (changed bool, err error)

	// GetArticle returns the article or nil when absent.
	GetArticle(ctx context.Context, id int64) (*model.Article, error)

	// SectionsByArticle returns all sections of one article.
	SectionsByArticle(ctx context.Context, articleID int64) ([]model.Section, error)

	// SectionsByChecksums resolves sections by checksum. Missing checksums
	// are simply absent from the result.
	SectionsByChecksums(ctx context.Context, checksums []string) ([]model.Section, error)

	// CreateSections inserts new sections.
	CreateSections(ctx context.Context, sections []model.Section) error

	// DeleteSections removes sections by checksum.
	DeleteSections(ctx context.Context, checksums []string) error

	// AllChecksums returns every stored section checksum.
	AllChecksums(ctx context.Context) ([]string, error)

	// CountSections returns the number of stored sections.
	CountSections(ctx context.Context) (int64, error)

	// Transaction runs fn inside a transaction. The SectionStore passed to
	// fn is bound to that transaction; any error rolls it back.
	Transaction(ctx context.Context, fn func(tx SectionStore) error) error
}

// VectorEntry is one keyed embedding bound for the vector index.
type VectorEntry struct {
	Checksum  string
	ArticleID int64
	Embedding []float32
}

// VectorIndex is the semantic search index over section embeddings. Keys are
// section checksums, so index rows and relational rows stay correlated.
type VectorIndex interface {
	// Ensure creates the backing collection when missing.
	Ensure(ctx context.Context) error

	// Upsert writes entries, replacing existing keys.
	Upsert(ctx context.Context, entries []VectorEntry) error

	// Query returns the topK nearest checksums, best first.
	Query(ctx context.Context, embedding []float32, topK int) ([]string, error)

	// HasKeys reports which checksums exist in the index.
	HasKeys(ctx context.Context, checksums []string) (map[string]bool, error)

	// Delete removes entries by checksum.
	Delete(ctx context.Context, checksums []string) error

	// ListKeys returns every checksum in the index.
	ListKeys(ctx context.Context) ([]string, error)

	// Count returns the number of indexed entries.
	Count(ctx context.Context) (int64, error)
}
