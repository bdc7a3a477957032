package store

import (
	"context"

	"github.com/milvus-io/milvus/client/v2/entity"

	milvuscomp "github.com/kart-io/support-bridge/pkg/component/milvus"
)

// checksumMaxLen bounds the VarChar primary key; checksums are 32 hex chars.
const checksumMaxLen = 64

// MilvusIndex implements VectorIndex on a Milvus collection.
type MilvusIndex struct {
	client     *milvuscomp.Client
	collection string
	dimension  int
}

// NewMilvusIndex creates a VectorIndex backed by the given collection.
func NewMilvusIndex(client *milvuscomp.Client, collection string, dimension int) *MilvusIndex {
	return &MilvusIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

// Ensure creates the backing collection when missing.
func (m *MilvusIndex) Ensure(ctx context.Context) error {
	return m.client.EnsureCollection(ctx, &milvuscomp.CollectionSchema{
		Name:        m.collection,
		Description: "help center section embeddings keyed by content checksum",
		Dimension:   m.dimension,
		KeyMaxLen:   checksumMaxLen,
		MetaFields: []milvuscomp.MetaField{
			{Name: "article_id", DataType: entity.FieldTypeInt64},
		},
	})
}

// Upsert writes entries, replacing existing keys.
func (m *MilvusIndex) Upsert(ctx context.Context, entries []VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	data := &milvuscomp.UpsertData{
		IDs:        make([]string, len(entries)),
		Embeddings: make([][]float32, len(entries)),
		Metadata: map[string][]any{
			"article_id": make([]any, len(entries)),
		},
	}
	for i, e := range entries {
		data.IDs[i] = e.Checksum
		data.Embeddings[i] = e.Embedding
		data.Metadata["article_id"][i] = e.ArticleID
	}
	return m.client.Upsert(ctx, m.collection, data)
}

// Query returns the topK nearest checksums, best first.
func (m *MilvusIndex) Query(ctx context.Context, embedding []float32, topK int) ([]string, error) {
	results, err := m.client.Search(ctx, m.collection, embedding, topK)
	if err != nil {
		return nil, err
	}
	checksums := make([]string, 0, len(results))
	for _, r := range results {
		checksums = append(checksums, r.ID)
	}
	return checksums, nil
}

// HasKeys reports which checksums exist in the index.
func (m *MilvusIndex) HasKeys(ctx context.Context, checksums []string) (map[string]bool, error) {
	return m.client.HasKeys(ctx, m.collection, checksums)
}

// Delete removes entries by checksum.
func (m *MilvusIndex) Delete(ctx context.Context, checksums []string) error {
	return m.client.DeleteByKeys(ctx, m.collection, checksums)
}

// ListKeys returns every checksum in the index.
func (m *MilvusIndex) ListKeys(ctx context.Context) ([]string, error) {
	return m.client.ListKeys(ctx, m.collection)
}

// Count returns the number of indexed entries.
func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	return m.client.GetCollectionStats(ctx, m.collection)
}

var _ VectorIndex = (*MilvusIndex)(nil)
