package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/internal/supportbridge/store"
	"github.com/kart-io/support-bridge/pkg/llm"
)

// sectionSeparator joins retrieved sections into the context block.
const sectionSeparator = "\n-\n"

// RetrieverConfig configures the context retriever.
type RetrieverConfig struct {
	// TopK is the number of sections fetched per query.
	TopK int
}

// Retriever turns a customer question into a block of help-article context.
type Retriever struct {
	store    store.SectionStore
	index    store.VectorIndex
	embedder llm.EmbeddingProvider
	config   *RetrieverConfig
}

// NewRetriever creates a Retriever.
func NewRetriever(sectionStore store.SectionStore, index store.VectorIndex, embedder llm.EmbeddingProvider, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = &RetrieverConfig{TopK: 10}
	}
	return &Retriever{
		store:    sectionStore,
		index:    index,
		embedder: embedder,
		config:   config,
	}
}

// Retrieve embeds the query, finds the nearest sections, and joins their
// contents in rank order. Checksums without a stored row are skipped; the
// index and the mirror can drift briefly between ingestion passes.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	embedding, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	checksums, err := r.index.Query(ctx, embedding, r.config.TopK)
	if err != nil {
		return "", fmt.Errorf("failed to query index: %w", err)
	}
	if len(checksums) == 0 {
		return "", nil
	}

	sections, err := r.store.SectionsByChecksums(ctx, checksums)
	if err != nil {
		return "", err
	}
	byChecksum := make(map[string]*model.Section, len(sections))
	for i := range sections {
		byChecksum[sections[i].Checksum] = &sections[i]
	}

	contents := make([]string, 0, len(checksums))
	for _, checksum := range checksums {
		sec, ok := byChecksum[checksum]
		if !ok {
			logger.Debugw("indexed section missing from store", "checksum", checksum)
			continue
		}
		contents = append(contents, sec.Content)
	}
	return strings.Join(contents, sectionSeparator), nil
}
