package biz

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/internal/pkg/htmlutil"
	"github.com/kart-io/support-bridge/internal/supportbridge/metrics"
	"github.com/kart-io/support-bridge/internal/supportbridge/store"
	"github.com/kart-io/support-bridge/pkg/llm"
	"github.com/kart-io/support-bridge/pkg/utils/json"
)

// headingRe marks section boundaries. Only h1-h3 start a new section;
// smaller headings stay inside their parent section.
var headingRe = regexp.MustCompile(`<h[1-3]`)

// Ingestor mirrors help-center articles into the relational store and keeps
// the vector index in lockstep.
type Ingestor struct {
	store    store.SectionStore
	index    store.VectorIndex
	embedder llm.EmbeddingProvider
	metrics  *metrics.Metrics
}

// NewIngestor creates an Ingestor.
func NewIngestor(sectionStore store.SectionStore, index store.VectorIndex, embedder llm.EmbeddingProvider) *Ingestor {
	return &Ingestor{
		store:    sectionStore,
		index:    index,
		embedder: embedder,
		metrics:  metrics.Get(),
	}
}

// Sync ingests the given article listing. Only published articles with a
// body are mirrored; unchanged articles are skipped unless force is set. A
// failure in one article rolls back that article alone and the pass
// continues.
func (i *Ingestor) Sync(ctx context.Context, articles []model.ArticleInput, force bool) (*model.IngestStats, error) {
	stats := &model.IngestStats{}

	for idx := range articles {
		article := &articles[idx]
		if !article.Published() {
			continue
		}
		stats.ArticlesSeen++

		changed, err := i.store.UpsertArticle(ctx, &model.Article{
			ID:          article.ID,
			Title:       article.Title,
			Description: article.Description,
			Body:        article.Body,
			URL:         article.URL,
			UpdatedAt:   article.UpdatedAt,
		})
		if err != nil {
			logger.Errorw("failed to upsert article", "article_id", article.ID, "error", err.Error())
			continue
		}
		if !changed && !force {
			continue
		}
		stats.ArticlesChanged++

		added, removed, healed, err := i.syncArticle(ctx, article)
		if err != nil {
			logger.Errorw("failed to sync article sections",
				"article_id", article.ID,
				"title", article.Title,
				"error", err.Error(),
			)
			continue
		}
		stats.SectionsAdded += added
		stats.SectionsRemoved += removed
		stats.SectionsHealed += healed
	}

	i.metrics.RecordIngest(stats.SectionsAdded, stats.SectionsRemoved, stats.SectionsHealed)
	logger.Infow("article sync finished",
		"articles_seen", stats.ArticlesSeen,
		"articles_changed", stats.ArticlesChanged,
		"sections_added", stats.SectionsAdded,
		"sections_removed", stats.SectionsRemoved,
		"sections_healed", stats.SectionsHealed,
	)
	return stats, nil
}

// syncArticle re-sections one article, diffs against the stored sections by
// checksum, and reconciles both stores. Vector writes happen after the
// relational transaction commits.
func (i *Ingestor) syncArticle(ctx context.Context, article *model.ArticleInput) (added, removed, healed int, err error) {
	contents := sectionContents(article)

	type newSection struct {
		checksum string
		content  string
	}
	var fresh []newSection
	var keptChecksums []string
	var removedChecksums []string
	var newEntries []store.VectorEntry
	var healEntries []store.VectorEntry

	txErr := i.store.Transaction(ctx, func(tx store.SectionStore) error {
		existing, err := tx.SectionsByArticle(ctx, article.ID)
		if err != nil {
			return err
		}
		existingByChecksum := make(map[string]*model.Section, len(existing))
		for idx := range existing {
			existingByChecksum[existing[idx].Checksum] = &existing[idx]
		}

		seen := make(map[string]bool)
		for _, content := range contents {
			checksum := contentChecksum(content)
			if seen[checksum] {
				continue
			}
			seen[checksum] = true

			if _, ok := existingByChecksum[checksum]; ok {
				keptChecksums = append(keptChecksums, checksum)
				continue
			}
			fresh = append(fresh, newSection{checksum: checksum, content: content})
		}

		// Embed all new sections in one batch.
		if len(fresh) > 0 {
			texts := make([]string, len(fresh))
			for idx, s := range fresh {
				texts[idx] = s.content
			}
			embeddings, err := i.embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed sections: %w", err)
			}

			rows := make([]model.Section, len(fresh))
			for idx, s := range fresh {
				rows[idx] = model.Section{
					ArticleID: article.ID,
					Checksum:  s.checksum,
					Content:   s.content,
					Embedding: encodeEmbedding(embeddings[idx]),
				}
				newEntries = append(newEntries, store.VectorEntry{
					Checksum:  s.checksum,
					ArticleID: article.ID,
					Embedding: embeddings[idx],
				})
			}
			if err := tx.CreateSections(ctx, rows); err != nil {
				return err
			}
		}

		// Drop sections whose checksum disappeared from the article.
		for _, sec := range existing {
			if !seen[sec.Checksum] {
				removedChecksums = append(removedChecksums, sec.Checksum)
			}
		}
		if err := tx.DeleteSections(ctx, removedChecksums); err != nil {
			return err
		}

		// Heal kept sections whose vector entry went missing.
		if len(keptChecksums) > 0 {
			present, err := i.index.HasKeys(ctx, keptChecksums)
			if err != nil {
				return fmt.Errorf("failed to check vector index: %w", err)
			}
			for _, checksum := range keptChecksums {
				if present[checksum] {
					continue
				}
				sec := existingByChecksum[checksum]
				embedding := decodeEmbedding(sec.Embedding)
				if embedding == nil {
					embedding, err = i.embedder.EmbedSingle(ctx, sec.Content)
					if err != nil {
						return fmt.Errorf("failed to re-embed section: %w", err)
					}
				}
				healEntries = append(healEntries, store.VectorEntry{
					Checksum:  checksum,
					ArticleID: article.ID,
					Embedding: embedding,
				})
			}
		}
		return nil
	})
	if txErr != nil {
		return 0, 0, 0, txErr
	}

	if err := i.index.Delete(ctx, removedChecksums); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := i.index.Upsert(ctx, append(newEntries, healEntries...)); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	return len(newEntries), len(removedChecksums), len(healEntries), nil
}

// PruneOrphans reconciles drift between the two stores: vector entries
// without a section row are deleted, section rows without a vector entry are
// re-indexed from their stored embedding.
func (i *Ingestor) PruneOrphans(ctx context.Context) error {
	keys, err := i.index.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list index keys: %w", err)
	}
	checksums, err := i.store.AllChecksums(ctx)
	if err != nil {
		return err
	}

	stored := make(map[string]bool, len(checksums))
	for _, c := range checksums {
		stored[c] = true
	}
	indexed := make(map[string]bool, len(keys))
	for _, k := range keys {
		indexed[k] = true
	}

	var orphanKeys []string
	for _, k := range keys {
		if !stored[k] {
			orphanKeys = append(orphanKeys, k)
		}
	}
	if err := i.index.Delete(ctx, orphanKeys); err != nil {
		return fmt.Errorf("failed to delete orphan vectors: %w", err)
	}

	var missing []string
	for _, c := range checksums {
		if !indexed[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sections, err := i.store.SectionsByChecksums(ctx, missing)
		if err != nil {
			return err
		}
		entries := make([]store.VectorEntry, 0, len(sections))
		for _, sec := range sections {
			embedding := decodeEmbedding(sec.Embedding)
			if embedding == nil {
				embedding, err = i.embedder.EmbedSingle(ctx, sec.Content)
				if err != nil {
					return fmt.Errorf("failed to re-embed section: %w", err)
				}
			}
			entries = append(entries, store.VectorEntry{
				Checksum:  sec.Checksum,
				ArticleID: sec.ArticleID,
				Embedding: embedding,
			})
		}
		if err := i.index.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("failed to heal vectors: %w", err)
		}
	}

	if len(orphanKeys) > 0 || len(missing) > 0 {
		logger.Infow("pruned index drift", "orphan_vectors", len(orphanKeys), "healed_sections", len(missing))
	}
	return nil
}

// sectionContents splits the article body into sections, cleans each one,
// and appends the source annotation. Empty sections vanish.
func sectionContents(article *model.ArticleInput) []string {
	annotation := sourceAnnotation(article)
	var contents []string
	for _, raw := range splitSections(article.Body) {
		cleaned := htmlutil.Normalize(raw)
		if cleaned == "" {
			continue
		}
		contents = append(contents, cleaned+annotation)
	}
	return contents
}

// splitSections cuts the body at every h1-h3 opening tag. Content before the
// first heading becomes its own section; a heading always stays attached to
// the content that follows it.
func splitSections(body string) []string {
	locs := headingRe.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		if body == "" {
			return nil
		}
		return []string{body}
	}

	var sections []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			sections = append(sections, body[prev:loc[0]])
		}
		prev = loc[0]
	}
	sections = append(sections, body[prev:])
	return sections
}

// sourceAnnotation links a section back to its article.
func sourceAnnotation(article *model.ArticleInput) string {
	label := article.Title
	if article.Description != "" {
		label = article.Title + " - " + article.Description
	}
	return fmt.Sprintf(`<p><em>Excerpt from <a href="%s" target="_blank">%s</a></em></p>`, article.URL, label)
}

// contentChecksum is the section identity: hex md5 of the final content.
func contentChecksum(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func encodeEmbedding(embedding []float32) string {
	data, err := json.Marshal(embedding)
	if err != nil {
		return ""
	}
	return string(data)
}

// decodeEmbedding returns nil for empty or corrupt blobs so callers know to
// re-embed.
func decodeEmbedding(blob string) []float32 {
	if blob == "" {
		return nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(blob), &embedding); err != nil || len(embedding) == 0 {
		return nil
	}
	return embedding
}
