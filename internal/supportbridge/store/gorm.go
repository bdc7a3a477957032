package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kart-io/support-bridge/internal/model"
)

// GormStore implements SectionStore on a gorm DB.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a SectionStore backed by the given DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the article and section tables.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Article{}, &model.Section{})
}

// UpsertArticle inserts or updates the article, ignoring updates whose
// updated_at is not strictly newer than the stored row.
func (s *GormStore) UpsertArticle(ctx context.Context, article *model.Article) (bool, error) {
	var existing model.Article
	err := s.db.WithContext(ctx).First(&existing, article.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
			return false, fmt.Errorf("failed to create article %d: %w", article.ID, err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to load article %d: %w", article.ID, err)
	}

	if existing.UpdatedAt >= article.UpdatedAt {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Save(article).Error; err != nil {
		return false, fmt.Errorf("failed to update article %d: %w", article.ID, err)
	}
	return true, nil
}

// GetArticle returns the article or nil when absent.
func (s *GormStore) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	var article model.Article
	err := s.db.WithContext(ctx).First(&article, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %d: %w", id, err)
	}
	return &article, nil
}

// SectionsByArticle returns all sections of one article.
func (s *GormStore) SectionsByArticle(ctx context.Context, articleID int64) ([]model.Section, error) {
	var sections []model.Section
	if err := s.db.WithContext(ctx).Where("article_id = ?", articleID).Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("failed to load sections for article %d: %w", articleID, err)
	}
	return sections, nil
}

// SectionsByChecksums resolves sections by checksum.
func (s *GormStore) SectionsByChecksums(ctx context.Context, checksums []string) ([]model.Section, error) {
	if len(checksums) == 0 {
		return nil, nil
	}
	var sections []model.Section
	if err := s.db.WithContext(ctx).Where("checksum IN ?", checksums).Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("failed to load sections by checksum: %w", err)
	}
	return sections, nil
}

// CreateSections inserts new sections.
func (s *GormStore) CreateSections(ctx context.Context, sections []model.Section) error {
	if len(sections) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&sections).Error; err != nil {
		return fmt.Errorf("failed to create sections: %w", err)
	}
	return nil
}

// DeleteSections removes sections by checksum.
func (s *GormStore) DeleteSections(ctx context.Context, checksums []string) error {
	if len(checksums) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("checksum IN ?", checksums).Delete(&model.Section{}).Error; err != nil {
		return fmt.Errorf("failed to delete sections: %w", err)
	}
	return nil
}

// AllChecksums returns every stored section checksum.
func (s *GormStore) AllChecksums(ctx context.Context) ([]string, error) {
	var checksums []string
	if err := s.db.WithContext(ctx).Model(&model.Section{}).Pluck("checksum", &checksums).Error; err != nil {
		return nil, fmt.Errorf("failed to list checksums: %w", err)
	}
	return checksums, nil
}

// CountSections returns the number of stored sections.
func (s *GormStore) CountSections(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Section{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sections: %w", err)
	}
	return count, nil
}

// Transaction runs fn inside a gorm transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx SectionStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

var _ SectionStore = (*GormStore)(nil)
