package repository

import (
	"context"
	"fmt"
	"section-studio-go/internal/model"

	"gorm.io/gorm"
)

// ArtifactRepository 定义了 AI section 的持久化操作，只按 shop 过滤。
type ArtifactRepository interface {
	Create(ctx context.Context, section *model.AISection) error
	ListByShop(ctx context.Context, shop string, page model.Page) ([]model.AISection, error)
}

type artifactRepository struct {
	db *gorm.DB
}

// NewArtifactRepository 创建一个新的 ArtifactRepository 实例。
func NewArtifactRepository(db *gorm.DB) ArtifactRepository {
	return &artifactRepository{db: db}
}

// Create 写入一条新的 section 记录。
func (r *artifactRepository) Create(ctx context.Context, section *model.AISection) error {
	if err := r.db.WithContext(ctx).Create(section).Error; err != nil {
		return fmt.Errorf("failed to create ai section: %w", err)
	}
	return nil
}

// ListByShop 按创建时间倒序列出店铺的 section。
func (r *artifactRepository) ListByShop(ctx context.Context, shop string, page model.Page) ([]model.AISection, error) {
	sections := []model.AISection{}
	q := r.db.WithContext(ctx).
		Where("shop = ?", shop).
		Order("created_at DESC").
		Order("id DESC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset)
	}
	if err := q.Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("failed to list ai sections: %w", err)
	}
	return sections, nil
}
