package service

import (
	"context"
	"section-studio-go/internal/model"
	"section-studio-go/internal/repository"
	"section-studio-go/pkg/log"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxArtifactPageSize = 100
	defaultArtifactName = "AI section"
)

// ArtifactInput 是保存一个生成 section 的请求内容。
type ArtifactInput struct {
	Name           string
	Content        string
	ConversationID string
}

// ArtifactService 管理店铺级别的 AI section。这里只有 shop，没有 user 维度。
type ArtifactService interface {
	ListArtifacts(ctx context.Context, shop string, page model.Page) ([]model.AISection, error)
	CreateArtifact(ctx context.Context, shop string, in ArtifactInput) (*model.AISection, error)
}

type artifactService struct {
	repo repository.ArtifactRepository
	now  func() time.Time
}

// NewArtifactService 创建一个新的 ArtifactService。
func NewArtifactService(repo repository.ArtifactRepository) ArtifactService {
	return &artifactService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// ListArtifacts 按创建时间倒序返回店铺的 section。Limit <= 0 不分页（此时不接受 offset），正数上限为 100。
func (s *artifactService) ListArtifacts(ctx context.Context, shop string, page model.Page) ([]model.AISection, error) {
	if strings.TrimSpace(shop) == "" {
		return nil, validationError("shop is required")
	}
	if page.Limit > maxArtifactPageSize {
		page.Limit = maxArtifactPageSize
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	if page.Offset > 0 && page.Limit <= 0 {
		// 不分页时 offset 没有意义，静默忽略会返回完整列表
		return nil, validationError("offset requires a positive limit")
	}
	sections, err := s.repo.ListByShop(ctx, shop, page)
	if err != nil {
		return nil, persistenceError("list sections", err)
	}
	return sections, nil
}

// CreateArtifact 保存一个生成的 section。
func (s *artifactService) CreateArtifact(ctx context.Context, shop string, in ArtifactInput) (*model.AISection, error) {
	if strings.TrimSpace(shop) == "" {
		return nil, validationError("shop is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, validationError("section content is required")
	}
	name := collapseSpace(in.Name)
	if name == "" {
		name = defaultArtifactName
	}
	section := &model.AISection{
		ID:             uuid.NewString(),
		Shop:           shop,
		Name:           truncateRunes(name, maxStoredTitleLength),
		Content:        in.Content,
		ConversationID: in.ConversationID,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, persistenceError("create section", err)
	}
	log.Infof("[ArtifactService] 保存 section %s, shop: %s", section.ID, shop)
	return section, nil
}
