package service

import (
	"context"
	"errors"
	"fmt"
	"section-studio-go/internal/model"
	"section-studio-go/internal/repository"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/shopify"
	"sort"
	"strings"
	"time"
)

const mainThemeRole = "main"

// AdminAPI 是主题查询所需的 Shopify Admin API 能力，由 shopify.Client 实现。
type AdminAPI interface {
	ExchangeSessionToken(ctx context.Context, shop, sessionToken string) (string, error)
	ListThemes(ctx context.Context, shop, accessToken string) ([]model.Theme, error)
}

// ThemeService 查询店铺主题并按固定规则排序。
type ThemeService interface {
	ListThemes(ctx context.Context, shop, sessionToken string) ([]model.Theme, error)
}

type themeService struct {
	admin    AdminAPI
	tokens   repository.ShopTokenRepository
	tokenTTL time.Duration
}

// NewThemeService 创建一个新的 ThemeService。tokenTTL 是 access token 的缓存时间。
func NewThemeService(admin AdminAPI, tokens repository.ShopTokenRepository, tokenTTL time.Duration) ThemeService {
	return &themeService{admin: admin, tokens: tokens, tokenTTL: tokenTTL}
}

// ListThemes 使用缓存的 access token 查询主题；缓存的 token 被拒绝时换取新 token 重试一次。
func (s *themeService) ListThemes(ctx context.Context, shop, sessionToken string) ([]model.Theme, error) {
	if shop == "" || sessionToken == "" {
		return nil, validationError("shop session is required")
	}

	accessToken, cached, err := s.tokens.Get(ctx, shop)
	if err != nil {
		// 缓存不可用时直接换取，不影响主流程
		log.Warnf("[ThemeService] 读取 token 缓存失败, shop: %s, error: %v", shop, err)
	}
	if !cached {
		if accessToken, err = s.exchange(ctx, shop, sessionToken); err != nil {
			return nil, err
		}
	}

	themes, err := s.admin.ListThemes(ctx, shop, accessToken)
	if errors.Is(err, shopify.ErrUnauthorized) && cached {
		log.Infof("[ThemeService] 缓存的 token 已失效, shop: %s", shop)
		if delErr := s.tokens.Delete(ctx, shop); delErr != nil {
			log.Warnf("[ThemeService] 删除 token 缓存失败: %v", delErr)
		}
		if accessToken, err = s.exchange(ctx, shop, sessionToken); err != nil {
			return nil, err
		}
		themes, err = s.admin.ListThemes(ctx, shop, accessToken)
	}
	if err != nil {
		return nil, upstreamError("list themes", err)
	}

	SortThemes(themes)
	return themes, nil
}

func (s *themeService) exchange(ctx context.Context, shop, sessionToken string) (string, error) {
	accessToken, err := s.admin.ExchangeSessionToken(ctx, shop, sessionToken)
	if err != nil {
		return "", upstreamError("exchange session token", err)
	}
	if err := s.tokens.Set(ctx, shop, accessToken, s.tokenTTL); err != nil {
		log.Warnf("[ThemeService] 写入 token 缓存失败, shop: %s, error: %v", shop, err)
	}
	return accessToken, nil
}

// SortThemes 把 role 为 main 的主题排在最前，其余按名称（忽略大小写）排序，同名时按 id。
func SortThemes(themes []model.Theme) {
	sort.SliceStable(themes, func(i, j int) bool {
		a, b := themes[i], themes[j]
		aMain, bMain := a.Role == mainThemeRole, b.Role == mainThemeRole
		if aMain != bMain {
			return aMain
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
}

func upstreamError(op string, err error) error {
	if errors.Is(err, shopify.ErrUnauthorized) {
		return fmt.Errorf("%w: %s: %w", ErrUnauthorized, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
