// Package shopify 封装了对 Shopify Admin API 的访问：会话令牌换取 access token 与主题查询。
package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"section-studio-go/internal/config"
	"section-studio-go/internal/model"
	"section-studio-go/pkg/log"
	"strings"
	"time"

	"resty.dev/v3"
)

// ErrUnauthorized 表示 Admin API 拒绝了 access token，调用方应丢弃缓存后重试。
var ErrUnauthorized = errors.New("shopify admin api unauthorized")

const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	subjectTokenTypeIDJWT  = "urn:ietf:params:oauth:token-type:id_token"
	offlineAccessTokenType = "urn:shopify:params:oauth:token-type:offline-access-token"
)

const themesQuery = `query SectionStudioThemes {
  themes(first: 50) {
    nodes { id name role createdAt updatedAt }
  }
}`

// Client 访问单个应用下所有店铺的 Admin API。
type Client struct {
	http    *resty.Client
	cfg     config.ShopifyConfig
	shopURL func(shop string) string
}

// Option 用于调整 Client。
type Option func(*Client)

// WithShopURL 覆盖店铺根地址的生成方式，测试中指向 httptest 服务。
func WithShopURL(fn func(shop string) string) Option {
	return func(c *Client) { c.shopURL = fn }
}

// NewClient 创建 Admin API 客户端。
func NewClient(cfg config.ShopifyConfig, opts ...Option) *Client {
	httpClient := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	httpClient.AddResponseMiddleware(func(_ *resty.Client, r *resty.Response) error {
		log.Infow("Shopify Admin API",
			"status", r.StatusCode(),
			"method", r.Request.RawRequest.Method,
			"host", r.Request.RawRequest.URL.Host,
			"path", r.Request.RawRequest.URL.Path,
		)
		return nil
	})

	c := &Client{
		http:    httpClient,
		cfg:     cfg,
		shopURL: func(shop string) string { return "https://" + shop },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close 释放底层连接。
func (c *Client) Close() error {
	return c.http.Close()
}

type tokenExchangeRequest struct {
	ClientID           string `json:"client_id"`
	ClientSecret       string `json:"client_secret"`
	GrantType          string `json:"grant_type"`
	SubjectToken       string `json:"subject_token"`
	SubjectTokenType   string `json:"subject_token_type"`
	RequestedTokenType string `json:"requested_token_type"`
}

type tokenExchangeResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ExchangeSessionToken 用 App Bridge 会话令牌换取离线 access token。
func (c *Client) ExchangeSessionToken(ctx context.Context, shop, sessionToken string) (string, error) {
	var out tokenExchangeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(tokenExchangeRequest{
			ClientID:           c.cfg.APIKey,
			ClientSecret:       c.cfg.APISecret,
			GrantType:          grantTypeTokenExchange,
			SubjectToken:       sessionToken,
			SubjectTokenType:   subjectTokenTypeIDJWT,
			RequestedTokenType: offlineAccessTokenType,
		}).
		SetResult(&out).
		Post(c.shopURL(shop) + "/admin/oauth/access_token")
	if err != nil {
		return "", fmt.Errorf("token exchange request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusBadRequest {
		return "", fmt.Errorf("%w: token exchange returned %d", ErrUnauthorized, resp.StatusCode())
	}
	if resp.IsError() {
		return "", fmt.Errorf("token exchange returned status %d", resp.StatusCode())
	}
	if out.AccessToken == "" {
		return "", errors.New("token exchange returned no access token")
	}
	return out.AccessToken, nil
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type themesResponse struct {
	Data struct {
		Themes struct {
			Nodes []struct {
				ID        string    `json:"id"`
				Name      string    `json:"name"`
				Role      string    `json:"role"`
				CreatedAt time.Time `json:"createdAt"`
				UpdatedAt time.Time `json:"updatedAt"`
			} `json:"nodes"`
		} `json:"themes"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ListThemes 通过 GraphQL 查询店铺的主题，role 统一转为小写，不做排序。
func (c *Client) ListThemes(ctx context.Context, shop, accessToken string) ([]model.Theme, error) {
	var out themesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		SetBody(graphQLRequest{Query: themesQuery}).
		SetResult(&out).
		Post(fmt.Sprintf("%s/admin/api/%s/graphql.json", c.shopURL(shop), c.cfg.APIVersion))
	if err != nil {
		return nil, fmt.Errorf("themes query failed: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return nil, fmt.Errorf("%w: themes query returned %d", ErrUnauthorized, resp.StatusCode())
	}
	if resp.IsError() {
		return nil, fmt.Errorf("themes query returned status %d", resp.StatusCode())
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("themes query errors: %s", strings.Join(msgs, "; "))
	}

	themes := make([]model.Theme, 0, len(out.Data.Themes.Nodes))
	for _, n := range out.Data.Themes.Nodes {
		themes = append(themes, model.Theme{
			ID:        n.ID,
			Name:      n.Name,
			Role:      strings.ToLower(n.Role),
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		})
	}
	return themes, nil
}
