package model

import "time"

// Theme 是 Shopify Admin API 返回的主题信息。
type Theme struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"` // "main"、"unpublished"、"development" 等，统一为小写
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
