package model

import "time"

// AISection 是 AI 生成并由商家保存的 theme section。
// 它只归属于 shop，同一店铺的所有操作员都能看到，这一点与 Conversation 不同。
type AISection struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Shop           string    `gorm:"type:varchar(255);not null;index:idx_ai_section_shop,priority:1" json:"shop"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Content        string    `gorm:"type:longtext;not null" json:"content"`
	ConversationID string    `gorm:"type:varchar(36)" json:"conversationId,omitempty"`
	CreatedAt      time.Time `gorm:"not null;index:idx_ai_section_shop,priority:2" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AISection) TableName() string {
	return "ai_sections"
}

// Page 是列表查询的分页参数，Limit <= 0 表示不限制条数。
type Page struct {
	Limit  int
	Offset int
}
