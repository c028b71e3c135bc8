// Package model 包含了应用的数据模型定义。
package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Principal 是每个核心操作必须显式携带的调用方身份。
// Shop 与 UserID 由会话令牌校验后给出，核心逻辑只信任、不推导。
type Principal struct {
	Shop   string `json:"shop"`
	UserID string `json:"userId"`
}

// Valid 报告两个字段是否都已填写。
func (p Principal) Valid() bool {
	return p.Shop != "" && p.UserID != ""
}

// ChatMessage 代表对话中的单条消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// TurnID 由客户端提供，用于重试时去重，同一轮的 user/assistant 消息共享同一个值。
	TurnID string `json:"turnId,omitempty"`
}

// Conversation 是按 shop + user 归属的一段完整对话。
// Messages 在库中以单个 blob 列保存，读写都经过 EncodeMessages / DecodeMessages。
type Conversation struct {
	ID            string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Shop          string        `gorm:"type:varchar(255);not null;index:idx_conversation_owner,priority:1" json:"shop"`
	UserID        string        `gorm:"type:varchar(64);not null;index:idx_conversation_owner,priority:2" json:"userId"`
	Title         string        `gorm:"type:varchar(255);not null" json:"title"`
	MessagesBlob  string        `gorm:"column:messages;type:longtext;not null" json:"-"`
	Messages      []ChatMessage `gorm:"-" json:"messages"`
	Version       int64         `gorm:"not null;default:0" json:"-"`
	// FirstTurnID 是创建对话那一轮的 TurnID，首轮重试时据此找回对话。
	FirstTurnID   string        `gorm:"type:varchar(64);index:idx_conversation_first_turn" json:"-"`
	CreatedAt     time.Time     `gorm:"not null" json:"createdAt"`
	LastMessageAt time.Time     `gorm:"not null;index:idx_conversation_owner,priority:3" json:"lastMessageAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationSummary 是历史列表中的一项，不含消息正文。
type ConversationSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FindTurn 返回指定 turnID 的 user 消息下标和 assistant 消息下标，不存在时为 -1。
func (c *Conversation) FindTurn(turnID string) (userIdx, assistantIdx int) {
	userIdx, assistantIdx = -1, -1
	if turnID == "" {
		return
	}
	for i, m := range c.Messages {
		if m.TurnID != turnID {
			continue
		}
		switch m.Role {
		case RoleUser:
			if userIdx < 0 {
				userIdx = i
			}
		case RoleAssistant:
			if assistantIdx < 0 {
				assistantIdx = i
			}
		}
	}
	return
}
