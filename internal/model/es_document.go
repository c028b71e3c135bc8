package model

import (
	"strings"
	"time"
)

// ConversationDocument 是写入 Elasticsearch 的对话检索投影。
type ConversationDocument struct {
	ConversationID string    `json:"conversation_id"`
	Shop           string    `json:"shop"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

// ConversationSearchHit 定义了返回给前端的检索结果。
type ConversationSearchHit struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	Score          float64   `json:"score"`
}

// NewConversationDocument 由完整对话构建检索投影，正文为所有消息内容按顺序拼接。
func NewConversationDocument(conv *Conversation) ConversationDocument {
	parts := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		parts = append(parts, m.Content)
	}
	return ConversationDocument{
		ConversationID: conv.ID,
		Shop:           conv.Shop,
		UserID:         conv.UserID,
		Title:          conv.Title,
		Content:        strings.Join(parts, "\n\n"),
		LastMessageAt:  conv.LastMessageAt,
	}
}
