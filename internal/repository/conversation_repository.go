// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"section-studio-go/internal/model"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 表示记录不存在，或不属于给定的 shop/user。两种情况不做区分。
	ErrNotFound = errors.New("record not found")
	// ErrStaleWrite 表示写入时版本号已被其他请求推进。
	ErrStaleWrite = errors.New("stale write")
)

// ConversationRepository 定义了对话的持久化操作。
// 所有读写都同时按 shop 和 user_id 过滤，不提供仅按 id 访问的方法。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindOwned(ctx context.Context, p model.Principal, id string) (*model.Conversation, error)
	FindOwnedByFirstTurn(ctx context.Context, p model.Principal, turnID string) (*model.Conversation, error)
	ListSummaries(ctx context.Context, p model.Principal) ([]model.ConversationSummary, error)
	UpdateMessages(ctx context.Context, p model.Principal, id string, expectedVersion int64, messages []model.ChatMessage, lastMessageAt time.Time) error
	UpdateTitle(ctx context.Context, p model.Principal, id, title string) error
	DeleteOwned(ctx context.Context, p model.Principal, id string) (bool, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) owned(ctx context.Context, p model.Principal) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("shop = ? AND user_id = ?", p.Shop, p.UserID)
}

// Create 写入一条新的对话记录，消息序列先经过编码。
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	blob, err := model.EncodeMessages(conv.Messages)
	if err != nil {
		return err
	}
	conv.MessagesBlob = blob
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// FindOwned 加载归属于 p 的对话并解码消息。
func (r *conversationRepository) FindOwned(ctx context.Context, p model.Principal, id string) (*model.Conversation, error) {
	return r.first(r.owned(ctx, p).Where("id = ?", id))
}

// FindOwnedByFirstTurn 按创建时的 TurnID 查找归属于 p 的对话，有多条时取最早创建的。
func (r *conversationRepository) FindOwnedByFirstTurn(ctx context.Context, p model.Principal, turnID string) (*model.Conversation, error) {
	if turnID == "" {
		return nil, ErrNotFound
	}
	return r.first(r.owned(ctx, p).Where("first_turn_id = ?", turnID).Order("created_at ASC"))
}

func (r *conversationRepository) first(q *gorm.DB) (*model.Conversation, error) {
	var conv model.Conversation
	err := q.First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	messages, err := model.DecodeMessages(conv.MessagesBlob)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conv.ID, err)
	}
	conv.Messages = messages
	return &conv, nil
}

// ListSummaries 按最近消息时间倒序返回对话摘要，不读取消息列。
func (r *conversationRepository) ListSummaries(ctx context.Context, p model.Principal) ([]model.ConversationSummary, error) {
	summaries := []model.ConversationSummary{}
	err := r.owned(ctx, p).
		Select("id", "title", "last_message_at", "created_at").
		Order("last_message_at DESC").
		Order("created_at DESC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summaries, nil
}

// UpdateMessages 以乐观锁方式整体替换消息序列。
// 只有当库中 version 仍等于 expectedVersion 时才会写入，否则返回 ErrStaleWrite。
func (r *conversationRepository) UpdateMessages(ctx context.Context, p model.Principal, id string, expectedVersion int64, messages []model.ChatMessage, lastMessageAt time.Time) error {
	blob, err := model.EncodeMessages(messages)
	if err != nil {
		return err
	}
	res := r.owned(ctx, p).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"messages":        blob,
			"last_message_at": lastMessageAt,
			"version":         gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation messages: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// UpdateTitle 修改对话标题。
func (r *conversationRepository) UpdateTitle(ctx context.Context, p model.Principal, id, title string) error {
	res := r.owned(ctx, p).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL 在新旧值相同时也会返回 0，这里再确认一次记录是否存在
		var count int64
		if err := r.owned(ctx, p).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// DeleteOwned 删除归属于 p 的对话，返回是否真的删除了记录。
func (r *conversationRepository) DeleteOwned(ctx context.Context, p model.Principal, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND shop = ? AND user_id = ?", id, p.Shop, p.UserID).
		Delete(&model.Conversation{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
