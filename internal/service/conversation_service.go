// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"section-studio-go/internal/config"
	"section-studio-go/internal/model"
	"section-studio-go/internal/repository"
	"section-studio-go/pkg/llm"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/metrics"
	"section-studio-go/pkg/tasks"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	defaultTitle             = "New conversation"
	defaultMaxTitleLength    = 50
	maxStoredTitleLength     = 255
	defaultMaxAppendAttempts = 3
)

// TurnInput 是一次对话轮次的输入。ConversationID 为空时新建对话。
type TurnInput struct {
	ConversationID string
	Message        string
	// TurnID 由客户端生成，重试同一轮时保持不变。
	TurnID string
}

// IndexPublisher 在对话变化后投递索引任务。
type IndexPublisher interface {
	Publish(ctx context.Context, task tasks.ConversationIndexTask) error
}

// ConversationService 定义了对话业务逻辑的接口。每个方法都显式接收调用方的 Principal。
type ConversationService interface {
	ListHistory(ctx context.Context, p model.Principal) ([]model.ConversationSummary, error)
	LoadConversation(ctx context.Context, p model.Principal, id string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, p model.Principal, id string) error
	AppendTurn(ctx context.Context, p model.Principal, in TurnInput, stream llm.MessageWriter) (*model.Conversation, error)
	RenameConversation(ctx context.Context, p model.Principal, id, title string) (*model.Conversation, error)
}

type conversationService struct {
	repo        repository.ConversationRepository
	generator   Generator
	publisher   IndexPublisher
	maxTitle    int
	maxAttempts int
	now         func() time.Time
}

// NewConversationService 创建一个新的 ConversationService。publisher 可以为 nil。
func NewConversationService(repo repository.ConversationRepository, generator Generator, publisher IndexPublisher, cfg config.ConversationConfig) ConversationService {
	s := &conversationService{
		repo:        repo,
		generator:   generator,
		publisher:   publisher,
		maxTitle:    cfg.MaxTitleLength,
		maxAttempts: cfg.MaxAppendAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.maxTitle <= 0 {
		s.maxTitle = defaultMaxTitleLength
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAppendAttempts
	}
	return s
}

// ListHistory 返回调用方的对话摘要，最近活跃的在前。
func (s *conversationService) ListHistory(ctx context.Context, p model.Principal) ([]model.ConversationSummary, error) {
	if !p.Valid() {
		return nil, validationError("shop and user are required")
	}
	summaries, err := s.repo.ListSummaries(ctx, p)
	if err != nil {
		return nil, persistenceError("list conversations", err)
	}
	return summaries, nil
}

// LoadConversation 加载一段完整对话，每次都重新校验归属。
func (s *conversationService) LoadConversation(ctx context.Context, p model.Principal, id string) (*model.Conversation, error) {
	if err := checkTarget(p, id); err != nil {
		return nil, err
	}
	return s.load(ctx, p, id)
}

// DeleteConversation 删除对话。不存在与不属于调用方都视为成功。
func (s *conversationService) DeleteConversation(ctx context.Context, p model.Principal, id string) error {
	if err := checkTarget(p, id); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteOwned(ctx, p, id)
	if err != nil {
		return persistenceError("delete conversation", err)
	}
	if deleted {
		s.publish(ctx, tasks.IndexActionDelete, p, id)
	}
	return nil
}

// RenameConversation 修改标题，返回更新后的对话。
func (s *conversationService) RenameConversation(ctx context.Context, p model.Principal, id, title string) (*model.Conversation, error) {
	if err := checkTarget(p, id); err != nil {
		return nil, err
	}
	title = collapseSpace(title)
	if title == "" {
		return nil, validationError("title is required")
	}
	title = truncateRunes(title, maxStoredTitleLength)

	if err := s.repo.UpdateTitle(ctx, p, id, title); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("rename conversation", err)
	}
	conv, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tasks.IndexActionUpsert, p, id)
	return conv, nil
}

// AppendTurn 追加一轮对话：先持久化用户消息，再调用生成函数，最后追加助手回复。
// 生成失败时返回 *GenerationError，用户消息保留在库中。
func (s *conversationService) AppendTurn(ctx context.Context, p model.Principal, in TurnInput, stream llm.MessageWriter) (*model.Conversation, error) {
	if !p.Valid() {
		return nil, validationError("shop and user are required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, validationError("message is required")
	}

	conv, created, err := s.openConversation(ctx, p, in)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if _, assistantIdx := conv.FindTurn(in.TurnID); assistantIdx >= 0 {
		log.Infof("[ConversationService] 轮次 %s 已完成，直接返回对话 %s", in.TurnID, conv.ID)
		metrics.TurnsTotal.WithLabelValues("deduplicated").Inc()
		return conv, nil
	}

	// 新建的对话已经带着用户消息落库
	if !created {
		conv, err = s.appendMessages(ctx, p, conv, func(c *model.Conversation) []model.ChatMessage {
			if userIdx, _ := c.FindTurn(in.TurnID); userIdx >= 0 {
				return nil
			}
			return []model.ChatMessage{{Role: model.RoleUser, Content: in.Message, TurnID: in.TurnID}}
		})
		if err != nil {
			metrics.TurnsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	// 生成函数拿到的是本轮用户消息之前的完整历史
	userIdx := len(conv.Messages) - 1
	if in.TurnID != "" {
		userIdx, _ = conv.FindTurn(in.TurnID)
	}
	history := append([]model.ChatMessage(nil), conv.Messages[:userIdx]...)

	reply, genErr := s.generator.Generate(ctx, conv.Messages[userIdx].Content, history, stream)
	if genErr != nil {
		log.Errorf("[ConversationService] 对话 %s 生成失败: %v", conv.ID, genErr)
		metrics.TurnsTotal.WithLabelValues("generation_failed").Inc()
		s.publish(ctx, tasks.IndexActionUpsert, p, conv.ID)
		return nil, &GenerationError{ConversationID: conv.ID, Err: genErr}
	}

	conv, err = s.appendMessages(ctx, p, conv, func(c *model.Conversation) []model.ChatMessage {
		if _, assistantIdx := c.FindTurn(in.TurnID); assistantIdx >= 0 {
			return nil
		}
		return []model.ChatMessage{{Role: model.RoleAssistant, Content: reply, TurnID: in.TurnID}}
	})
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	s.publish(ctx, tasks.IndexActionUpsert, p, conv.ID)
	return conv, nil
}

// openConversation 加载已有对话，第二个返回值表示是否为新建。
// ConversationID 为空时新建对话，首条用户消息随记录一次写入，不会出现没有消息的对话。
// 带 TurnID 的首轮重试会找回之前创建的对话。
func (s *conversationService) openConversation(ctx context.Context, p model.Principal, in TurnInput) (*model.Conversation, bool, error) {
	if in.ConversationID != "" {
		conv, err := s.load(ctx, p, in.ConversationID)
		return conv, false, err
	}
	if in.TurnID != "" {
		conv, err := s.repo.FindOwnedByFirstTurn(ctx, p, in.TurnID)
		if err == nil {
			log.Infof("[ConversationService] 轮次 %s 对应已有对话 %s", in.TurnID, conv.ID)
			return conv, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, persistenceError("find conversation by turn", err)
		}
	}

	now := s.now()
	conv := &model.Conversation{
		ID:     uuid.NewString(),
		Shop:   p.Shop,
		UserID: p.UserID,
		Title:  deriveTitle(in.Message, s.maxTitle),
		Messages: []model.ChatMessage{
			{Role: model.RoleUser, Content: in.Message, Timestamp: now, TurnID: in.TurnID},
		},
		FirstTurnID:   in.TurnID,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, false, persistenceError("create conversation", err)
	}
	log.Infof("[ConversationService] 新建对话 %s, shop: %s", conv.ID, p.Shop)
	return conv, true, nil
}

// appendMessages 以乐观锁把 build 返回的消息追加到对话末尾。
// 版本冲突时重新加载对话并重新计算要追加的消息，最多尝试 maxAttempts 次。
// build 返回空切片表示无需追加（例如重试的轮次已经写入）。
func (s *conversationService) appendMessages(ctx context.Context, p model.Principal, conv *model.Conversation, build func(*model.Conversation) []model.ChatMessage) (*model.Conversation, error) {
	for attempt := 1; ; attempt++ {
		added := build(conv)
		if len(added) == 0 {
			return conv, nil
		}

		ts := s.now()
		if ts.Before(conv.LastMessageAt) {
			ts = conv.LastMessageAt
		}
		next := make([]model.ChatMessage, 0, len(conv.Messages)+len(added))
		next = append(next, conv.Messages...)
		for _, m := range added {
			m.Timestamp = ts
			next = append(next, m)
		}

		err := s.repo.UpdateMessages(ctx, p, conv.ID, conv.Version, next, ts)
		if err == nil {
			conv.Messages = next
			conv.LastMessageAt = ts
			conv.Version++
			return conv, nil
		}
		if !errors.Is(err, repository.ErrStaleWrite) {
			return nil, persistenceError("append messages", err)
		}
		if attempt >= s.maxAttempts {
			log.Warnf("[ConversationService] 对话 %s 连续 %d 次版本冲突，放弃写入", conv.ID, attempt)
			return nil, ErrConflict
		}

		metrics.StaleWriteRetries.Inc()
		conv, err = s.load(ctx, p, conv.ID)
		if err != nil {
			return nil, err
		}
	}
}

func (s *conversationService) load(ctx context.Context, p model.Principal, id string) (*model.Conversation, error) {
	conv, err := s.repo.FindOwned(ctx, p, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("load conversation", err)
	}
	return conv, nil
}

// publish 投递索引任务。索引是派生数据，投递失败只记录日志。
func (s *conversationService) publish(ctx context.Context, action string, p model.Principal, id string) {
	if s.publisher == nil {
		return
	}
	task := tasks.ConversationIndexTask{Action: action, ConversationID: id, Shop: p.Shop, UserID: p.UserID}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), task); err != nil {
		log.Warnf("[ConversationService] 投递索引任务失败, conversation: %s, action: %s, error: %v", id, action, err)
	}
}

func checkTarget(p model.Principal, id string) error {
	if !p.Valid() {
		return validationError("shop and user are required")
	}
	if strings.TrimSpace(id) == "" {
		return validationError("conversation id is required")
	}
	return nil
}

// deriveTitle 由首条用户消息生成标题：折叠空白，超过 maxLen 个字符时截断并追加省略号。
func deriveTitle(message string, maxLen int) string {
	title := collapseSpace(message)
	if title == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(title) <= maxLen {
		return title
	}
	return strings.TrimSpace(truncateRunes(title, maxLen)) + "…"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
