// Package pipeline 定义了对话索引任务的处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"section-studio-go/internal/model"
	"section-studio-go/internal/repository"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/metrics"
	"section-studio-go/pkg/tasks"
)

// DocumentIndex 是检索索引的写入端，由 es.Indexer 实现。
type DocumentIndex interface {
	IndexConversation(ctx context.Context, doc model.ConversationDocument) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Processor 封装了索引任务的所有依赖和逻辑。
type Processor struct {
	conversationRepo repository.ConversationRepository
	index            DocumentIndex
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(conversationRepo repository.ConversationRepository, index DocumentIndex) *Processor {
	return &Processor{
		conversationRepo: conversationRepo,
		index:            index,
	}
}

// Process 是索引任务的主函数。
// upsert 任务总是按任务中的 shop/user 重新加载对话，因此索引内容永远来自库中的最新状态。
func (p *Processor) Process(ctx context.Context, task tasks.ConversationIndexTask) error {
	log.Infof("[Processor] 开始处理索引任务, action: %s, conversation: %s", task.Action, task.ConversationID)

	var err error
	switch task.Action {
	case tasks.IndexActionUpsert:
		err = p.upsert(ctx, task)
	case tasks.IndexActionDelete:
		err = p.index.DeleteConversation(ctx, task.ConversationID)
	default:
		// 未知动作无法重试成功，直接丢弃
		log.Warnf("[Processor] 未知的索引动作 '%s', 跳过", task.Action)
		metrics.IndexTasks.WithLabelValues(task.Action, "skipped").Inc()
		return nil
	}

	if err != nil {
		metrics.IndexTasks.WithLabelValues(task.Action, "failed").Inc()
		return err
	}
	metrics.IndexTasks.WithLabelValues(task.Action, "ok").Inc()
	log.Infof("[Processor] 索引任务完成, conversation: %s", task.ConversationID)
	return nil
}

func (p *Processor) upsert(ctx context.Context, task tasks.ConversationIndexTask) error {
	owner := model.Principal{Shop: task.Shop, UserID: task.UserID}
	conv, err := p.conversationRepo.FindOwned(ctx, owner, task.ConversationID)
	if errors.Is(err, repository.ErrNotFound) {
		// 对话在任务投递后被删除
		log.Infof("[Processor] 对话 %s 已不存在, 从索引中移除", task.ConversationID)
		return p.index.DeleteConversation(ctx, task.ConversationID)
	}
	if err != nil {
		return fmt.Errorf("加载对话失败: %w", err)
	}
	if err := p.index.IndexConversation(ctx, model.NewConversationDocument(conv)); err != nil {
		return fmt.Errorf("写入索引失败: %w", err)
	}
	return nil
}
