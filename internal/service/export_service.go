package service

import (
	"context"
	"encoding/json"
	"fmt"
	"section-studio-go/internal/model"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/storage"
	"time"
)

const defaultExportExpiry = 15 * time.Minute

// ExportResult 是导出后的下载信息。
type ExportResult struct {
	ObjectName string    `json:"objectName"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ExportService 把对话导出到对象存储。
type ExportService interface {
	ExportConversation(ctx context.Context, p model.Principal, id string) (*ExportResult, error)
}

type exportService struct {
	conversations ConversationService
	store         storage.ObjectStore
	expiry        time.Duration
	now           func() time.Time
}

// NewExportService 创建一个新的 ExportService。expiry 为预签名地址的有效期。
func NewExportService(conversations ConversationService, store storage.ObjectStore, expiry time.Duration) ExportService {
	if expiry <= 0 {
		expiry = defaultExportExpiry
	}
	return &exportService{
		conversations: conversations,
		store:         store,
		expiry:        expiry,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ExportConversation 通过归属校验加载对话，写入 exports/<shop>/<userId>/<id>.json 并返回预签名下载地址。
func (s *exportService) ExportConversation(ctx context.Context, p model.Principal, id string) (*ExportResult, error) {
	conv, err := s.conversations.LoadConversation(ctx, p, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return nil, persistenceError("encode export", err)
	}

	objectName := fmt.Sprintf("exports/%s/%s/%s.json", p.Shop, p.UserID, conv.ID)
	if err := s.store.Put(ctx, objectName, payload, "application/json"); err != nil {
		return nil, persistenceError("store export", err)
	}
	url, err := s.store.PresignGet(ctx, objectName, conv.ID+".json", s.expiry)
	if err != nil {
		return nil, persistenceError("presign export", err)
	}

	log.Infof("[ExportService] 导出对话 %s 到 %s", conv.ID, objectName)
	return &ExportResult{
		ObjectName: objectName,
		URL:        url,
		ExpiresAt:  s.now().Add(s.expiry),
	}, nil
}
