// Package service 提供了搜索相关的业务逻辑。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"section-studio-go/internal/model"
	"section-studio-go/internal/repository"
	"section-studio-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

// SearchService 接口定义了对话检索操作。
type SearchService interface {
	SearchConversations(ctx context.Context, p model.Principal, query string, size int) ([]model.ConversationSearchHit, error)
}

type searchService struct {
	esClient      *elasticsearch.Client
	indexName     string
	conversations repository.ConversationRepository
}

// NewSearchService 创建一个新的 SearchService 实例。
// conversations 用于确认命中的对话仍然存在，索引只是派生数据，可能落后于库。
func NewSearchService(esClient *elasticsearch.Client, indexName string, conversations repository.ConversationRepository) SearchService {
	return &searchService{esClient: esClient, indexName: indexName, conversations: conversations}
}

// SearchConversations 在对话投影上做全文检索，结果只包含调用方自己的对话。
func (s *searchService) SearchConversations(ctx context.Context, p model.Principal, query string, size int) ([]model.ConversationSearchHit, error) {
	if !p.Valid() {
		return nil, validationError("shop and user are required")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationError("query is required")
	}
	size = clampSearchSize(size)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(p, query, size)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[SearchService] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("%w: elasticsearch search: %w", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[SearchService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("%w: elasticsearch returned %s", ErrUpstream, res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ConversationDocument `json:"_source"`
				Score  float64                    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("%w: decode es response: %w", ErrUpstream, err)
	}

	summaries, err := s.conversations.ListSummaries(ctx, p)
	if err != nil {
		return nil, persistenceError("list conversations", err)
	}
	live := make(map[string]model.ConversationSummary, len(summaries))
	for _, sum := range summaries {
		live[sum.ID] = sum
	}

	hits := make([]model.ConversationSearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		// 过滤条件已在查询中给出，这里再校验一次归属
		if h.Source.Shop != p.Shop || h.Source.UserID != p.UserID {
			continue
		}
		// 已删除但索引尚未同步的对话不返回；标题和时间以库中为准
		sum, ok := live[h.Source.ConversationID]
		if !ok {
			continue
		}
		hits = append(hits, model.ConversationSearchHit{
			ConversationID: sum.ID,
			Title:          sum.Title,
			LastMessageAt:  sum.LastMessageAt,
			Score:          h.Score,
		})
	}
	log.Infof("[SearchService] 检索完成, shop: %s, 命中 %d 条", p.Shop, len(hits))
	return hits, nil
}

func buildSearchQuery(p model.Principal, query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"title^2", "content"},
					},
				},
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"shop": p.Shop}},
					{"term": map[string]interface{}{"user_id": p.UserID}},
				},
			},
		},
		"_source": []string{"conversation_id", "shop", "user_id", "title", "last_message_at"},
		"size":    size,
	}
}

func clampSearchSize(size int) int {
	if size <= 0 {
		return defaultSearchSize
	}
	if size > maxSearchSize {
		return maxSearchSize
	}
	return size
}
