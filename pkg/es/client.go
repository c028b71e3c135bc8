// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"section-studio-go/internal/config"
	"section-studio-go/internal/model"
	"section-studio-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// conversationMapping 是对话检索投影的索引结构。shop 与 user_id 为 keyword，用于归属过滤。
const conversationMapping = `{
	"mappings": {
		"properties": {
			"conversation_id": { "type": "keyword" },
			"shop": { "type": "keyword" },
			"user_id": { "type": "keyword" },
			"title": { "type": "text" },
			"content": { "type": "text" },
			"last_message_at": { "type": "date" }
		}
	}
}`

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	created, err := ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(conversationMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, created.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// Indexer 把对话投影写入或移出检索索引。
type Indexer struct {
	client    *elasticsearch.Client
	indexName string
}

// NewIndexer 创建绑定到指定索引的 Indexer。
func NewIndexer(client *elasticsearch.Client, indexName string) *Indexer {
	return &Indexer{client: client, indexName: indexName}
}

// IndexConversation 以对话 id 作为文档 id 覆盖写入投影。
func (i *Indexer) IndexConversation(ctx context.Context, doc model.ConversationDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.indexName,
		DocumentID: doc.ConversationID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index conversation")
	}
	return nil
}

// DeleteConversation 删除对话投影，文档不存在视为成功。
func (i *Indexer) DeleteConversation(ctx context.Context, conversationID string) error {
	req := esapi.DeleteRequest{
		Index:      i.indexName,
		DocumentID: conversationID,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("从 Elasticsearch 删除文档出错: %s", res.String())
		return errors.New("failed to delete conversation document")
	}
	return nil
}
