// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"section-studio-go/internal/config"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/tasks"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxAttempts 是单个任务在提交 offset 前的最大处理次数。
const maxAttempts = 3

// TaskProcessor 抽象了消费端的处理逻辑，使消费者不依赖具体的 pipeline 实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ConversationIndexTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// Publisher 把索引任务写入 Kafka，满足 service 层的 IndexPublisher 接口。
type Publisher struct{}

// NewPublisher 返回一个使用全局生产者的 Publisher。
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish 发送一个对话索引任务，以对话 id 作为 key 保证同一对话的任务有序。
func (p *Publisher) Publish(ctx context.Context, task tasks.ConversationIndexTask) error {
	if producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ConversationID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func Close() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// StartConsumer 启动消费者处理索引任务，直到 ctx 结束。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}

		var task tasks.ConversationIndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		if err := processWithRetry(ctx, processor, task); err != nil {
			if ctx.Err() != nil {
				// 停机中断，不提交 offset，重启后重新投递
				return
			}
			// 原地重试已用尽，提交 offset 终止重试，避免阻塞同一分区的后续任务
			log.Errorf("索引任务多次失败(>=%d)，提交 offset 终止重试: conversation=%s, action=%s, error: %v",
				maxAttempts, task.ConversationID, task.Action, err)
		}
		commit(ctx, r, m)
	}
}

// retryBackoff 返回第 attempt 次失败后的等待时间。
var retryBackoff = func(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// processWithRetry 在提交 offset 之前原地重试任务，最多 maxAttempts 次。
// FetchMessage 不会重新投递未提交的消息，所以失败的任务必须在这里重试完。
func processWithRetry(ctx context.Context, processor TaskProcessor, task tasks.ConversationIndexTask) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = processor.Process(ctx, task); err == nil {
			return nil
		}
		log.Warnf("处理索引任务失败(第 %d 次): conversation=%s, action=%s, error: %v", attempt, task.ConversationID, task.Action, err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff(attempt)):
		}
	}
	return err
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
