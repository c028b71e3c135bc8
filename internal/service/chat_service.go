package service

import (
	"context"
	"errors"
	"section-studio-go/internal/config"
	"section-studio-go/internal/model"
	"section-studio-go/pkg/llm"
	"section-studio-go/pkg/log"
	"strings"
)

// Generator 是对话使用的生成函数：输入本轮用户消息与之前的完整历史，返回助手回复。
// stream 可以为 nil；非 nil 时回复分块会在生成过程中实时写入。
type Generator interface {
	Generate(ctx context.Context, prompt string, history []model.ChatMessage, stream llm.MessageWriter) (string, error)
}

type llmGenerator struct {
	llmClient llm.Client
	rules     string
	params    *llm.GenerationParams
}

// NewGenerator 基于流式 LLM 客户端创建 Generator。
func NewGenerator(llmClient llm.Client, cfg config.LLMConfig) Generator {
	return &llmGenerator{
		llmClient: llmClient,
		rules:     cfg.Prompt.Rules,
		params:    llm.ParamsFromConfig(cfg.Generation),
	}
}

func (g *llmGenerator) Generate(ctx context.Context, prompt string, history []model.ChatMessage, stream llm.MessageWriter) (string, error) {
	answerBuilder := &strings.Builder{}
	interceptor := &replyInterceptor{writer: answerBuilder, stream: stream}

	if err := g.llmClient.StreamChatMessages(ctx, g.composeMessages(history, prompt), g.params, interceptor); err != nil {
		return "", err
	}
	answer := answerBuilder.String()
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("model returned an empty reply")
	}
	return answer, nil
}

func (g *llmGenerator) composeMessages(history []model.ChatMessage, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if g.rules != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: g.rules})
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: model.RoleUser, Content: userInput})
	return msgs
}

// replyInterceptor 收集完整回复，同时把分块转发给可选的 stream。
// 转发失败（通常是客户端断开）只停止转发，生成继续进行，回复仍会落库。
type replyInterceptor struct {
	writer    *strings.Builder
	stream    llm.MessageWriter
	streamErr error
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *replyInterceptor) WriteMessage(messageType int, data []byte) error {
	w.writer.Write(data)
	if w.stream == nil || w.streamErr != nil {
		return nil
	}
	if err := w.stream.WriteMessage(messageType, data); err != nil {
		w.streamErr = err
		log.Warnf("停止向客户端转发回复分块: %v", err)
	}
	return nil
}
