package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessages 表示库中保存的消息 blob 无法解析。
var ErrMalformedMessages = errors.New("malformed message blob")

// EncodeMessages 把有序消息序列编码为落库的 blob。空序列编码为 "[]"。
func EncodeMessages(messages []ChatMessage) (string, error) {
	if messages == nil {
		messages = []ChatMessage{}
	}
	b, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("failed to marshal messages: %w", err)
	}
	return string(b), nil
}

// DecodeMessages 是 EncodeMessages 的逆操作。
// 空字符串视为空序列；其余无法解析的内容一律返回 ErrMalformedMessages，不返回部分结果。
func DecodeMessages(blob string) ([]ChatMessage, error) {
	if blob == "" {
		return []ChatMessage{}, nil
	}
	var messages []ChatMessage
	if err := json.Unmarshal([]byte(blob), &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessages, err)
	}
	if messages == nil {
		// blob 为 "null"
		return nil, fmt.Errorf("%w: null message list", ErrMalformedMessages)
	}
	for i, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return nil, fmt.Errorf("%w: message %d has unknown role %q", ErrMalformedMessages, i, m.Role)
		}
	}
	return messages, nil
}
