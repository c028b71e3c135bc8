package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"section-studio-go/internal/model"
	"section-studio-go/internal/service"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/token"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		// 应用运行在 Shopify Admin 的 iframe 中，来源由会话令牌保证
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	conversations service.ConversationService
	verifier      *token.SessionVerifier
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(conversations service.ConversationService, verifier *token.SessionVerifier) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		verifier:      verifier,
	}
}

// chatFrame 是客户端发送的一轮消息。纯文本消息视为在当前对话中继续。
type chatFrame struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	TurnID         string `json:"turnId"`
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.verifier.Verify(c.Param("token"))
	if err != nil {
		fail(c, http.StatusUnauthorized, "无效的 token", nil)
		return
	}
	shop, err := claims.Shop()
	if err != nil {
		fail(c, http.StatusUnauthorized, "无效的 token", nil)
		return
	}
	p := model.Principal{Shop: shop, UserID: claims.Subject}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，shop: %s, user: %s", p.Shop, p.UserID)

	var currentID string
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		frame := parseChatFrame(message, currentID)
		conv, err := h.conversations.AppendTurn(c.Request.Context(), p, service.TurnInput{
			ConversationID: frame.ConversationID,
			Message:        frame.Message,
			TurnID:         frame.TurnID,
		}, &chunkWriter{conn: conn})
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			var genErr *service.GenerationError
			if errors.As(err, &genErr) {
				currentID = genErr.ConversationID
			}
			writeJSON(conn, gin.H{"error": chatErrorMessage(err), "conversationId": currentID})
			sendCompletion(conn, currentID)
			continue
		}
		currentID = conv.ID
		sendCompletion(conn, currentID)
	}
}

func parseChatFrame(message []byte, currentID string) chatFrame {
	var frame chatFrame
	if len(message) > 0 && message[0] == '{' {
		if err := json.Unmarshal(message, &frame); err == nil {
			return frame
		}
	}
	return chatFrame{ConversationID: currentID, Message: string(message)}
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return "消息不能为空"
	case errors.Is(err, service.ErrNotFound):
		return "对话不存在"
	case errors.Is(err, service.ErrConflict):
		return "对话已被其他请求更新，请重试"
	case errors.Is(err, service.ErrPersistence):
		return "对话保存失败，请稍后重试"
	default:
		return "AI服务暂时不可用，请稍后重试"
	}
}

// chunkWriter 把原始分块包装成 {"chunk":"..."} 写入 WebSocket。
type chunkWriter struct {
	conn *websocket.Conn
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(conn *websocket.Conn, conversationID string) {
	writeJSON(conn, gin.H{
		"type":           "completion",
		"status":         "finished",
		"conversationId": conversationID,
		"timestamp":      time.Now().UnixMilli(),
	})
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, _ := json.Marshal(v)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
