package handler

import (
	"net/http"
	"section-studio-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
	exports service.ExportService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService, exports service.ExportService) *ConversationHandler {
	return &ConversationHandler{service: service, exports: exports}
}

// AppendTurnRequest 是一次对话轮次的请求体。
type AppendTurnRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message" binding:"required"`
	TurnID         string `json:"turnId"`
}

// RenameRequest 是修改标题的请求体。
type RenameRequest struct {
	Title string `json:"title" binding:"required"`
}

// ListConversations 处理获取用户对话历史的请求。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	history, err := h.service.ListHistory(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"conversations": history})
}

// GetConversation 返回一段完整对话。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	conv, err := h.service.LoadConversation(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"conversation": conv})
}

// AppendTurn 追加一轮对话并返回更新后的对话。
func (h *ConversationHandler) AppendTurn(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req AppendTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "message is required", nil)
		return
	}
	conv, err := h.service.AppendTurn(c.Request.Context(), p, service.TurnInput{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		TurnID:         req.TurnID,
	}, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"conversation": conv})
}

// RenameConversation 修改对话标题。
func (h *ConversationHandler) RenameConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "title is required", nil)
		return
	}
	conv, err := h.service.RenameConversation(c.Request.Context(), p, c.Param("id"), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"conversation": conv})
}

// DeleteConversation 删除对话。是否存在都返回成功。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.service.DeleteConversation(c.Request.Context(), p, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	success(c, nil)
}

// ExportConversation 导出对话并返回下载地址。
func (h *ConversationHandler) ExportConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	res, err := h.exports.ExportConversation(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, res)
}
