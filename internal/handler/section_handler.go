package handler

import (
	"net/http"
	"section-studio-go/internal/model"
	"section-studio-go/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SectionHandler 处理店铺级 AI section 的请求。
type SectionHandler struct {
	service service.ArtifactService
}

// NewSectionHandler 创建一个新的 SectionHandler。
func NewSectionHandler(service service.ArtifactService) *SectionHandler {
	return &SectionHandler{service: service}
}

// CreateSectionRequest 是保存 section 的请求体。
type CreateSectionRequest struct {
	Name           string `json:"name"`
	Content        string `json:"content" binding:"required"`
	ConversationID string `json:"conversationId"`
}

// ListSections 按创建时间倒序返回店铺的 section，可选 limit / offset。
func (h *SectionHandler) ListSections(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	limit, err1 := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, err2 := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err1 != nil || err2 != nil || limit < 0 || offset < 0 {
		fail(c, http.StatusBadRequest, "limit and offset must be non-negative integers", nil)
		return
	}
	if offset > 0 && limit == 0 {
		fail(c, http.StatusBadRequest, "offset requires a positive limit", nil)
		return
	}

	sections, err := h.service.ListArtifacts(c.Request.Context(), p.Shop, model.Page{Limit: limit, Offset: offset})
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"sections": sections})
}

// CreateSection 保存一个生成的 section。
func (h *SectionHandler) CreateSection(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "section content is required", nil)
		return
	}
	section, err := h.service.CreateArtifact(c.Request.Context(), p.Shop, service.ArtifactInput{
		Name:           req.Name,
		Content:        req.Content,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"section": section})
}
