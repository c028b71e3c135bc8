package handler

import (
	"section-studio-go/internal/middleware"
	"section-studio-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ThemeHandler 处理主题列表请求。
type ThemeHandler struct {
	service service.ThemeService
}

// NewThemeHandler 创建一个新的 ThemeHandler。
func NewThemeHandler(service service.ThemeService) *ThemeHandler {
	return &ThemeHandler{service: service}
}

// ListThemes 返回店铺主题，main 主题在最前。
func (h *ThemeHandler) ListThemes(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	themes, err := h.service.ListThemes(c.Request.Context(), p.Shop, middleware.SessionTokenFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, gin.H{"themes": themes})
}
