package handler

import (
	"section-studio-go/internal/service"
	"section-studio-go/pkg/log"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// SearchConversations 是对话检索的 Gin 处理函数。size 无法解析时使用默认值。
func (h *SearchHandler) SearchConversations(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	query := c.Query("q")
	size, err := strconv.Atoi(c.DefaultQuery("size", "0"))
	if err != nil {
		size = 0
	}

	results, err := h.searchService.SearchConversations(c.Request.Context(), p, query, size)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Infof("[SearchHandler] 对话检索成功, 返回 %d 条结果", len(results))
	success(c, gin.H{"results": results})
}
