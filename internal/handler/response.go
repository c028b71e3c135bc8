// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"section-studio-go/internal/middleware"
	"section-studio-go/internal/model"
	"section-studio-go/internal/service"
	"section-studio-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// writeError 是业务错误到 HTTP 响应的唯一映射点。存储层细节只写日志，不返回给客户端。
func writeError(c *gin.Context, err error) {
	var genErr *service.GenerationError
	switch {
	case errors.Is(err, service.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	case errors.Is(err, service.ErrNotFound):
		fail(c, http.StatusNotFound, "not found", nil)
		return
	case errors.Is(err, service.ErrConflict):
		fail(c, http.StatusConflict, "the conversation was updated by another request, please retry", nil)
		return
	case errors.Is(err, service.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, "shop authorization failed, please reload the app", nil)
		return
	case errors.As(err, &genErr):
		log.Errorw("生成失败", "path", c.FullPath(), "conversationId", genErr.ConversationID, "error", err)
		fail(c, http.StatusInternalServerError, "the assistant could not generate a reply, your message was saved",
			gin.H{"conversationId": genErr.ConversationID})
		return
	case errors.Is(err, service.ErrUpstream):
		log.Errorw("上游服务失败", "path", c.FullPath(), "error", err)
		fail(c, http.StatusBadGateway, "upstream service unavailable", nil)
		return
	}
	log.Errorw("请求处理失败", "path", c.FullPath(), "error", err)
	fail(c, http.StatusInternalServerError, "internal server error", nil)
}

// principal 取出调用方身份，缺失时直接返回 401。
func principal(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized", nil)
	}
	return p, ok
}
