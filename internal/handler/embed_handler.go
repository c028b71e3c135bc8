package handler

import (
	"io"
	"net/http"
	"section-studio-go/internal/embedgate"
	"strconv"

	"github.com/gin-gonic/gin"
)

// maxDocumentBytes 是 reconcile 接口接受的最大文档大小。
const maxDocumentBytes = 5 << 20

// EmbedHandler 在服务端对店面文档执行 embed gate。
type EmbedHandler struct{}

// NewEmbedHandler 创建一个新的 EmbedHandler。
func NewEmbedHandler() *EmbedHandler {
	return &EmbedHandler{}
}

// Reconcile 读取请求体中的 HTML 文档，返回处理后的文档和每个 section 的处理结果。
// design_mode=true 表示主题编辑器预览。
func (h *EmbedHandler) Reconcile(c *gin.Context) {
	designMode, err := strconv.ParseBool(c.DefaultQuery("design_mode", "false"))
	if err != nil {
		fail(c, http.StatusBadRequest, "design_mode must be a boolean", nil)
		return
	}

	src, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDocumentBytes+1))
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to read document", nil)
		return
	}
	if len(src) > maxDocumentBytes {
		fail(c, http.StatusRequestEntityTooLarge, "document too large", nil)
		return
	}

	out, results := embedgate.ReconcileDocument(src, designMode)
	if results == nil {
		results = []embedgate.Result{}
	}
	success(c, gin.H{"html": string(out), "sections": results})
}
