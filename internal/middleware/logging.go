// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/metrics"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 是调试日志中请求体的最大长度。
const maxLoggedBody = 1024

// bodySizeWriter 统计响应体大小
type bodySizeWriter struct {
	gin.ResponseWriter
	size int
}

// Write 实现了 io.Writer 接口
func (w *bodySizeWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// WriteString 同样计入响应体大小
func (w *bodySizeWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.size += n
	return n, err
}

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 对话内容和店面文档属于商家数据，只记录大小；其他请求体在 debug 级别截断记录。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		bsw := &bodySizeWriter{ResponseWriter: c.Writer}
		c.Writer = bsw

		c.Next()

		path := c.Request.URL.Path
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"requestBytes", len(requestBody),
			"responseBytes", bsw.size,
		)
		if len(requestBody) > 0 && !carriesMerchantContent(path) {
			body := requestBody
			if len(body) > maxLoggedBody {
				body = body[:maxLoggedBody]
			}
			log.Debugf("请求体 %s %s: %s", c.Request.Method, path, string(body))
		}
	}
}

// Metrics 记录每个路由的请求耗时。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func carriesMerchantContent(path string) bool {
	return strings.HasPrefix(path, "/api/v1/conversations") ||
		strings.HasPrefix(path, "/api/v1/sections") ||
		strings.HasPrefix(path, "/proxy/")
}
