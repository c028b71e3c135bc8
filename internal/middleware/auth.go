// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"section-studio-go/internal/model"
	"section-studio-go/pkg/log"
	"section-studio-go/pkg/token"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	principalKey    = "principal"
	sessionTokenKey = "sessionToken"
)

// SessionAuth 创建一个 Gin 中间件，用于校验 Shopify 会话令牌。
// 校验通过后把 shop + user 组成的 Principal 和原始令牌存入 Gin 的上下文中。
func SessionAuth(verifier *token.SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "请求未包含授权头")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abortUnauthorized(c, "无效的授权头格式")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			log.Warnf("会话令牌校验失败: %v", err)
			abortUnauthorized(c, "无效或已过期的 token")
			return
		}
		shop, err := claims.Shop()
		if err != nil {
			abortUnauthorized(c, "无效或已过期的 token")
			return
		}

		c.Set(principalKey, model.Principal{Shop: shop, UserID: claims.Subject})
		c.Set(sessionTokenKey, tokenString)
		c.Next()
	}
}

// PrincipalFrom 取出 SessionAuth 写入的调用方身份。
func PrincipalFrom(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok && p.Valid()
}

// SessionTokenFrom 取出原始会话令牌，用于向 Shopify 换取 access token。
func SessionTokenFrom(c *gin.Context) string {
	return c.GetString(sessionTokenKey)
}

// WithPrincipal 直接写入调用方身份，供测试和内部路由使用。
func WithPrincipal(p model.Principal, sessionToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalKey, p)
		c.Set(sessionTokenKey, sessionToken)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
		"data":    nil,
	})
}
