package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"section-studio-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(v *token.SessionVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(), Metrics())
	r.GET("/whoami", SessionAuth(v), func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"shop": p.Shop, "user": p.UserID, "token": SessionTokenFrom(c) != ""})
	})
	return r
}

func TestSessionAuth(t *testing.T) {
	v := token.NewSessionVerifier("key", "secret")
	r := newAuthRouter(v)

	raw, err := v.Issue("acme.myshopify.com", "42", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"shop":"acme.myshopify.com","user":"42","token":true}`, w.Body.String())
}

func TestSessionAuthRejects(t *testing.T) {
	v := token.NewSessionVerifier("key", "secret")
	r := newAuthRouter(v)
	foreign, err := token.NewSessionVerifier("key", "other").Issue("acme.myshopify.com", "42", time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":       "",
		"not bearer":    "Token abc",
		"bad signature": "Bearer " + foreign,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		assert.Contains(t, w.Body.String(), `"code":401`, name)
	}
}
