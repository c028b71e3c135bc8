package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"section-studio-go/internal/embedgate"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/proxy/embed/reconcile", NewEmbedHandler().Reconcile)
	return r
}

func postDocument(r http.Handler, query, doc string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/proxy/embed/reconcile"+query, strings.NewReader(doc))
	req.Header.Set("Content-Type", "text/html")
	r.ServeHTTP(w, req)
	return w
}

func TestEmbedReconcile(t *testing.T) {
	doc := `<html><body><div id="shopify-section-hero">` + embedgate.GateMarkup("hero") + `<p>Hi</p></div></body></html>`
	r := newEmbedRouter()

	w := postDocument(r, "?design_mode=true", doc)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			HTML     string             `json:"html"`
			Sections []embedgate.Result `json:"sections"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Sections, 1)
	assert.Equal(t, "warn", resp.Data.Sections[0].Action)
	assert.Contains(t, resp.Data.HTML, embedgate.WarningText)

	w = postDocument(r, "", embedgate.SentinelMarkup()+doc)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"keep"`)

	w = postDocument(r, "?design_mode=maybe", doc)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmbedReconcileReturnsUngatedDocumentAsIs(t *testing.T) {
	gated := `<div id="shopify-section-hero">` + embedgate.GateMarkup("hero") + `<p>Hi</p></div>`
	for _, doc := range []string{
		"<p>plain page</p>",
		embedgate.SentinelMarkup() + gated,
	} {
		w := postDocument(newEmbedRouter(), "?design_mode=true", doc)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data struct {
				HTML     string             `json:"html"`
				Sections []embedgate.Result `json:"sections"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, doc, resp.Data.HTML)
		assert.NotNil(t, resp.Data.Sections)
	}

	w := postDocument(newEmbedRouter(), "", "<p>plain page</p>")
	assert.Contains(t, w.Body.String(), `"sections":[]`)
}
