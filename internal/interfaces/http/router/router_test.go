package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func reply(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func tag(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Add("X-Chain", header)
		c.Next()
	}
}

func TestRouter_Setup(t *testing.T) {
	sales := NewDomainGroup("sales", "/sales").
		Use(tag("sales")).
		POST("", reply("create")).
		GET("/:id", reply("get")).
		PUT("/:id", reply("update")).
		Handle(http.MethodDelete, "/:id/draft", reply("discard"))
	system := NewDomainGroup("system", "/system").GET("/ping", reply("pong"))
	system.Group("outbox", "/outbox").Use(tag("outbox")).GET("/stats", reply("stats"))

	engine := gin.New()
	NewRouter(engine).Use(tag("api")).Register(sales, system).Setup()
	engine.GET("/health", reply("ok"))

	tests := []struct {
		method string
		path   string
		status int
		body   string
		chain  []string
	}{
		{http.MethodPost, "/api/v1/sales", http.StatusOK, "create", []string{"api", "sales"}},
		{http.MethodGet, "/api/v1/sales/42", http.StatusOK, "get", []string{"api", "sales"}},
		{http.MethodPut, "/api/v1/sales/42", http.StatusOK, "update", []string{"api", "sales"}},
		{http.MethodDelete, "/api/v1/sales/42/draft", http.StatusOK, "discard", []string{"api", "sales"}},
		{http.MethodGet, "/api/v1/system/ping", http.StatusOK, "pong", []string{"api"}},
		{http.MethodGet, "/api/v1/system/outbox/stats", http.StatusOK, "stats", []string{"api", "outbox"}},
		{http.MethodGet, "/health", http.StatusOK, "ok", nil},
		{http.MethodGet, "/api/v2/sales/42", http.StatusNotFound, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, w.Body.String())
				assert.Equal(t, tt.chain, w.Header().Values("X-Chain"))
			}
		})
	}
}

func TestRouter_WithAPIVersion(t *testing.T) {
	engine := gin.New()
	NewRouter(engine, WithAPIVersion("v2")).
		Register(NewDomainGroup("stock", "/stock").GET("/items/:item_id", reply("level"))).
		Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/stock/items/sku-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stock", NewDomainGroup("stock", "/stock").Name())
}
