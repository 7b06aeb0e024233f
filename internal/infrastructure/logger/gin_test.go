package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(l *zap.Logger, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(GinRequestIDKey, "req-42")
	})
	router.Use(Recovery(l), GinMiddleware(l))
	router.GET("/sales", handler)
	return router
}

func findEntry(t *testing.T, recorded *observer.ObservedLogs, msg string) observer.LoggedEntry {
	t.Helper()
	entries := recorded.FilterMessage(msg).All()
	require.NotEmpty(t, entries, "no %q entry", msg)
	return entries[0]
}

func TestGinMiddleware_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusConflict, zapcore.WarnLevel},
		{http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			router := newTestRouter(zap.New(core), func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/sales?page=2", nil)
			router.ServeHTTP(w, req)

			entry := findEntry(t, recorded, "HTTP Request")
			assert.Equal(t, tt.level, entry.Level)
			fields := entry.ContextMap()
			assert.Equal(t, "req-42", fields["request_id"])
			assert.Equal(t, "page=2", fields["query"])
			assert.EqualValues(t, tt.status, fields["status"])
		})
	}
}

func TestGinMiddleware_PropagatesLoggerAndOperator(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	router := newTestRouter(zap.New(core), func(c *gin.Context) {
		assert.Equal(t, "req-42", GetRequestID(c.Request.Context()))
		assert.Equal(t, "op-5", GetOperatorID(c.Request.Context()))
		FromContext(c.Request.Context()).Info("handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/sales", nil)
	req.Header.Set(OperatorHeader, "op-5")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entry := findEntry(t, recorded, "handler")
	assert.Equal(t, "op-5", entry.ContextMap()["operator_id"])
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	router := newTestRouter(zap.New(core), func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sales", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	entry := findEntry(t, recorded, "Panic recovered")
	assert.Equal(t, "req-42", entry.ContextMap()["request_id"])
}

func TestGinMiddleware_SkipPaths(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware(zap.New(core), AccessLogConfig{SkipPaths: []string{"/healthz"}}))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/sales", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Zero(t, recorded.Len())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sales", nil))
	assert.Equal(t, 1, recorded.Len())
}
