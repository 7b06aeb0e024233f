package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/erp/retailcore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from middleware key",
			setup: func(c *gin.Context) {
				c.Set("request_id", "mw-request-id")
			},
			expectedID: "mw-request-id",
		},
		{
			name: "from context string",
			setup: func(c *gin.Context) {
				c.Set(RequestIDKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(RequestIDKey, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(RequestIDKey, "ctx-id")
				c.Request.Header.Set(RequestIDKey, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext("/")
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandlerSuccessWithMeta(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext("/")

	h.SuccessWithMeta(c, []string{"item1", "item2"}, 100, 1, 10)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(100), resp.Meta.Total)
}

func TestBaseHandlerCreatedAndNoContent(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext("/")
	h.Created(c, map[string]string{"id": "123"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeResponse(t, w).Success)

	router := gin.New()
	router.DELETE("/test", func(c *gin.Context) {
		h.NoContent(c)
	})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/test", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	tests := []struct {
		name         string
		method       func(*BaseHandler, *gin.Context)
		expectedCode int
		expectedErr  string
	}{
		{"BadRequest", func(h *BaseHandler, c *gin.Context) { h.BadRequest(c, "Invalid request") }, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"NotFound", func(h *BaseHandler, c *gin.Context) { h.NotFound(c, "Resource not found") }, http.StatusNotFound, dto.ErrCodeNotFound},
		{"Conflict", func(h *BaseHandler, c *gin.Context) { h.Conflict(c, "Resource conflict") }, http.StatusConflict, dto.ErrCodeConflict},
		{"InternalError", func(h *BaseHandler, c *gin.Context) { h.InternalError(c, "Server error") }, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"UnprocessableEntity", func(h *BaseHandler, c *gin.Context) {
			h.UnprocessableEntity(c, dto.ErrCodeBusinessRule, "Business rule violated")
		}, http.StatusUnprocessableEntity, dto.ErrCodeBusinessRule},
		{"ErrorWithCode", func(h *BaseHandler, c *gin.Context) {
			h.ErrorWithCode(c, dto.ErrCodeInsufficientStock, "Not enough items")
		}, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext("/")
			c.Set(RequestIDKey, "req-"+tt.name)

			tt.method(&BaseHandler{}, c)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
			assert.Equal(t, "req-"+tt.name, resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerValidationError(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext("/")
	c.Set(RequestIDKey, "val-req-456")

	h.ValidationError(c, []dto.ValidationDetail{
		{Field: "amount", Message: "Required"},
		{Field: "lines", Message: "Required"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "val-req-456", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid input", shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"concurrency conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"insufficient stock", shared.ErrInsufficientStock, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientStock},
		{"insufficient balance", shared.ErrInsufficientBalance, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientBalance},
		{"operation in progress", shared.ErrOperationInProgress, http.StatusConflict, dto.ErrCodeOperationInProgress},
		{"unknown outcome", shared.ErrUnknownOutcome, http.StatusServiceUnavailable, dto.ErrCodeUnknownOutcome},
		{"wrapped domain error", fmt.Errorf("loading sale: %w", shared.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"unmapped domain code", shared.NewDomainError("SOMETHING_NEW", "new rule"), http.StatusUnprocessableEntity, "SOMETHING_NEW"},
		{"standard error", assert.AnError, http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext("/")

			(&BaseHandler{}).HandleError(c, tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		c, w := newTestContext("/")
		(&BaseHandler{}).HandleError(c, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("details become the error context", func(t *testing.T) {
		c, w := newTestContext("/")
		err := shared.ErrInsufficientStock.WithDetails(map[string]any{"available": "2"})

		(&BaseHandler{}).HandleError(c, err)

		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "2", resp.Error.Context["available"])
	})

	t.Run("non domain errors hide their message", func(t *testing.T) {
		c, w := newTestContext("/")
		(&BaseHandler{}).HandleError(c, assert.AnError)
		assert.Equal(t, "An unexpected error occurred", decodeResponse(t, w).Error.Message)
	})
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		query    string
		page     int
		pageSize int
		orderDir string
	}{
		{"", 1, 20, "desc"},
		{"?page=3&page_size=50&order_dir=asc", 3, 50, "asc"},
		{"?page=0&page_size=500", 1, 100, "desc"},
		{"?page=abc&page_size=-1", 1, 20, "desc"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := newTestContext("/" + tt.query)
			f := pageParams(c)
			assert.Equal(t, tt.page, f.Page)
			assert.Equal(t, tt.pageSize, f.PageSize)
			assert.Equal(t, tt.orderDir, f.OrderDir)
		})
	}
}

func TestIdempotencyKey(t *testing.T) {
	c, _ := newTestContext("/")
	assert.Equal(t, "", idempotencyKey(c, ""))

	c.Request.Header.Set(IdempotencyKeyHeader, "from-header")
	assert.Equal(t, "from-header", idempotencyKey(c, ""))
	assert.Equal(t, "from-body", idempotencyKey(c, "from-body"))
}

func TestParseUUIDParam(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext("/")
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	_, ok := h.parseUUIDParam(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, _ = newTestContext("/?variant_id=")
	v, ok := h.parseOptionalUUIDQuery(c, "variant_id")
	assert.True(t, ok)
	assert.Nil(t, v)
}
