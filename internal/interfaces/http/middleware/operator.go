package middleware

import (
	"strings"

	"github.com/erp/retailcore/internal/infrastructure/logger"
	"github.com/erp/retailcore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operator context keys
const (
	OperatorIDKey     = "operator_id"
	OperatorHeaderKey = logger.OperatorHeader
)

// OperatorMiddlewareConfig holds configuration for operator middleware
type OperatorMiddlewareConfig struct {
	// SkipPaths are paths that don't require an operator (e.g., health check)
	SkipPaths []string
	// Required rejects requests without an X-Operator-ID header
	Required bool
	Logger   *zap.Logger
}

// DefaultOperatorConfig requires an operator everywhere except probes
func DefaultOperatorConfig() OperatorMiddlewareConfig {
	return OperatorMiddlewareConfig{
		SkipPaths: []string{"/health", "/healthz", "/api/v1/system/ping"},
		Required:  true,
	}
}

// OperatorMiddlewareWithConfig identifies the cashier acting on the request.
// The ID is stored on the gin context and on the request-scoped logger.
func OperatorMiddlewareWithConfig(cfg OperatorMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		operatorID := c.GetHeader(OperatorHeaderKey)
		switch {
		case operatorID == "" && cfg.Required:
			abortWithError(c, dto.ErrCodeUnauthorized, "Operator identification required")
			return
		case operatorID == "":
			c.Next()
			return
		}
		if _, err := uuid.Parse(operatorID); err != nil {
			abortWithError(c, dto.ErrCodeUnauthorized, "Invalid operator ID format")
			return
		}

		c.Set(OperatorIDKey, operatorID)
		ctx, _ := logger.WithOperatorID(c.Request.Context(), logger.FromContext(c.Request.Context()), operatorID)
		c.Request = c.Request.WithContext(ctx)
		if cfg.Logger != nil {
			cfg.Logger.Debug("Operator identified", zap.String("operator_id", operatorID))
		}
		c.Next()
	}
}

// GetOperatorID retrieves the operator ID from gin.Context
func GetOperatorID(c *gin.Context) string {
	return c.GetString(OperatorIDKey)
}

// GetOperatorUUID retrieves the operator ID as UUID, uuid.Nil when absent
func GetOperatorUUID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(GetOperatorID(c))
	if err != nil {
		return uuid.Nil
	}
	return id
}
