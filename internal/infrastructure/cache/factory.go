package cache

import (
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore returns a Redis-backed store when a client is
// available and an in-memory store otherwise.
//
// In-memory marks are not shared across processes, so running several
// engine instances without Redis can deliver an event to a handler twice.
func NewIdempotencyStore(client redis.UniversalClient, logger *zap.Logger) shared.IdempotencyStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client != nil {
		logger.Info("Using Redis idempotency store")
		return NewRedisIdempotencyStore(client, "")
	}
	logger.Warn("Redis unavailable, using in-memory idempotency store")
	return NewMemoryIdempotencyStore()
}
