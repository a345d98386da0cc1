package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"veris/apperr"
	"veris/utils"
)

// Guard enforces per-(IP, receiver) request quotas for OTP issuance. Crossing
// the quota blocks the pair for the block duration.
type Guard struct {
	cache         *redis.Client
	maxRequests   int
	window        time.Duration
	blockDuration time.Duration
}

// NewGuard builds a Guard over the OTP cache.
func NewGuard(cache *redis.Client, maxRequests int, window, blockDuration time.Duration) *Guard {
	return &Guard{
		cache:         cache,
		maxRequests:   maxRequests,
		window:        window,
		blockDuration: blockDuration,
	}
}

// CheckAndIncrement admits or rejects one OTP request for the pair. The
// counter window is re-armed on every request, so only an idle gap clears it.
func (g *Guard) CheckAndIncrement(ctx context.Context, sourceIP, receiver string) error {
	logger := utils.GetLogger()

	blockKey := fmt.Sprintf(utils.KeyBlockedIP, sourceIP, receiver)
	blocked, err := g.cache.Exists(ctx, blockKey).Result()
	if err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}
	if blocked > 0 {
		return apperr.ErrIPBlocked
	}

	countKey := fmt.Sprintf(utils.KeyOTPReqCount, sourceIP, receiver)
	count, err := g.cache.Incr(ctx, countKey).Result()
	if err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}
	if err := g.cache.Expire(ctx, countKey, g.window).Err(); err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}

	if count > int64(g.maxRequests) {
		logger.Warn("otp request quota exceeded, blocking",
			zap.String("source_ip", sourceIP), zap.Int64("count", count))
		// Block asynchronously so the rejection is not delayed by the write.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := g.cache.Set(ctx, blockKey, 1, g.blockDuration).Err(); err != nil {
				logger.Error("failed to set block flag", zap.Error(err))
			}
		}()
		return apperr.ErrOtpTooManyAttempts
	}
	return nil
}
