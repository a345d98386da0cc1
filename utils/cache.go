// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"veris/config"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient is the generic cache client (pending registrations, device mirrors).
	CacheClient *redis.Client
	// AuthCacheClient is the dedicated client for session-token mirroring.
	AuthCacheClient *redis.Client
	// OTPCacheClient is the dedicated client for OTP records and abuse counters.
	OTPCacheClient *redis.Client
)

func newClient(db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (db %d): %v", db, err)
	}
	return client
}

// InitRedis initializes all Redis clients.
func InitRedis() {
	CacheClient = newClient(config.AppConfig.RedisCacheDB)
	AuthCacheClient = newClient(config.AppConfig.RedisAuthDB)
	OTPCacheClient = newClient(config.AppConfig.RedisOTPDB)
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		CacheClient = newClient(config.AppConfig.RedisCacheDB)
	}
	return CacheClient
}

// GetAuthCacheClient returns the Redis client for session-token mirroring.
func GetAuthCacheClient() *redis.Client {
	if AuthCacheClient == nil {
		AuthCacheClient = newClient(config.AppConfig.RedisAuthDB)
	}
	return AuthCacheClient
}

// GetOTPCacheClient returns the Redis client for OTP state.
func GetOTPCacheClient() *redis.Client {
	if OTPCacheClient == nil {
		OTPCacheClient = newClient(config.AppConfig.RedisOTPDB)
	}
	return OTPCacheClient
}
