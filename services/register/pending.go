package register

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"veris/apperr"
	"veris/models"
	"veris/utils"
)

// pendingStore holds staged registrations in the cache under
// registration:data:{identifier}. Staging is last-write-wins: a repeated
// initiation replaces the previous staged profile wholesale.
type pendingStore struct {
	cache *redis.Client
	ttl   time.Duration
}

func (p *pendingStore) stage(ctx context.Context, reg *models.PendingRegistration) error {
	reg.StagedAt = time.Now()
	raw, err := json.Marshal(reg)
	if err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}
	key := fmt.Sprintf(utils.KeyPendingReg, reg.Identifier())
	if err := p.cache.Set(ctx, key, raw, p.ttl).Err(); err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}
	return nil
}

// load returns the staged registration, or nil when the window closed.
func (p *pendingStore) load(ctx context.Context, identifier string) (*models.PendingRegistration, error) {
	key := fmt.Sprintf(utils.KeyPendingReg, identifier)
	raw, err := p.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCacheDown, err)
	}
	var reg models.PendingRegistration
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		return nil, apperr.Wrap(apperr.ErrCacheDown, err)
	}
	return &reg, nil
}

func (p *pendingStore) delete(ctx context.Context, identifier string) {
	key := fmt.Sprintf(utils.KeyPendingReg, identifier)
	p.cache.Del(ctx, key)
}
