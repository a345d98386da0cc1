// Package device manages device records and the cache mirror of active push
// tokens used for notification fan-out.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"veris/apperr"
	deviceRepo "veris/database/repository/device"
	"veris/models"
	"veris/utils"
)

const mirrorTTL = 24 * time.Hour

// Binder binds devices to users. The relational record is authoritative; the
// cache mirror is best effort and self-heals on the next link.
type Binder struct {
	repo  deviceRepo.DeviceRepository
	cache *redis.Client
}

// NewBinder builds a Binder over the device repository and the generic cache.
func NewBinder(repo deviceRepo.DeviceRepository, cache *redis.Client) *Binder {
	return &Binder{repo: repo, cache: cache}
}

// IsRegistered reports whether the device has a record.
func (b *Binder) IsRegistered(ctx context.Context, deviceID string) (bool, error) {
	return b.repo.Exists(ctx, deviceID)
}

// Register creates the device record ahead of any user association.
func (b *Binder) Register(ctx context.Context, device *models.Device) error {
	return b.repo.Create(ctx, device)
}

// Get returns the device record, or nil when unknown.
func (b *Binder) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	return b.repo.GetByID(ctx, deviceID)
}

// LinkToUser binds the device to the user and refreshes the push-token
// mirror. Mirror failures are logged, not surfaced; the link itself already
// happened in the system of record.
func (b *Binder) LinkToUser(ctx context.Context, userID uuid.UUID, deviceID string, pushToken, userToken *string) error {
	if err := b.repo.LinkToUser(ctx, deviceID, userID, pushToken, userToken); err != nil {
		return err
	}

	device, err := b.repo.GetByID(ctx, deviceID)
	if err != nil || device == nil {
		return nil
	}
	b.refreshMirror(ctx, userID, device)
	return nil
}

func (b *Binder) refreshMirror(ctx context.Context, userID uuid.UUID, device *models.Device) {
	logger := utils.GetLogger()

	token := ""
	if device.PushToken != nil {
		token = *device.PushToken
	}
	mirror := models.DeviceTokenMirror{
		Token:      token,
		DeviceType: device.DeviceType,
		DeviceName: device.DeviceName,
		Platform:   device.Platform,
		IsActive:   device.Active,
		UpdatedAt:  time.Now(),
	}
	raw, err := json.Marshal(mirror)
	if err != nil {
		return
	}

	key := fmt.Sprintf(utils.KeyDeviceToken, userID, device.DeviceID)
	indexKey := fmt.Sprintf(utils.KeyUserDeviceIndex, userID)

	pipe := b.cache.Pipeline()
	pipe.Set(ctx, key, raw, mirrorTTL)
	pipe.SAdd(ctx, indexKey, key)
	pipe.Expire(ctx, indexKey, mirrorTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("device token mirror write failed",
			zap.String("device_id", device.DeviceID), zap.Error(err))
		return
	}
	b.rebuildAggregate(ctx, userID)
}

// rebuildAggregate recomputes the per-user token list from the index so the
// fan-out path does a single GET.
func (b *Binder) rebuildAggregate(ctx context.Context, userID uuid.UUID) {
	logger := utils.GetLogger()

	indexKey := fmt.Sprintf(utils.KeyUserDeviceIndex, userID)
	members, err := b.cache.SMembers(ctx, indexKey).Result()
	if err != nil || len(members) == 0 {
		return
	}

	values, err := b.cache.MGet(ctx, members...).Result()
	if err != nil {
		return
	}

	tokens := make([]models.DeviceTokenMirror, 0, len(values))
	stale := make([]interface{}, 0)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// The mirror entry expired; drop it from the index.
			stale = append(stale, members[i])
			continue
		}
		var m models.DeviceTokenMirror
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		if m.IsActive {
			tokens = append(tokens, m)
		}
	}
	if len(stale) > 0 {
		b.cache.SRem(ctx, indexKey, stale...)
	}

	raw, err := json.Marshal(tokens)
	if err != nil {
		return
	}
	aggKey := fmt.Sprintf(utils.KeyUserDeviceTokens, userID)
	if err := b.cache.Set(ctx, aggKey, raw, mirrorTTL).Err(); err != nil {
		logger.Warn("device token aggregate write failed", zap.Error(err))
	}
}

// Unlink deactivates the device record and removes its mirror entries.
func (b *Binder) Unlink(ctx context.Context, userID uuid.UUID, deviceID string) error {
	if err := b.repo.Deactivate(ctx, deviceID); err != nil {
		return err
	}

	key := fmt.Sprintf(utils.KeyDeviceToken, userID, deviceID)
	indexKey := fmt.Sprintf(utils.KeyUserDeviceIndex, userID)
	pipe := b.cache.Pipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		utils.GetLogger().Warn("device token mirror cleanup failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}
	b.rebuildAggregate(ctx, userID)
	return nil
}

// UserDeviceTokens returns the cached active push tokens for a user, reading
// the aggregate and falling back to a rebuild when it is cold.
func (b *Binder) UserDeviceTokens(ctx context.Context, userID uuid.UUID) ([]models.DeviceTokenMirror, error) {
	aggKey := fmt.Sprintf(utils.KeyUserDeviceTokens, userID)
	raw, err := b.cache.Get(ctx, aggKey).Result()
	if err == redis.Nil {
		b.rebuildAggregate(ctx, userID)
		raw, err = b.cache.Get(ctx, aggKey).Result()
		if err == redis.Nil {
			return nil, nil
		}
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCacheDown, err)
	}

	var tokens []models.DeviceTokenMirror
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, apperr.Wrap(apperr.ErrCacheDown, err)
	}
	return tokens, nil
}
