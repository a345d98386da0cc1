package device

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veris/apperr"
	"veris/models"
)

type fakeDeviceRepo struct {
	devices map[string]*models.Device
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{devices: make(map[string]*models.Device)}
}

func (f *fakeDeviceRepo) Exists(ctx context.Context, deviceID string) (bool, error) {
	_, ok := f.devices[deviceID]
	return ok, nil
}

func (f *fakeDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	if _, ok := f.devices[device.DeviceID]; ok {
		return apperr.ErrDeviceAlreadyRegistered
	}
	device.CreatedAt = time.Now()
	cloned := *device
	f.devices[device.DeviceID] = &cloned
	return nil
}

func (f *fakeDeviceRepo) GetByID(ctx context.Context, deviceID string) (*models.Device, error) {
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, nil
	}
	cloned := *d
	return &cloned, nil
}

func (f *fakeDeviceRepo) LinkToUser(ctx context.Context, deviceID string, userID uuid.UUID, pushToken, userToken *string) error {
	d, ok := f.devices[deviceID]
	if !ok {
		return apperr.ErrDeviceNotRegistered
	}
	d.UserID = &userID
	if pushToken != nil {
		d.PushToken = pushToken
	}
	if userToken != nil {
		d.UserToken = userToken
	}
	d.Active = true
	return nil
}

func (f *fakeDeviceRepo) Deactivate(ctx context.Context, deviceID string) error {
	d, ok := f.devices[deviceID]
	if !ok {
		return apperr.ErrDeviceNotRegistered
	}
	d.Active = false
	return nil
}

func newTestBinder(t *testing.T) (*Binder, *fakeDeviceRepo, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	repo := newFakeDeviceRepo()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewBinder(repo, cache), repo, mr
}

func seedDevice(t *testing.T, repo *fakeDeviceRepo, id string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &models.Device{
		DeviceID:   id,
		DeviceName: "Pixel 9",
		DeviceType: "android",
		Platform:   "android",
	}))
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	binder, repo, _ := newTestBinder(t)
	ctx := context.Background()
	seedDevice(t, repo, "d1")

	err := binder.Register(ctx, &models.Device{DeviceID: "d1"})
	assert.ErrorIs(t, err, apperr.ErrDeviceAlreadyRegistered)

	ok, err := binder.IsRegistered(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLinkToUserWritesMirror(t *testing.T) {
	binder, repo, mr := newTestBinder(t)
	ctx := context.Background()
	userID := uuid.New()
	seedDevice(t, repo, "d1")

	push := "push-token-1"
	require.NoError(t, binder.LinkToUser(ctx, userID, "d1", &push, nil))

	key := fmt.Sprintf("device_token:%s:%s", userID, "d1")
	assert.True(t, mr.Exists(key))
	assert.True(t, mr.Exists(fmt.Sprintf("user_device_index:%s", userID)))

	tokens, err := binder.UserDeviceTokens(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "push-token-1", tokens[0].Token)
	assert.True(t, tokens[0].IsActive)
}

func TestLinkToUserUnknownDevice(t *testing.T) {
	binder, _, _ := newTestBinder(t)

	err := binder.LinkToUser(context.Background(), uuid.New(), "ghost", nil, nil)
	assert.ErrorIs(t, err, apperr.ErrDeviceNotRegistered)
}

func TestUnlinkRemovesMirror(t *testing.T) {
	binder, repo, mr := newTestBinder(t)
	ctx := context.Background()
	userID := uuid.New()
	seedDevice(t, repo, "d1")

	push := "push-token-1"
	require.NoError(t, binder.LinkToUser(ctx, userID, "d1", &push, nil))
	require.NoError(t, binder.Unlink(ctx, userID, "d1"))

	assert.False(t, mr.Exists(fmt.Sprintf("device_token:%s:%s", userID, "d1")))

	tokens, err := binder.UserDeviceTokens(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestUserDeviceTokensRebuildsColdAggregate(t *testing.T) {
	binder, repo, mr := newTestBinder(t)
	ctx := context.Background()
	userID := uuid.New()
	seedDevice(t, repo, "d1")

	push := "push-token-1"
	require.NoError(t, binder.LinkToUser(ctx, userID, "d1", &push, nil))

	// Drop the aggregate, keep the per-device mirror.
	mr.Del(fmt.Sprintf("user_device_tokens:%s", userID))

	tokens, err := binder.UserDeviceTokens(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "push-token-1", tokens[0].Token)
}

func TestUserDeviceTokensDropsExpiredMirrors(t *testing.T) {
	binder, repo, mr := newTestBinder(t)
	ctx := context.Background()
	userID := uuid.New()
	seedDevice(t, repo, "d1")
	seedDevice(t, repo, "d2")

	p1, p2 := "push-1", "push-2"
	require.NoError(t, binder.LinkToUser(ctx, userID, "d1", &p1, nil))
	require.NoError(t, binder.LinkToUser(ctx, userID, "d2", &p2, nil))

	// One mirror entry expires; the index still references it.
	mr.Del(fmt.Sprintf("device_token:%s:%s", userID, "d1"))
	mr.Del(fmt.Sprintf("user_device_tokens:%s", userID))

	tokens, err := binder.UserDeviceTokens(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "push-2", tokens[0].Token)
}
