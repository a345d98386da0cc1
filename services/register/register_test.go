package register

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veris/apperr"
	"veris/config"
	"veris/models"
	"veris/services/auth"
	"veris/services/comms"
	"veris/services/device"
	"veris/services/otp"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cloned := *u
	return &cloned, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email != nil && *u.Email == email {
			cloned := *u
			return &cloned, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByMobile(ctx context.Context, callingCode, mobile string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Mobile != nil && *u.Mobile == mobile &&
			u.CallingCode != nil && *u.CallingCode == callingCode {
			cloned := *u
			return &cloned, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if user.Email != nil && u.Email != nil && *u.Email == *user.Email {
			return apperr.ErrUserAlreadyExists
		}
		if user.Mobile != nil && u.Mobile != nil && *u.Mobile == *user.Mobile {
			return apperr.ErrUserAlreadyExists
		}
	}
	cloned := *user
	f.users[user.ID] = &cloned
	return nil
}

func (f *fakeUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return nil
}

func (f *fakeUserRepo) UpdateState(ctx context.Context, id uuid.UUID, state string) error {
	return nil
}

func (f *fakeUserRepo) GetBySocialIdentity(ctx context.Context, provider, socialID string) (*models.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) UpsertSocialIdentity(ctx context.Context, identity *models.SocialIdentity) error {
	return nil
}

type fakeTokenRepo struct{}

func (fakeTokenRepo) GetConsumerByClientID(ctx context.Context, clientID string) (*models.AppConsumer, error) {
	if clientID != "client-1" {
		return nil, nil
	}
	return &models.AppConsumer{ID: 1, ClientID: "client-1", ClientSecret: "secret-1"}, nil
}

func (fakeTokenRepo) InsertToken(ctx context.Context, token *models.AuthToken) error { return nil }

func (fakeTokenRepo) DeactivateToken(ctx context.Context, userID uuid.UUID, token string) error {
	return nil
}

func (fakeTokenRepo) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) error { return nil }

func (fakeTokenRepo) ReplaceRefreshToken(ctx context.Context, refresh *models.RefreshToken) error {
	return nil
}

type fakeDeviceRepo struct{}

func (fakeDeviceRepo) Exists(ctx context.Context, deviceID string) (bool, error) { return true, nil }
func (fakeDeviceRepo) Create(ctx context.Context, d *models.Device) error        { return nil }
func (fakeDeviceRepo) GetByID(ctx context.Context, deviceID string) (*models.Device, error) {
	return &models.Device{DeviceID: deviceID, Active: true}, nil
}

func (fakeDeviceRepo) LinkToUser(ctx context.Context, deviceID string, userID uuid.UUID, pushToken, userToken *string) error {
	return nil
}

func (fakeDeviceRepo) Deactivate(ctx context.Context, deviceID string) error { return nil }

type recordingDispatcher struct {
	mails         []comms.Mail
	sms           []string
	invalidMobile string
}

func (r *recordingDispatcher) SendMail(ctx context.Context, mail comms.Mail) error {
	r.mails = append(r.mails, mail)
	return nil
}

func (r *recordingDispatcher) SendSMS(ctx context.Context, mobile, message string) error {
	r.sms = append(r.sms, mobile)
	return nil
}

func (r *recordingDispatcher) VerifyMobile(ctx context.Context, callingCode, mobile string) error {
	if mobile == r.invalidMobile {
		return apperr.ErrMobileInvalid
	}
	return nil
}

type regFixture struct {
	svc        *Service
	users      *fakeUserRepo
	dispatcher *recordingDispatcher
	cache      *redis.Client
	mr         *miniredis.Miniredis
}

func newRegFixture(t *testing.T) *regFixture {
	t.Helper()

	config.AppConfig.OTPLength = 4
	config.AppConfig.OTPTTLSeconds = 180
	config.AppConfig.PendingTTLSeconds = 900

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	users := newFakeUserRepo()
	dispatcher := &recordingDispatcher{}

	guard := otp.NewGuard(cache, 3, 3*time.Minute, 24*time.Hour)
	otpSvc := otp.NewService(cache, guard, dispatcher)

	authSvc := auth.NewService(auth.Config{
		Users:     users,
		Tokens:    fakeTokenRepo{},
		Devices:   device.NewBinder(fakeDeviceRepo{}, cache),
		OTP:       otpSvc,
		Comms:     dispatcher,
		AuthCache: cache,
		TokenTTL:  30 * 24 * time.Hour,
		VendorTTL: 600 * time.Second,
	})

	svc := NewService(users, otpSvc, dispatcher, authSvc, cache)
	return &regFixture{svc: svc, users: users, dispatcher: dispatcher, cache: cache, mr: mr}
}

func emailRequest(email string) models.RegistrationRequest {
	return models.RegistrationRequest{
		Email:    &email,
		Password: "pw-123456",
		Name:     "Ada",
	}
}

func TestInitiateStagesAndDispatches(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	link, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "KE", "android")
	require.NoError(t, err)
	assert.Contains(t, link, "verisapp://verify_otp")
	require.Len(t, fx.dispatcher.mails, 1)

	// Staged record exists; no durable account yet.
	assert.True(t, fx.mr.Exists("registration:data:a@b.com"))
	assert.Empty(t, fx.users.users)
}

func TestInitiateValidation(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, models.RegistrationRequest{Password: "x"}, "", "", "")
	assert.ErrorIs(t, err, apperr.ErrEmailOrMobileRequired)

	email := "a@b.com"
	_, err = fx.svc.Initiate(ctx, models.RegistrationRequest{Email: &email}, "", "", "")
	assert.ErrorIs(t, err, apperr.ErrPasswordRequired)

	mobile := "7001112222"
	_, err = fx.svc.Initiate(ctx, models.RegistrationRequest{
		Mobile: &mobile, Password: "pw-123456",
	}, "10.0.0.1", "", "")
	assert.ErrorIs(t, err, apperr.ErrCallingCodeRequired)
}

func TestInitiateExistingUser(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	email := "a@b.com"
	require.NoError(t, fx.users.Create(ctx, &models.User{ID: uuid.New(), Email: &email}))

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "", "")
	assert.ErrorIs(t, err, apperr.ErrUserAlreadyExists)
}

func TestInitiateInvalidMobile(t *testing.T) {
	fx := newRegFixture(t)
	fx.dispatcher.invalidMobile = "7001112222"

	mobile, cc := "7001112222", "+1"
	_, err := fx.svc.Initiate(context.Background(), models.RegistrationRequest{
		Mobile: &mobile, CallingCode: &cc, Password: "pw-123456",
	}, "10.0.0.1", "", "")
	assert.ErrorIs(t, err, apperr.ErrMobileInvalid)
}

func TestInitiateOverwritesStagedProfile(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "", "")
	require.NoError(t, err)

	second := emailRequest("a@b.com")
	second.Name = "Grace"
	_, err = fx.svc.Initiate(ctx, second, "10.0.0.1", "", "")
	require.NoError(t, err)

	staged, err := fx.svc.pending.load(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, staged)
	assert.Equal(t, "Grace", staged.Name)
}

func confirmRequest(email, code string) models.ConfirmRegistrationRequest {
	return models.ConfirmRegistrationRequest{
		Email: &email,
		OTP:   code,
	}
}

func TestConfirmCommitsAccount(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "KE", "android")
	require.NoError(t, err)

	code := fx.dispatcher.mails[0].Params["otp"]
	session, err := fx.svc.Confirm(ctx, confirmRequest("a@b.com", code), "client-1", "d1")
	require.NoError(t, err)
	require.NotNil(t, session.User)
	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.RefreshToken)
	assert.True(t, session.User.EmailVerified)
	assert.Equal(t, "Ada", session.User.Name)

	// One durable account, staged record gone.
	assert.Len(t, fx.users.users, 1)
	assert.False(t, fx.mr.Exists("registration:data:a@b.com"))
}

func TestConfirmWrongOTP(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "", "")
	require.NoError(t, err)

	_, err = fx.svc.Confirm(ctx, confirmRequest("a@b.com", "xxxx"), "client-1", "d1")
	assert.ErrorIs(t, err, apperr.ErrOtpInvalid)
	assert.Empty(t, fx.users.users)
	// The session stays open for a corrected retry.
	assert.True(t, fx.mr.Exists("registration:data:a@b.com"))
}

func TestConfirmExpiredOTP(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "", "")
	require.NoError(t, err)

	fx.mr.FastForward(181 * time.Second)

	code := fx.dispatcher.mails[0].Params["otp"]
	_, err = fx.svc.Confirm(ctx, confirmRequest("a@b.com", code), "client-1", "d1")
	assert.ErrorIs(t, err, apperr.ErrOtpExpired)
}

func TestConfirmSessionClosed(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "", "")
	require.NoError(t, err)

	code := fx.dispatcher.mails[0].Params["otp"]
	// The staged record expires but the OTP is re-issued later; the commit
	// still has nothing to commit.
	fx.mr.Del("registration:data:a@b.com")

	_, err = fx.svc.Confirm(ctx, confirmRequest("a@b.com", code), "client-1", "d1")
	assert.ErrorIs(t, err, apperr.ErrRegistrationSessionClosed)
}

func TestConfirmRaceLosesToExistingAccount(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "", "")
	require.NoError(t, err)

	// Another path created the same account between stage and commit.
	email := "a@b.com"
	require.NoError(t, fx.users.Create(ctx, &models.User{ID: uuid.New(), Email: &email}))

	code := fx.dispatcher.mails[0].Params["otp"]
	_, err = fx.svc.Confirm(ctx, confirmRequest("a@b.com", code), "client-1", "d1")
	assert.ErrorIs(t, err, apperr.ErrUserAlreadyExists)

	// The stale staged record is gone either way.
	assert.False(t, fx.mr.Exists("registration:data:a@b.com"))
}

func TestResend(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, emailRequest("a@b.com"), "10.0.0.1", "", "")
	require.NoError(t, err)

	email := "a@b.com"
	link, err := fx.svc.Resend(ctx, &email, nil, nil, "10.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, link, "verisapp://verify_otp")
	require.Len(t, fx.dispatcher.mails, 2)

	// The resent code replaces the original.
	code := fx.dispatcher.mails[1].Params["otp"]
	_, err = fx.svc.Confirm(ctx, confirmRequest("a@b.com", code), "client-1", "d1")
	assert.NoError(t, err)
}

func TestResendWithoutOpenSession(t *testing.T) {
	fx := newRegFixture(t)

	email := "a@b.com"
	_, err := fx.svc.Resend(context.Background(), &email, nil, nil, "10.0.0.1")
	assert.ErrorIs(t, err, apperr.ErrRegistrationSessionClosed)
}

func TestMobileRegistrationFlow(t *testing.T) {
	fx := newRegFixture(t)
	ctx := context.Background()

	mobile, cc := "7001112222", "+1"
	_, err := fx.svc.Initiate(ctx, models.RegistrationRequest{
		Mobile: &mobile, CallingCode: &cc, Password: "pw-123456", Name: "Ada",
	}, "10.0.0.1", "", "")
	require.NoError(t, err)
	require.Len(t, fx.dispatcher.sms, 1)

	code, err := fx.cache.Get(ctx, "mobile_otp:17001112222:registration").Result()
	require.NoError(t, err)

	session, err := fx.svc.Confirm(ctx, models.ConfirmRegistrationRequest{
		Mobile: &mobile, CallingCode: &cc, OTP: code,
	}, "client-1", "d1")
	require.NoError(t, err)
	assert.True(t, session.User.MobileVerified)
	assert.False(t, session.User.EmailVerified)
}
