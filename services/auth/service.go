// Package auth issues, verifies and revokes user sessions, coordinating the
// local signing path with the external identity vendor.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"veris/apperr"
	tokenRepo "veris/database/repository/authtoken"
	userRepo "veris/database/repository/user"
	"veris/models"
	"veris/services/device"
	"veris/services/otp"
	"veris/services/socialauth"
	"veris/services/vendor"
	"veris/utils"
)

// VendorMode controls whether session issuance also vends a token from the
// identity vendor. The locally signed token is always the session credential;
// the vendor token rides alongside for vendor-side APIs, and a successful
// exchange shortens the session lease to the vendor lease.
type VendorMode int

const (
	// VendorBypass issues a local token only. Used right after registration,
	// where the vendor subject is provisioned lazily on first login.
	VendorBypass VendorMode = iota
	// VendorMandatory requires a vendor token; exchange failure fails the
	// whole issuance. Used on login paths.
	VendorMandatory
	// VendorBestEffort tries the exchange but issues a local-only session on
	// failure. Used on the password-recovery path so a vendor outage cannot
	// lock a user out of their own reset.
	VendorBestEffort
)

// Session is the result of a successful issuance.
type Session struct {
	Token        string       `json:"token"`
	VendorToken  string       `json:"vendor_token,omitempty"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *models.User `json:"user"`
}

// Service issues and verifies sessions.
type Service struct {
	users     userRepo.UserRepository
	tokens    tokenRepo.TokenRepository
	devices   *device.Binder
	vendor    vendor.Exchanger
	otp       *otp.Service
	comms     commsSender
	authCache *redis.Client
	verifiers map[string]socialauth.Verifier

	tokenTTL  time.Duration
	vendorTTL time.Duration
	resetURL  string
}

// commsSender is the slice of the comms surface the recovery flow needs.
type commsSender interface {
	VerifyMobile(ctx context.Context, callingCode, mobile string) error
}

// Config wires a Service.
type Config struct {
	Users     userRepo.UserRepository
	Tokens    tokenRepo.TokenRepository
	Devices   *device.Binder
	Vendor    vendor.Exchanger
	OTP       *otp.Service
	Comms     commsSender
	AuthCache *redis.Client
	Verifiers []socialauth.Verifier
	TokenTTL  time.Duration
	VendorTTL time.Duration
	ResetURL  string
}

// NewService builds the session service.
func NewService(cfg Config) *Service {
	verifiers := make(map[string]socialauth.Verifier, len(cfg.Verifiers))
	for _, v := range cfg.Verifiers {
		verifiers[v.Provider()] = v
	}
	return &Service{
		users:     cfg.Users,
		tokens:    cfg.Tokens,
		devices:   cfg.Devices,
		vendor:    cfg.Vendor,
		otp:       cfg.OTP,
		comms:     cfg.Comms,
		authCache: cfg.AuthCache,
		verifiers: verifiers,
		tokenTTL:  cfg.TokenTTL,
		vendorTTL: cfg.VendorTTL,
		resetURL:  cfg.ResetURL,
	}
}

// Issue creates a session for the user on the given device. The persisted row
// is authoritative; the cache mirror under auth:{user}:{device} carries the
// same TTL for fast verification.
func (s *Service) Issue(ctx context.Context, user *models.User, clientID, deviceID string, mode VendorMode) (*Session, error) {
	logger := utils.GetLogger()

	consumer, err := s.tokens.GetConsumerByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if consumer == nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized,
			fmt.Errorf("unknown client %q", clientID))
	}

	vendorToken := ""
	ttl := s.tokenTTL
	if mode != VendorBypass && s.vendor != nil {
		vt, vendorErr := s.exchangeWithVendor(ctx, user, deviceID)
		switch {
		case vendorErr == nil:
			vendorToken = vt
			ttl = s.vendorTTL
		case mode == VendorMandatory:
			return nil, vendorErr
		default:
			logger.Warn("vendor exchange failed, issuing local-only session",
				zap.String("user_id", user.ID.String()), zap.Error(vendorErr))
		}
	}

	token, expiresAt, err := signSessionToken(consumer.ClientSecret, user.ID, clientID, deviceID, ttl)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, err)
	}

	row := &models.AuthToken{
		Token:      token,
		UserID:     user.ID,
		DeviceID:   deviceID,
		ConsumerID: consumer.ID,
		ExpiresAt:  expiresAt,
	}
	if err := s.tokens.InsertToken(ctx, row); err != nil {
		return nil, err
	}

	mirrorKey := fmt.Sprintf(utils.KeyAuthToken, user.ID, deviceID)
	if err := s.authCache.Set(ctx, mirrorKey, token, time.Until(expiresAt)).Err(); err != nil {
		logger.Warn("session mirror write failed",
			zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	refresh, err := s.rotateRefreshToken(ctx, user.ID, deviceID)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:        token,
		VendorToken:  vendorToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

func (s *Service) exchangeWithVendor(ctx context.Context, user *models.User, deviceID string) (string, error) {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	if err := s.vendor.EnsureSubject(ctx, user.ID.String(), email); err != nil {
		return "", err
	}
	return s.vendor.VendToken(ctx, user.ID.String(), map[string]any{
		"device_id": deviceID,
	}, s.vendorTTL)
}

// rotateRefreshToken mints an opaque 256-bit token and replaces the previous
// one for the (user, device) pair.
func (s *Service) rotateRefreshToken(ctx context.Context, userID uuid.UUID, deviceID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", apperr.Wrap(apperr.ErrDatabase, err)
	}
	token := hex.EncodeToString(raw)
	err := s.tokens.ReplaceRefreshToken(ctx, &models.RefreshToken{
		Token:    token,
		UserID:   userID,
		DeviceID: deviceID,
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// VerifyRequest authenticates a bearer token for the given client. The mirror
// must hold the same token value, so a logout anywhere revokes immediately.
func (s *Service) VerifyRequest(ctx context.Context, clientID, tokenStr string) (*SessionClaims, error) {
	consumer, err := s.tokens.GetConsumerByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if consumer == nil {
		return nil, apperr.ErrUnauthorized
	}

	claims, err := parseSessionToken(consumer.ClientSecret, tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.ClientID != clientID {
		return nil, apperr.ErrUnauthorized
	}

	mirrorKey := fmt.Sprintf(utils.KeyAuthToken, claims.Subject, claims.DeviceID)
	mirrored, err := s.authCache.Get(ctx, mirrorKey).Result()
	if err == redis.Nil || (err == nil && mirrored != tokenStr) {
		return nil, apperr.ErrUnauthorized
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrCacheDown, err)
	}
	return claims, nil
}

// Logout revokes the session for one device: mirror first, then the row, then
// the device mirror entries.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, deviceID, tokenStr string) error {
	mirrorKey := fmt.Sprintf(utils.KeyAuthToken, userID, deviceID)
	if err := s.authCache.Del(ctx, mirrorKey).Err(); err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}
	if err := s.tokens.DeactivateToken(ctx, userID, tokenStr); err != nil {
		return err
	}
	if err := s.devices.Unlink(ctx, userID, deviceID); err != nil {
		// The session is already dead; a stale device row is harmless.
		utils.GetLogger().Warn("device unlink on logout failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}
	return nil
}

// DeactivateAccount disables the account and revokes every session.
func (s *Service) DeactivateAccount(ctx context.Context, userID uuid.UUID, deviceID, tokenStr string) error {
	if err := s.users.UpdateState(ctx, userID, models.UserStateDeactivated); err != nil {
		return err
	}
	if err := s.tokens.DeactivateAllForUser(ctx, userID); err != nil {
		return err
	}
	return s.Logout(ctx, userID, deviceID, tokenStr)
}
