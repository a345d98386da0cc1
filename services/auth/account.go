package auth

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veris/apperr"
	"veris/models"
	"veris/services/otp"
	"veris/utils"
)

const bcryptCost = 12

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) findByIdentifier(ctx context.Context, email, mobile, callingCode *string) (*models.User, error) {
	if email != nil && *email != "" {
		return s.users.GetByEmail(ctx, *email)
	}
	if mobile != nil && *mobile != "" {
		if callingCode == nil || *callingCode == "" {
			return nil, apperr.ErrCallingCodeRequired
		}
		return s.users.GetByMobile(ctx, *callingCode, *mobile)
	}
	return nil, apperr.ErrEmailOrMobileRequired
}

// Login authenticates credentials and issues a vendor-backed session. A
// deactivated account that presents valid credentials is reactivated.
func (s *Service) Login(ctx context.Context, req models.LoginRequest, clientID, deviceID string) (*Session, error) {
	logger := utils.GetLogger()

	if req.Password == "" {
		return nil, apperr.ErrPasswordRequired
	}
	user, err := s.findByIdentifier(ctx, req.Email, req.Mobile, req.CallingCode)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrUnauthorized
	}
	if user.State == models.UserStateBlocked {
		return nil, apperr.ErrAccountBlocked
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.ErrUnauthorized
	}

	if user.State == models.UserStateDeactivated {
		if err := s.users.UpdateState(ctx, user.ID, models.UserStateActive); err != nil {
			return nil, err
		}
		user.State = models.UserStateActive
	}

	session, err := s.Issue(ctx, user, clientID, deviceID, VendorMandatory)
	if err != nil {
		return nil, err
	}
	s.linkDevice(ctx, user.ID, deviceID, session.Token, logger)
	return session, nil
}

// SocialLogin verifies a provider credential and issues a session, creating
// the local account on first sight of the subject.
func (s *Service) SocialLogin(ctx context.Context, provider string, req models.SocialLoginRequest, clientID, deviceID, platform string) (*Session, error) {
	logger := utils.GetLogger()

	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrUnauthorized,
			fmt.Errorf("unsupported provider %q", provider))
	}
	info, err := verifier.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetBySocialIdentity(ctx, provider, info.SubjectID)
	if err != nil {
		return nil, err
	}
	if user == nil && info.Email != "" {
		user, err = s.users.GetByEmail(ctx, info.Email)
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		user, err = s.createSocialUser(ctx, info.Email, info.Name, platform)
		if err != nil {
			return nil, err
		}
	}
	if user.State == models.UserStateBlocked {
		return nil, apperr.ErrAccountBlocked
	}

	err = s.users.UpsertSocialIdentity(ctx, &models.SocialIdentity{
		UserID:   user.ID,
		Provider: provider,
		SocialID: info.SubjectID,
		Token:    req.IDToken,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.Issue(ctx, user, clientID, deviceID, VendorMandatory)
	if err != nil {
		return nil, err
	}
	s.linkDevice(ctx, user.ID, deviceID, session.Token, logger)
	return session, nil
}

func (s *Service) createSocialUser(ctx context.Context, email, name, platform string) (*models.User, error) {
	// Social accounts get an unguessable password; password login stays
	// closed until the user sets one through recovery.
	raw := uuid.NewString() + uuid.NewString()
	hash, err := HashPassword(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		PasswordHash: hash,
		Name:         name,
		State:        models.UserStateActive,
	}
	if email != "" {
		user.Email = &email
		user.EmailVerified = true
	}
	if platform != "" {
		user.Platform = &platform
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// LinkDevice binds the device after an issuance initiated outside this
// package. Failures are logged, not surfaced.
func (s *Service) LinkDevice(ctx context.Context, userID uuid.UUID, deviceID, token string) {
	s.linkDevice(ctx, userID, deviceID, token, utils.GetLogger())
}

func (s *Service) linkDevice(ctx context.Context, userID uuid.UUID, deviceID, token string, logger *zap.Logger) {
	if deviceID == "" {
		return
	}
	if err := s.devices.LinkToUser(ctx, userID, deviceID, nil, &token); err != nil {
		// Sign-in succeeds even when the device row is missing; the client
		// re-registers the device on next launch.
		logger.Warn("device link failed", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// requireRegisteredDevice gates the recovery flows on a known device row.
func (s *Service) requireRegisteredDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return apperr.ErrDeviceNotRegistered
	}
	registered, err := s.devices.IsRegistered(ctx, deviceID)
	if err != nil {
		return err
	}
	if !registered {
		return apperr.ErrDeviceNotRegistered
	}
	return nil
}

// ForgotPassword starts the recovery flow by dispatching an OTP to the
// account's verified channel. Returns the deep link the client should follow.
func (s *Service) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest, sourceIP, deviceID string) (string, error) {
	if err := s.requireRegisteredDevice(ctx, deviceID); err != nil {
		return "", err
	}
	user, err := s.findByIdentifier(ctx, req.Email, req.Mobile, req.CallingCode)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", apperr.ErrUserNotFound
	}
	if user.State == models.UserStateBlocked {
		return "", apperr.ErrAccountBlocked
	}

	params := otp.GenerateParams{
		Intent:   utils.IntentForgotPassword,
		SourceIP: sourceIP,
		Username: user.Name,
		ResetURL: s.resetURL,
	}
	if req.Email != nil && *req.Email != "" {
		params.Receiver = *req.Email
		params.ReceiverType = utils.ReceiverEmail
	} else {
		if err := s.comms.VerifyMobile(ctx, *req.CallingCode, *req.Mobile); err != nil {
			return "", err
		}
		params.Receiver = *req.CallingCode + *req.Mobile
		params.ReceiverType = utils.ReceiverMobile
	}

	if _, err := s.otp.Generate(ctx, params); err != nil {
		return "", err
	}

	query := url.Values{"intent": {utils.IntentForgotPassword}}
	if params.ReceiverType == utils.ReceiverEmail {
		query.Set("email", params.Receiver)
	} else {
		query.Set("mobile", params.Receiver)
	}
	return fmt.Sprintf(utils.DeepLinkVerifyOTP, query.Encode()), nil
}

// VerifyOTP consumes a standalone code outside the registration flow.
func (s *Service) VerifyOTP(ctx context.Context, req models.VerifyOTPRequest) (string, error) {
	receiverType := utils.ReceiverEmail
	receiver := ""
	if req.Email != nil && *req.Email != "" {
		receiver = *req.Email
	} else if req.Mobile != nil && req.CallingCode != nil {
		receiverType = utils.ReceiverMobile
		receiver = *req.CallingCode + *req.Mobile
	} else {
		return "", apperr.ErrEmailOrMobileRequired
	}

	if err := s.otp.Verify(ctx, receiverType, receiver, req.Intent, req.OTP); err != nil {
		return "", err
	}

	if req.Intent == utils.IntentForgotPassword {
		query := url.Values{}
		if receiverType == utils.ReceiverEmail {
			query.Set("email", receiver)
		} else {
			query.Set("mobile", receiver)
		}
		return fmt.Sprintf(utils.DeepLinkSetPassword, query.Encode()), nil
	}
	return "", nil
}

// SetForgotPassword commits a new password after OTP verification and signs
// the user in. The vendor exchange is best effort here.
func (s *Service) SetForgotPassword(ctx context.Context, req models.SetForgotPasswordRequest, clientID, deviceID string) (*Session, error) {
	logger := utils.GetLogger()

	if req.Password == "" {
		return nil, apperr.ErrPasswordRequired
	}
	if err := s.requireRegisteredDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrUserNotFound
	}
	if user.State == models.UserStateBlocked {
		return nil, apperr.ErrAccountBlocked
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	session, err := s.Issue(ctx, user, clientID, deviceID, VendorBestEffort)
	if err != nil {
		return nil, err
	}
	s.linkDevice(ctx, user.ID, deviceID, session.Token, logger)
	return session, nil
}

// ChangePassword rotates the password of an authenticated user and revokes
// every other session.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req models.ChangePasswordRequest) error {
	if req.NewPassword == "" {
		return apperr.ErrPasswordRequired
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return apperr.ErrUnauthorized
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	return s.tokens.DeactivateAllForUser(ctx, userID)
}
