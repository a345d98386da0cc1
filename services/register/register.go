// Package register drives the two-phase registration flow: stage a profile,
// verify the OTP, then commit the account and issue the first session.
package register

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"veris/apperr"
	"veris/config"
	userRepo "veris/database/repository/user"
	"veris/models"
	"veris/services/auth"
	"veris/services/comms"
	"veris/services/otp"
	"veris/utils"
)

// Service implements the registration state machine.
type Service struct {
	users   userRepo.UserRepository
	otp     *otp.Service
	comms   comms.Dispatcher
	auth    *auth.Service
	pending *pendingStore
}

// NewService builds the registration service. The generic cache holds staged
// registrations.
func NewService(users userRepo.UserRepository, otpSvc *otp.Service, dispatcher comms.Dispatcher, authSvc *auth.Service, cache *redis.Client) *Service {
	return &Service{
		users: users,
		otp:   otpSvc,
		comms: dispatcher,
		auth:  authSvc,
		pending: &pendingStore{
			cache: cache,
			ttl:   time.Duration(config.AppConfig.PendingTTLSeconds) * time.Second,
		},
	}
}

func (s *Service) receiver(email, mobile, callingCode *string) (receiverType, receiver string, err error) {
	if email != nil && *email != "" {
		return utils.ReceiverEmail, *email, nil
	}
	if mobile != nil && *mobile != "" {
		if callingCode == nil || *callingCode == "" {
			return "", "", apperr.ErrCallingCodeRequired
		}
		return utils.ReceiverMobile, *callingCode + *mobile, nil
	}
	return "", "", apperr.ErrEmailOrMobileRequired
}

// Initiate validates a registration request, stages the profile and
// dispatches the verification OTP. No durable row is written yet.
func (s *Service) Initiate(ctx context.Context, req models.RegistrationRequest, sourceIP, country, platform string) (string, error) {
	logger := utils.GetLogger()

	receiverType, receiver, err := s.receiver(req.Email, req.Mobile, req.CallingCode)
	if err != nil {
		return "", err
	}
	if req.Password == "" {
		return "", apperr.ErrPasswordRequired
	}

	existing, err := s.lookupExisting(ctx, req.Email, req.Mobile, req.CallingCode)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", apperr.ErrUserAlreadyExists
	}

	if receiverType == utils.ReceiverMobile {
		if err := s.comms.VerifyMobile(ctx, *req.CallingCode, *req.Mobile); err != nil {
			return "", err
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrDatabase, err)
	}
	staged := &models.PendingRegistration{
		Email:        req.Email,
		Mobile:       req.Mobile,
		CallingCode:  req.CallingCode,
		PasswordHash: hash,
		Name:         req.Name,
		AvatarID:     req.AvatarID,
		ProfileImage: req.ProfileImage,
	}
	if country != "" {
		staged.Country = &country
	}
	if platform != "" {
		staged.Platform = &platform
	}
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err == nil {
			staged.BirthDate = &birth
		}
	}
	if err := s.pending.stage(ctx, staged); err != nil {
		return "", err
	}

	_, err = s.otp.Generate(ctx, otp.GenerateParams{
		Receiver:     receiver,
		ReceiverType: receiverType,
		Intent:       utils.IntentRegistration,
		SourceIP:     sourceIP,
		Username:     req.Name,
	})
	if err != nil {
		return "", err
	}

	logger.Info("registration staged",
		zap.String("receiver_type", receiverType))
	return verifyDeepLink(receiverType, receiver), nil
}

func (s *Service) lookupExisting(ctx context.Context, email, mobile, callingCode *string) (*models.User, error) {
	if email != nil && *email != "" {
		return s.users.GetByEmail(ctx, *email)
	}
	return s.users.GetByMobile(ctx, *callingCode, *mobile)
}

func verifyDeepLink(receiverType, receiver string) string {
	query := url.Values{"intent": {utils.IntentRegistration}}
	if receiverType == utils.ReceiverEmail {
		query.Set("email", receiver)
	} else {
		query.Set("mobile", receiver)
	}
	return fmt.Sprintf(utils.DeepLinkVerifyOTP, query.Encode())
}

// Resend re-dispatches the OTP for a still-open registration session.
func (s *Service) Resend(ctx context.Context, email, mobile, callingCode *string, sourceIP string) (string, error) {
	receiverType, receiver, err := s.receiver(email, mobile, callingCode)
	if err != nil {
		return "", err
	}

	identifier := receiver
	staged, err := s.pending.load(ctx, identifier)
	if err != nil {
		return "", err
	}
	if staged == nil {
		return "", apperr.ErrRegistrationSessionClosed
	}

	_, err = s.otp.Generate(ctx, otp.GenerateParams{
		Receiver:     receiver,
		ReceiverType: receiverType,
		Intent:       utils.IntentRegistration,
		SourceIP:     sourceIP,
		IsResend:     true,
		Username:     staged.Name,
	})
	if err != nil {
		return "", err
	}
	return verifyDeepLink(receiverType, receiver), nil
}

// Confirm verifies the OTP, commits the staged account and issues the first
// session. The vendor exchange is bypassed here; the subject is provisioned
// on first login instead. The staged record is removed whether or not the
// insert succeeds, so a conflict cannot be retried against stale data.
func (s *Service) Confirm(ctx context.Context, req models.ConfirmRegistrationRequest, clientID, deviceID string) (*auth.Session, error) {
	logger := utils.GetLogger()

	receiverType, receiver, err := s.receiver(req.Email, req.Mobile, req.CallingCode)
	if err != nil {
		return nil, err
	}
	if err := s.otp.Verify(ctx, receiverType, receiver, utils.IntentRegistration, req.OTP); err != nil {
		return nil, err
	}

	staged, err := s.pending.load(ctx, receiver)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, apperr.ErrRegistrationSessionClosed
	}
	defer s.pending.delete(ctx, receiver)

	user := &models.User{
		ID:           uuid.New(),
		Email:        staged.Email,
		Mobile:       staged.Mobile,
		CallingCode:  staged.CallingCode,
		PasswordHash: staged.PasswordHash,
		Name:         staged.Name,
		AvatarID:     staged.AvatarID,
		BirthDate:    staged.BirthDate,
		ProfileImage: staged.ProfileImage,
		Country:      staged.Country,
		Platform:     staged.Platform,
		State:        models.UserStateActive,
	}
	if receiverType == utils.ReceiverEmail {
		user.EmailVerified = true
	} else {
		user.MobileVerified = true
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Info("account committed", zap.String("user_id", user.ID.String()))

	session, err := s.auth.Issue(ctx, user, clientID, deviceID, auth.VendorBypass)
	if err != nil {
		return nil, err
	}
	if deviceID != "" {
		s.auth.LinkDevice(ctx, user.ID, deviceID, session.Token)
	}
	return session, nil
}
