// Package otp issues and verifies one-time passcodes for onboarding and
// account-recovery flows, with per-source abuse control.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"veris/apperr"
	"veris/config"
	"veris/services/comms"
	"veris/utils"
)

// Service generates, dispatches and verifies OTP codes. Codes are stored in
// the OTP cache under (receiver, intent) and are strictly single use.
type Service struct {
	cache      *redis.Client
	guard      *Guard
	dispatcher comms.Dispatcher
	length     int
	ttl        time.Duration
}

// NewService builds an OTP Service.
func NewService(cache *redis.Client, guard *Guard, dispatcher comms.Dispatcher) *Service {
	return &Service{
		cache:      cache,
		guard:      guard,
		dispatcher: dispatcher,
		length:     config.AppConfig.OTPLength,
		ttl:        time.Duration(config.AppConfig.OTPTTLSeconds) * time.Second,
	}
}

// GenerateParams describes one OTP issuance request.
type GenerateParams struct {
	Receiver     string // email address, or full international number for mobile
	ReceiverType string // utils.ReceiverEmail or utils.ReceiverMobile
	Intent       string
	SourceIP     string
	IsResend     bool
	Username     string // greeting name for mail templates
	ResetURL     string // recovery-template link, forgot-password mail only
}

func codeKey(receiverType, receiver, intent string) string {
	if receiverType == utils.ReceiverMobile {
		// Mobile keys are stored without the leading plus.
		return fmt.Sprintf(utils.KeyMobileOTP, strings.TrimPrefix(receiver, "+"), intent)
	}
	return fmt.Sprintf(utils.KeyEmailOTP, receiver, intent)
}

func (s *Service) newCode() (string, error) {
	digits := make([]byte, s.length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// Generate mints a code, stores it under (receiver, intent) and dispatches it.
// A prior unexpired code for the same pair is silently replaced. Mobile
// delivery requires a client IP for the abuse guard.
func (s *Service) Generate(ctx context.Context, p GenerateParams) (string, error) {
	logger := utils.GetLogger()

	// Only mobile delivery is metered; mail codes overwrite in place and
	// cost nothing to reissue.
	if p.ReceiverType == utils.ReceiverMobile {
		if p.SourceIP == "" {
			return "", apperr.ErrClientIPMissing
		}
		if err := s.guard.CheckAndIncrement(ctx, p.SourceIP, p.Receiver); err != nil {
			return "", err
		}
	}

	code, err := s.newCode()
	if err != nil {
		return "", apperr.Wrap(apperr.ErrDispatchFailed, err)
	}
	key := codeKey(p.ReceiverType, p.Receiver, p.Intent)
	if err := s.cache.Set(ctx, key, code, s.ttl).Err(); err != nil {
		return "", apperr.Wrap(apperr.ErrCacheDown, err)
	}

	// The stored code is not rolled back on dispatch failure; the client is
	// told to retry and the next attempt overwrites it.
	if err := s.dispatch(ctx, p, code); err != nil {
		logger.Error("otp dispatch failed",
			zap.String("receiver_type", p.ReceiverType), zap.String("intent", p.Intent),
			zap.Error(err))
		return "", err
	}
	return code, nil
}

func (s *Service) dispatch(ctx context.Context, p GenerateParams, code string) error {
	if p.ReceiverType == utils.ReceiverMobile {
		return s.dispatcher.SendSMS(ctx, strings.TrimPrefix(p.Receiver, "+"),
			fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
				code, int(s.ttl.Minutes())))
	}

	params := map[string]string{
		"otp":      code,
		"username": p.Username,
	}
	if p.ResetURL != "" {
		params["reset_url"] = p.ResetURL
	}
	return s.dispatcher.SendMail(ctx, comms.Mail{
		Recipients: []string{p.Receiver},
		TemplateID: s.mailTemplate(p),
		Params:     params,
	})
}

func (s *Service) mailTemplate(p GenerateParams) int {
	if p.Intent == utils.IntentForgotPassword {
		return config.AppConfig.MailTemplateForgotPass
	}
	if p.IsResend {
		return config.AppConfig.MailTemplateResend
	}
	return config.AppConfig.MailTemplateVerification
}

// Verify consumes the stored code for (receiver, intent). A missing record
// means the code expired; a mismatch leaves the record in place for another
// attempt within the TTL.
func (s *Service) Verify(ctx context.Context, receiverType, receiver, intent, code string) error {
	key := codeKey(receiverType, receiver, intent)
	stored, err := s.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return apperr.ErrOtpExpired
	}
	if err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return apperr.ErrOtpInvalid
	}
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		return apperr.Wrap(apperr.ErrCacheDown, err)
	}
	return nil
}
