package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"veris/apperr"
	"veris/middleware"
	"veris/models"
)

// RegisterWithProfileHandler stages a registration and dispatches the OTP.
func (hb *HandlerBundle) RegisterWithProfileHandler(c *gin.Context) {
	var req models.RegistrationRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	link, err := hb.Register.Initiate(c.Request.Context(), req,
		c.GetString(middleware.CtxSourceIP),
		c.GetString(middleware.CtxCountry),
		c.GetString(middleware.CtxPlatform))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Verification code sent", gin.H{"deep_link": link})
}

// VerifyOTPRegisterHandler confirms the OTP and commits the account.
func (hb *HandlerBundle) VerifyOTPRegisterHandler(c *gin.Context) {
	var req models.ConfirmRegistrationRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	session, err := hb.Register.Confirm(c.Request.Context(), req,
		c.GetString(middleware.CtxClientID),
		c.GetString(middleware.CtxDeviceID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Account created", session)
}

// ResendOTPHandler re-dispatches the registration OTP.
func (hb *HandlerBundle) ResendOTPHandler(c *gin.Context) {
	var req models.VerifyOTPRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	link, err := hb.Register.Resend(c.Request.Context(),
		req.Email, req.Mobile, req.CallingCode,
		c.GetString(middleware.CtxSourceIP))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Verification code resent", gin.H{"deep_link": link})
}

// LoginHandler authenticates credentials and returns a session.
func (hb *HandlerBundle) LoginHandler(c *gin.Context) {
	var req models.LoginRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	session, err := hb.Auth.Login(c.Request.Context(), req,
		c.GetString(middleware.CtxClientID),
		c.GetString(middleware.CtxDeviceID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Logged in", session)
}

// SocialLoginHandler handles sign-in for one provider.
func (hb *HandlerBundle) SocialLoginHandler(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SocialLoginRequest
		if !hb.decryptInto(c, &req) {
			return
		}

		session, err := hb.Auth.SocialLogin(c.Request.Context(), provider, req,
			c.GetString(middleware.CtxClientID),
			c.GetString(middleware.CtxDeviceID),
			c.GetString(middleware.CtxPlatform))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "Logged in", session)
	}
}

// DeviceRegisterHandler creates a device record ahead of sign-in.
func (hb *HandlerBundle) DeviceRegisterHandler(c *gin.Context) {
	var req models.DeviceRegisterRequest
	if !hb.decryptInto(c, &req) {
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = c.GetString(middleware.CtxDeviceID)
	}
	if req.DeviceID == "" {
		respondError(c, apperr.ErrDeviceNotRegistered)
		return
	}

	dev := &models.Device{
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		DeviceType: req.DeviceType,
		Platform:   req.Platform,
		PushToken:  req.PushToken,
		DeviceIP:   req.DeviceIP,
	}
	if dev.DeviceIP == nil {
		ip := c.GetString(middleware.CtxSourceIP)
		dev.DeviceIP = &ip
	}

	if err := hb.Devices.Register(c.Request.Context(), dev); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Device registered", gin.H{"device_id": dev.DeviceID})
}

// ForgotPasswordHandler starts the recovery flow.
func (hb *HandlerBundle) ForgotPasswordHandler(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	link, err := hb.Auth.ForgotPassword(c.Request.Context(), req,
		c.GetString(middleware.CtxSourceIP),
		c.GetString(middleware.CtxDeviceID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Recovery code sent", gin.H{"deep_link": link})
}

// VerifyOTPHandler verifies a standalone code (recovery, profile updates).
func (hb *HandlerBundle) VerifyOTPHandler(c *gin.Context) {
	var req models.VerifyOTPRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	link, err := hb.Auth.VerifyOTP(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	data := gin.H{}
	if link != "" {
		data["deep_link"] = link
	}
	respondOK(c, "Code verified", data)
}

// SetForgotPasswordHandler commits the new password and signs the user in.
func (hb *HandlerBundle) SetForgotPasswordHandler(c *gin.Context) {
	var req models.SetForgotPasswordRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	session, err := hb.Auth.SetForgotPassword(c.Request.Context(), req,
		c.GetString(middleware.CtxClientID),
		c.GetString(middleware.CtxDeviceID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Password updated", session)
}

func authenticatedUser(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.GetString(middleware.CtxUserID))
	if err != nil {
		respondError(c, apperr.ErrUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

// ChangePasswordHandler rotates the password of the authenticated user.
func (hb *HandlerBundle) ChangePasswordHandler(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	var req models.ChangePasswordRequest
	if !hb.decryptInto(c, &req) {
		return
	}

	if err := hb.Auth.ChangePassword(c.Request.Context(), userID, req); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Password changed", nil)
}

// LogoutHandler revokes the session for the calling device.
func (hb *HandlerBundle) LogoutHandler(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	err := hb.Auth.Logout(c.Request.Context(), userID,
		c.GetString(middleware.CtxDeviceID),
		c.GetString(middleware.CtxToken))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Logged out", nil)
}

// DeactivateHandler disables the account and revokes every session.
func (hb *HandlerBundle) DeactivateHandler(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	err := hb.Auth.DeactivateAccount(c.Request.Context(), userID,
		c.GetString(middleware.CtxDeviceID),
		c.GetString(middleware.CtxToken))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Account deactivated", nil)
}
