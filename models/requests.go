package models

// EncryptedRequest is the wire shape of every sensitive request body:
// an RSA-wrapped AES key plus base64(iv || ciphertext || tag).
type EncryptedRequest struct {
	Key  string `json:"key" binding:"required"`
	Data string `json:"data" binding:"required"`
}

// RegistrationRequest is the decrypted payload of register_with_profile.
type RegistrationRequest struct {
	Email        *string `json:"email,omitempty"`
	Mobile       *string `json:"mobile,omitempty"`
	CallingCode  *string `json:"calling_code,omitempty"`
	Password     string  `json:"password"`
	Name         string  `json:"name"`
	AvatarID     *string `json:"avatar_id,omitempty"`
	BirthDate    *string `json:"birth_date,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`
	Timestamp    int64   `json:"timestamp"`
}

// ConfirmRegistrationRequest is the decrypted payload of verify_otp_register.
type ConfirmRegistrationRequest struct {
	Email       *string `json:"email,omitempty"`
	Mobile      *string `json:"mobile,omitempty"`
	CallingCode *string `json:"calling_code,omitempty"`
	Intent      string  `json:"intent"`
	OTP         string  `json:"otp"`
	Timestamp   int64   `json:"timestamp"`
}

// LoginRequest authenticates by email or by mobile + calling code.
type LoginRequest struct {
	Email       *string `json:"email,omitempty"`
	Mobile      *string `json:"mobile,omitempty"`
	CallingCode *string `json:"calling_code,omitempty"`
	Password    string  `json:"password"`
	Timestamp   int64   `json:"timestamp"`
}

// SocialLoginRequest carries the provider-issued token to verify.
type SocialLoginRequest struct {
	IDToken   string `json:"id_token"`
	UID       string `json:"uid,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// DeviceRegisterRequest bootstraps a device row before any user exists.
type DeviceRegisterRequest struct {
	DeviceID   string  `json:"device_id"`
	DeviceName string  `json:"device_name"`
	DeviceType string  `json:"device_type"`
	Platform   string  `json:"platform"`
	PushToken  *string `json:"push_token,omitempty"`
	DeviceIP   *string `json:"device_ip,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// ForgotPasswordRequest starts the recovery OTP flow.
type ForgotPasswordRequest struct {
	Email       *string `json:"email,omitempty"`
	Mobile      *string `json:"mobile,omitempty"`
	CallingCode *string `json:"calling_code,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

// VerifyOTPRequest verifies a standalone OTP (recovery, profile updates).
type VerifyOTPRequest struct {
	Email       *string `json:"email,omitempty"`
	Mobile      *string `json:"mobile,omitempty"`
	CallingCode *string `json:"calling_code,omitempty"`
	Intent      string  `json:"intent"`
	OTP         string  `json:"otp"`
	Timestamp   int64   `json:"timestamp"`
}

// SetForgotPasswordRequest commits the new password after OTP verification.
type SetForgotPasswordRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Timestamp int64  `json:"timestamp"`
}

// ChangePasswordRequest rotates the password of an authenticated user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Timestamp       int64  `json:"timestamp"`
}
