package utils

// Cache key prefixes. Formatted with fmt.Sprintf.
const (
	KeyEmailOTP         = "email_otp:%s:%s"      // receiver, intent
	KeyMobileOTP        = "mobile_otp:%s:%s"     // receiver (no leading +), intent
	KeyOTPReqCount      = "otp_req_count:%s:%s"  // source ip, receiver
	KeyBlockedIP        = "blocked_ip:%s:%s"     // source ip, receiver
	KeyPendingReg       = "registration:data:%s" // identifier
	KeyAuthToken        = "auth:%s:%s"           // user id, device id
	KeyDeviceToken      = "device_token:%s:%s"   // user id, device id
	KeyUserDeviceIndex  = "user_device_index:%s" // user id (set of device keys)
	KeyUserDeviceTokens = "user_device_tokens:%s"
)

// OTP intents.
const (
	IntentRegistration   = "registration"
	IntentForgotPassword = "forgot_password"
	IntentUpdateEmail    = "update_email"
	IntentUpdateMobile   = "update_mobile"
	IntentWaitlist       = "waitlist"
)

// Receiver types.
const (
	ReceiverEmail  = "email"
	ReceiverMobile = "mobile"
)

// Deep links returned by onboarding endpoints; advisory for the client.
const (
	DeepLinkVerifyOTP   = "verisapp://verify_otp?%s"
	DeepLinkLoginScreen = "verisapp://login?%s"
	DeepLinkSetPassword = "verisapp://set_password?%s"
)
