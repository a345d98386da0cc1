package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisAuthDB   int    `mapstructure:"REDIS_AUTH_DB"`
	RedisOTPDB    int    `mapstructure:"REDIS_OTP_DB"`

	// Envelope decryption key: base64-encoded PKCS8 PEM. When empty the key
	// is fetched from the identity vendor's key custody API by CustodyKeyID.
	DecryptionPrivateKeyB64 string `mapstructure:"DECRYPTION_PRIVATE_KEY_B64"`
	CustodyKeyID            string `mapstructure:"CUSTODY_KEY_ID"`

	// Communication service (mail/SMS dispatch).
	CommsBaseURL             string `mapstructure:"COMMS_BASE_URL"`
	MailTemplateVerification int    `mapstructure:"MAIL_TEMPLATE_VERIFICATION"`
	MailTemplateResend       int    `mapstructure:"MAIL_TEMPLATE_RESEND"`
	MailTemplateForgotPass   int    `mapstructure:"MAIL_TEMPLATE_FORGOT_PASS"`
	ForgotPasswordResetURL   string `mapstructure:"FORGOT_PASSWORD_RESET_URL"`

	// External identity vendor.
	VendorBaseURL  string `mapstructure:"VENDOR_BASE_URL"`
	VendorAPIKey   string `mapstructure:"VENDOR_API_KEY"`
	VendorClientID string `mapstructure:"VENDOR_CLIENT_ID"`

	// Token lifetimes.
	TokenDays          int `mapstructure:"TOKEN_DAYS"`
	VendorTokenSeconds int `mapstructure:"VENDOR_TOKEN_SECONDS"`

	// OTP issuance and abuse control.
	OTPLength         int `mapstructure:"OTP_LENGTH"`
	OTPTTLSeconds     int `mapstructure:"OTP_TTL_SECONDS"`
	OTPWindowSeconds  int `mapstructure:"OTP_WINDOW_SECONDS"`
	OTPMaxRequests    int `mapstructure:"OTP_MAX_REQUESTS"`
	OTPBlockSeconds   int `mapstructure:"OTP_BLOCK_SECONDS"`
	PendingTTLSeconds int `mapstructure:"PENDING_TTL_SECONDS"`
	EnvelopeSkewSecs  int `mapstructure:"ENVELOPE_SKEW_SECONDS"`

	// Social sign-in.
	GoogleClientID    string `mapstructure:"GOOGLE_CLIENT_ID"`
	AppleClientID     string `mapstructure:"APPLE_CLIENT_ID"`
	FacebookAppID     string `mapstructure:"FACEBOOK_APP_ID"`
	FacebookAppSecret string `mapstructure:"FACEBOOK_APP_SECRET"`

	MaxRequestsPerMin int `mapstructure:"MAX_REQUESTS_PER_MIN"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATABASE_URL", "postgres://localhost:5432/veris?sslmode=disable")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_AUTH_DB", 1)
	viper.SetDefault("REDIS_OTP_DB", 2)
	viper.SetDefault("TOKEN_DAYS", 30)
	viper.SetDefault("VENDOR_TOKEN_SECONDS", 600)
	viper.SetDefault("OTP_LENGTH", 4)
	viper.SetDefault("OTP_TTL_SECONDS", 180)
	viper.SetDefault("OTP_WINDOW_SECONDS", 180)
	viper.SetDefault("OTP_MAX_REQUESTS", 3)
	viper.SetDefault("OTP_BLOCK_SECONDS", 86400)
	viper.SetDefault("PENDING_TTL_SECONDS", 900)
	viper.SetDefault("ENVELOPE_SKEW_SECONDS", 30)
	viper.SetDefault("MAIL_TEMPLATE_VERIFICATION", 10)
	viper.SetDefault("MAIL_TEMPLATE_RESEND", 11)
	viper.SetDefault("MAIL_TEMPLATE_FORGOT_PASS", 12)
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
