package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veris/config"
	"veris/database"
	tokenRepoPkg "veris/database/repository/authtoken"
	deviceRepoPkg "veris/database/repository/device"
	userRepoPkg "veris/database/repository/user"
	"veris/handlers"
	"veris/routes"
	"veris/services/auth"
	"veris/services/comms"
	"veris/services/device"
	"veris/services/envelope"
	"veris/services/otp"
	"veris/services/register"
	"veris/services/socialauth"
	"veris/services/vendor"
	"veris/utils"
)

func main() {
	config.LoadConfig()
	utils.InitializeLogger()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitRedis()

	// Repositories.
	users := userRepoPkg.NewPostgresUserRepo(database.Pool)
	devices := deviceRepoPkg.NewPostgresDeviceRepo(database.Pool)
	tokens := tokenRepoPkg.NewPostgresTokenRepo(database.Pool)

	// Collaborators.
	vendorClient := vendor.NewClient(config.AppConfig.VendorBaseURL, config.AppConfig.VendorAPIKey)
	dispatcher := comms.NewClient(config.AppConfig.CommsBaseURL)

	var custody envelope.KeyCustody = vendorClient
	if config.AppConfig.DecryptionPrivateKeyB64 != "" {
		custody = envelope.StaticCustody{KeyB64: config.AppConfig.DecryptionPrivateKeyB64}
	}
	codec := envelope.NewCodec(custody, config.AppConfig.CustodyKeyID,
		time.Duration(config.AppConfig.EnvelopeSkewSecs)*time.Second)

	// Services.
	guard := otp.NewGuard(utils.GetOTPCacheClient(),
		config.AppConfig.OTPMaxRequests,
		time.Duration(config.AppConfig.OTPWindowSeconds)*time.Second,
		time.Duration(config.AppConfig.OTPBlockSeconds)*time.Second)
	otpService := otp.NewService(utils.GetOTPCacheClient(), guard, dispatcher)

	binder := device.NewBinder(devices, utils.GetCacheClient())

	authService := auth.NewService(auth.Config{
		Users:     users,
		Tokens:    tokens,
		Devices:   binder,
		Vendor:    vendorClient,
		OTP:       otpService,
		Comms:     dispatcher,
		AuthCache: utils.GetAuthCacheClient(),
		Verifiers: []socialauth.Verifier{
			socialauth.NewGoogleVerifier(config.AppConfig.GoogleClientID),
			socialauth.NewAppleVerifier(config.AppConfig.AppleClientID),
			socialauth.NewFacebookVerifier(config.AppConfig.FacebookAppID, config.AppConfig.FacebookAppSecret),
		},
		TokenTTL:  time.Duration(config.AppConfig.TokenDays) * 24 * time.Hour,
		VendorTTL: time.Duration(config.AppConfig.VendorTokenSeconds) * time.Second,
		ResetURL:  config.AppConfig.ForgotPasswordResetURL,
	})

	registerService := register.NewService(users, otpService, dispatcher, authService, utils.GetCacheClient())

	handlerBundle := &handlers.HandlerBundle{
		Codec:    codec,
		Register: registerService,
		Auth:     authService,
		Devices:  binder,
	}

	router := routes.SetupRouter(handlerBundle)

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
