package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"veris/handlers"
	"veris/middleware"
)

// SetupRouter builds the engine with the global middleware stack.
func SetupRouter(hb *handlers.HandlerBundle) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-api-client", "x-device-id", "x-platform", "x-country", "x-app-version"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware())

	r.GET("/health", handlers.HealthHandler)
	RegisterUserRoutes(r, hb)
	return r
}

// RegisterUserRoutes registers the identity endpoints.
func RegisterUserRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/v1/user")
	api.Use(middleware.ClientHeadersMiddleware())
	{
		api.POST("/register_with_profile", hb.RegisterWithProfileHandler)
		api.POST("/verify_otp_register", hb.VerifyOTPRegisterHandler)
		api.POST("/resend_otp", hb.ResendOTPHandler)
		api.POST("/login", hb.LoginHandler)
		api.POST("/login/google", hb.SocialLoginHandler("google"))
		api.POST("/login/apple", hb.SocialLoginHandler("apple"))
		api.POST("/login/facebook", hb.SocialLoginHandler("facebook"))
		api.POST("/device/register", hb.DeviceRegisterHandler)
		api.POST("/forgot_password", hb.ForgotPasswordHandler)
		api.POST("/verify_otp", hb.VerifyOTPHandler)
		api.POST("/set_forgot_password", hb.SetForgotPasswordHandler)

		// Authenticated routes.
		protected := api.Group("")
		protected.Use(middleware.SessionAuthMiddleware(hb.Auth))
		protected.POST("/change_password", hb.ChangePasswordHandler)
		protected.POST("/logout", hb.LogoutHandler)
		protected.POST("/deactivate", hb.DeactivateHandler)
	}
}
