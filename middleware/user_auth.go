package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"veris/apperr"
	"veris/services/auth"
)

// SessionAuthMiddleware authenticates the bearer token against the session
// service and binds the resolved user to the request context. The device in
// the token must match the device header.
func SessionAuthMiddleware(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString(CtxClientID)

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c)
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authSvc.VerifyRequest(c.Request.Context(), clientID, tokenStr)
		if err != nil {
			appErr := apperr.From(err)
			c.AbortWithStatusJSON(appErr.Status, gin.H{
				"error": gin.H{"code": appErr.Code, "message": appErr.Message},
			})
			return
		}

		headerDevice := c.GetString(CtxDeviceID)
		if claims.DeviceID != "" && headerDevice != "" && claims.DeviceID != headerDevice {
			abortUnauthorized(c)
			return
		}

		c.Set(CtxUserID, claims.Subject)
		c.Set(CtxToken, tokenStr)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": apperr.ErrUnauthorized.Code, "message": apperr.ErrUnauthorized.Message},
	})
}
