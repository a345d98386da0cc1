package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Context keys populated by the header middleware.
const (
	CtxClientID = "clientID"
	CtxDeviceID = "deviceID"
	CtxPlatform = "platform"
	CtxCountry  = "country"
	CtxUserID   = "userID"
	CtxToken    = "authToken"
	CtxSourceIP = "sourceIP"
)

// ClientHeadersMiddleware validates the common app headers and stores them on
// the request context. Every app-facing route runs behind it.
func ClientHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader("x-api-client")
		if clientID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "US003", "message": "Missing x-api-client header"},
			})
			return
		}

		c.Set(CtxClientID, clientID)
		c.Set(CtxDeviceID, c.GetHeader("x-device-id"))
		c.Set(CtxPlatform, c.GetHeader("x-platform"))
		c.Set(CtxCountry, c.GetHeader("x-country"))
		c.Set(CtxSourceIP, GetClientIP(c))
		c.Next()
	}
}
