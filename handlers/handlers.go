// Package handlers exposes the HTTP surface. Handlers stay thin: decrypt the
// envelope, bind the payload, call one service, shape the response.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"veris/apperr"
	"veris/models"
	"veris/services/auth"
	"veris/services/device"
	"veris/services/envelope"
	"veris/services/register"
	"veris/utils"
)

// HandlerBundle carries the wired services for route registration.
type HandlerBundle struct {
	Codec    *envelope.Codec
	Register *register.Service
	Auth     *auth.Service
	Devices  *device.Binder
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		utils.GetLogger().Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(appErr.Status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}

// decryptInto opens the request envelope and binds the plaintext into out.
// On failure the response has already been written.
func (hb *HandlerBundle) decryptInto(c *gin.Context, out any) bool {
	var req models.EncryptedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.ErrMalformedEnvelope, err))
		return false
	}

	plaintext, err := hb.Codec.Decrypt(c.Request.Context(), req.Key, req.Data)
	if err != nil {
		respondError(c, err)
		return false
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		respondError(c, apperr.Wrap(apperr.ErrMalformedEnvelope, err))
		return false
	}
	return true
}

// HealthHandler reports liveness.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
