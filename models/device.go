// File: veris/models/device.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is keyed by the externally supplied device identifier. UserID stays
// nil until the device is linked on a successful login or registration.
type Device struct {
	DeviceID      string     `json:"deviceId"`
	UserID        *uuid.UUID `json:"userId,omitempty"`
	DeviceName    string     `json:"deviceName"`
	DeviceType    string     `json:"deviceType"`
	Platform      string     `json:"platform"`
	DeviceIP      *string    `json:"deviceIp,omitempty"`
	PushToken     *string    `json:"pushToken,omitempty"`
	UserToken     *string    `json:"-"`
	Active        bool       `json:"active"`
	ActivatedAt   *time.Time `json:"activatedAt,omitempty"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// DeviceTokenMirror is the cache copy of an active push token, kept under
// device_token:{user}:{device} for fast fan-out lookups.
type DeviceTokenMirror struct {
	Token      string    `json:"token"`
	DeviceType string    `json:"device_type"`
	DeviceName string    `json:"device_name"`
	Platform   string    `json:"platform"`
	IsActive   bool      `json:"is_active"`
	UpdatedAt  time.Time `json:"updated_at"`
}
