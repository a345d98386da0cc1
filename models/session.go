package models

import (
	"time"

	"github.com/google/uuid"
)

// AppConsumer identifies a calling client application; its secret signs the
// local session tokens for that client.
type AppConsumer struct {
	ID           int64
	ClientID     string
	ClientSecret string
}

// AuthToken is the persisted session record for a (user, device) pair. The
// token value is mirrored into the auth cache for O(1) revocation checks.
type AuthToken struct {
	ID          int64
	Token       string
	UserID      uuid.UUID
	DeviceID    string
	ConsumerID  int64
	ExpiresAt   time.Time
	Active      bool
	LoggedOutAt *time.Time
	CreatedAt   time.Time
}

// RefreshToken pairs a long-lived opaque token with a (user, device) pair.
// Exactly one live refresh token exists per device; rotation replaces it.
type RefreshToken struct {
	Token     string
	UserID    uuid.UUID
	DeviceID  string
	CreatedAt time.Time
}
