// File: veris/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// User lifecycle states.
const (
	UserStateActive      = "active"
	UserStateBlocked     = "blocked"
	UserStateDeactivated = "deactivated"
)

// User is the durable account record. Email and (calling_code, mobile) are
// unique in the relational store; that constraint is the final backstop
// against duplicate registrations.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Email          *string    `json:"email,omitempty"`
	Mobile         *string    `json:"mobile,omitempty"`
	CallingCode    *string    `json:"callingCode,omitempty"`
	PasswordHash   string     `json:"-"`
	Name           string     `json:"name"`
	AvatarID       *string    `json:"avatarId,omitempty"`
	BirthDate      *time.Time `json:"birthDate,omitempty"`
	ProfileImage   *string    `json:"profileImage,omitempty"`
	Country        *string    `json:"country,omitempty"`
	Platform       *string    `json:"platform,omitempty"`
	State          string     `json:"state"`
	EmailVerified  bool       `json:"emailVerified"`
	MobileVerified bool       `json:"mobileVerified"`
	FailedLogins   int        `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Identifier returns the staging/OTP key for the user's sign-up identifier:
// the email when present, otherwise calling code + mobile.
func (u *User) Identifier() string {
	if u.Email != nil && *u.Email != "" {
		return *u.Email
	}
	if u.Mobile != nil && u.CallingCode != nil {
		return *u.CallingCode + *u.Mobile
	}
	return ""
}

// SocialIdentity links a user to an external OAuth subject.
type SocialIdentity struct {
	UserID   uuid.UUID `json:"userId"`
	Provider string    `json:"provider"`
	SocialID string    `json:"socialId"`
	Token    string    `json:"-"`
}
