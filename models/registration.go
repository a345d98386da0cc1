package models

import "time"

// PendingRegistration is the staged, not-yet-committed account held in the
// cache pending OTP confirmation. The password is already hashed when staged;
// plaintext never enters the cache.
type PendingRegistration struct {
	Email        *string    `json:"email,omitempty"`
	Mobile       *string    `json:"mobile,omitempty"`
	CallingCode  *string    `json:"calling_code,omitempty"`
	PasswordHash string     `json:"password"`
	Name         string     `json:"name"`
	AvatarID     *string    `json:"avatar_id,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	ProfileImage *string    `json:"profile_image,omitempty"`
	Country      *string    `json:"country,omitempty"`
	Platform     *string    `json:"platform,omitempty"`
	StagedAt     time.Time  `json:"staged_at"`
}

// Identifier mirrors User.Identifier for the staged record.
func (p *PendingRegistration) Identifier() string {
	if p.Email != nil && *p.Email != "" {
		return *p.Email
	}
	if p.Mobile != nil && p.CallingCode != nil {
		return *p.CallingCode + *p.Mobile
	}
	return ""
}
