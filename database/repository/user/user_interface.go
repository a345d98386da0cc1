package userRepo

import (
	"context"

	"github.com/google/uuid"

	"veris/models"
)

// UserRepository defines methods for durable account data access. Lookup
// methods return (nil, nil) when no row matches.
type UserRepository interface {
	// GetByID retrieves a user by its unique ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetByEmail retrieves a user by its email address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByMobile retrieves a user by calling code and mobile number.
	GetByMobile(ctx context.Context, callingCode, mobile string) (*models.User, error)
	// Create inserts a new user record.
	Create(ctx context.Context, user *models.User) error
	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// UpdateState transitions the account lifecycle state.
	UpdateState(ctx context.Context, id uuid.UUID, state string) error
	// GetBySocialIdentity retrieves a user by a linked provider subject.
	GetBySocialIdentity(ctx context.Context, provider, socialID string) (*models.User, error)
	// UpsertSocialIdentity links or refreshes a provider subject for a user.
	UpsertSocialIdentity(ctx context.Context, identity *models.SocialIdentity) error
}
