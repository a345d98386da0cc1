package tokenRepo

import (
	"context"

	"github.com/google/uuid"

	"veris/models"
)

// TokenRepository defines access to app consumers and issued session tokens.
type TokenRepository interface {
	// GetConsumerByClientID resolves a calling client application. Returns
	// (nil, nil) for an unknown client.
	GetConsumerByClientID(ctx context.Context, clientID string) (*models.AppConsumer, error)
	// InsertToken persists a freshly issued session token.
	InsertToken(ctx context.Context, token *models.AuthToken) error
	// DeactivateToken marks a session token logged out.
	DeactivateToken(ctx context.Context, userID uuid.UUID, token string) error
	// DeactivateAllForUser marks every active session for the user logged out.
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID) error
	// ReplaceRefreshToken rotates the refresh token for a (user, device) pair.
	ReplaceRefreshToken(ctx context.Context, refresh *models.RefreshToken) error
}
