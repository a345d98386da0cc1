package tokenRepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veris/apperr"
	"veris/models"
)

// PostgresTokenRepo implements TokenRepository over a pgx pool.
type PostgresTokenRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresTokenRepo returns a TokenRepository backed by the given pool.
func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{pool: pool}
}

// GetConsumerByClientID resolves a calling client application.
func (r *PostgresTokenRepo) GetConsumerByClientID(ctx context.Context, clientID string) (*models.AppConsumer, error) {
	var c models.AppConsumer
	err := r.pool.QueryRow(ctx,
		"SELECT id, client_id, client_secret FROM app_consumer WHERE client_id = $1",
		clientID).Scan(&c.ID, &c.ClientID, &c.ClientSecret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.ErrDatabase, err)
	}
	return &c, nil
}

// InsertToken persists a freshly issued session token.
func (r *PostgresTokenRepo) InsertToken(ctx context.Context, token *models.AuthToken) error {
	token.CreatedAt = time.Now()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_auth_token (token, user_id, device_id, consumer_id,
			expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING id`,
		token.Token, token.UserID, token.DeviceID, token.ConsumerID,
		token.ExpiresAt, token.CreatedAt).Scan(&token.ID)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	token.Active = true
	return nil
}

// DeactivateToken marks a session token logged out.
func (r *PostgresTokenRepo) DeactivateToken(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_auth_token SET active = FALSE, logged_out_at = NOW()
		WHERE user_id = $1 AND token = $2 AND active`, userID, token)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	return nil
}

// DeactivateAllForUser marks every active session for the user logged out.
func (r *PostgresTokenRepo) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_auth_token SET active = FALSE, logged_out_at = NOW()
		WHERE user_id = $1 AND active`, userID)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	return nil
}

// ReplaceRefreshToken rotates the refresh token for a (user, device) pair.
// The insert and the delete of the prior token run in one transaction.
func (r *PostgresTokenRepo) ReplaceRefreshToken(ctx context.Context, refresh *models.RefreshToken) error {
	refresh.CreatedAt = time.Now()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"DELETE FROM user_refresh_token WHERE user_id = $1 AND device_id = $2",
		refresh.UserID, refresh.DeviceID)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_refresh_token (token, user_id, device_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		refresh.Token, refresh.UserID, refresh.DeviceID, refresh.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	return nil
}
