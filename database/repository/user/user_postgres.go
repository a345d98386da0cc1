package userRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"veris/apperr"
	"veris/models"
)

const uniqueViolation = "23505"

// PostgresUserRepo implements UserRepository over a pgx pool.
type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepo returns a UserRepository backed by the given pool.
func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, email, mobile, calling_code, password, name, avatar_id,
	birth_date, profile_image, country, platform, state, email_verified,
	mobile_verified, failed_logins, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Mobile, &u.CallingCode, &u.PasswordHash,
		&u.Name, &u.AvatarID, &u.BirthDate, &u.ProfileImage, &u.Country,
		&u.Platform, &u.State, &u.EmailVerified, &u.MobileVerified,
		&u.FailedLogins, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.ErrDatabase, err)
	}
	return &u, nil
}

// GetByID retrieves a user by its unique ID.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail retrieves a user by its email address.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userColumns)
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetByMobile retrieves a user by calling code and mobile number.
func (r *PostgresUserRepo) GetByMobile(ctx context.Context, callingCode, mobile string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE calling_code = $1 AND mobile = $2", userColumns)
	return scanUser(r.pool.QueryRow(ctx, query, callingCode, mobile))
}

// Create inserts a new user record. A duplicate email or mobile surfaces as
// apperr.ErrUserAlreadyExists from the unique constraints.
func (r *PostgresUserRepo) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.State == "" {
		user.State = models.UserStateActive
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, mobile, calling_code, password, name,
			avatar_id, birth_date, profile_image, country, platform, state,
			email_verified, mobile_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		user.ID, user.Email, user.Mobile, user.CallingCode, user.PasswordHash,
		user.Name, user.AvatarID, user.BirthDate, user.ProfileImage,
		user.Country, user.Platform, user.State, user.EmailVerified,
		user.MobileVerified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.ErrUserAlreadyExists
		}
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET password = $1, updated_at = NOW() WHERE id = $2",
		passwordHash, id)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

// UpdateState transitions the account lifecycle state.
func (r *PostgresUserRepo) UpdateState(ctx context.Context, id uuid.UUID, state string) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE users SET state = $1, updated_at = NOW() WHERE id = $2",
		state, id)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

// GetBySocialIdentity retrieves a user by a linked provider subject.
func (r *PostgresUserRepo) GetBySocialIdentity(ctx context.Context, provider, socialID string) (*models.User, error) {
	query := `
		SELECT u.id, u.email, u.mobile, u.calling_code, u.password, u.name,
			u.avatar_id, u.birth_date, u.profile_image, u.country, u.platform,
			u.state, u.email_verified, u.mobile_verified, u.failed_logins,
			u.created_at, u.updated_at
		FROM users u
		JOIN user_social_identity s ON s.user_id = u.id
		WHERE s.provider = $1 AND s.social_id = $2`
	return scanUser(r.pool.QueryRow(ctx, query, provider, socialID))
}

// UpsertSocialIdentity links or refreshes a provider subject for a user.
func (r *PostgresUserRepo) UpsertSocialIdentity(ctx context.Context, identity *models.SocialIdentity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_social_identity (user_id, provider, social_id, token, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (provider, social_id)
		DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`,
		identity.UserID, identity.Provider, identity.SocialID, identity.Token)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	return nil
}
