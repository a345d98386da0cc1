package deviceRepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"veris/apperr"
	"veris/models"
)

const uniqueViolation = "23505"

// PostgresDeviceRepo implements DeviceRepository over a pgx pool.
type PostgresDeviceRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresDeviceRepo returns a DeviceRepository backed by the given pool.
func NewPostgresDeviceRepo(pool *pgxpool.Pool) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{pool: pool}
}

// Exists reports whether a device record exists.
func (r *PostgresDeviceRepo) Exists(ctx context.Context, deviceID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM devices WHERE device_id = $1)", deviceID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrDatabase, err)
	}
	return exists, nil
}

// Create inserts a new device record. A duplicate identifier surfaces as
// apperr.ErrDeviceAlreadyRegistered.
func (r *PostgresDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	device.CreatedAt = time.Now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (device_id, user_id, device_name, device_type,
			platform, device_ip, push_token, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		device.DeviceID, device.UserID, device.DeviceName, device.DeviceType,
		device.Platform, device.DeviceIP, device.PushToken, device.Active,
		device.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.ErrDeviceAlreadyRegistered
		}
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	return nil
}

// GetByID retrieves a device by its identifier.
func (r *PostgresDeviceRepo) GetByID(ctx context.Context, deviceID string) (*models.Device, error) {
	var d models.Device
	err := r.pool.QueryRow(ctx, `
		SELECT device_id, user_id, device_name, device_type, platform,
			device_ip, push_token, user_token, active, activated_at,
			deactivated_at, created_at
		FROM devices WHERE device_id = $1`, deviceID).
		Scan(&d.DeviceID, &d.UserID, &d.DeviceName, &d.DeviceType, &d.Platform,
			&d.DeviceIP, &d.PushToken, &d.UserToken, &d.Active, &d.ActivatedAt,
			&d.DeactivatedAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.ErrDatabase, err)
	}
	return &d, nil
}

// LinkToUser binds a device to a user and marks it active. Push and user
// tokens are only overwritten when non-nil.
func (r *PostgresDeviceRepo) LinkToUser(ctx context.Context, deviceID string, userID uuid.UUID, pushToken, userToken *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET user_id = $1,
			push_token = COALESCE($2, push_token),
			user_token = COALESCE($3, user_token),
			active = TRUE, activated_at = NOW(), deactivated_at = NULL
		WHERE device_id = $4`,
		userID, pushToken, userToken, deviceID)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrDeviceNotRegistered
	}
	return nil
}

// Deactivate clears the active flag and stamps the deactivation time.
func (r *PostgresDeviceRepo) Deactivate(ctx context.Context, deviceID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET active = FALSE, deactivated_at = NOW()
		WHERE device_id = $1`, deviceID)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrDeviceNotRegistered
	}
	return nil
}
