package deviceRepo

import (
	"context"

	"github.com/google/uuid"

	"veris/models"
)

// DeviceRepository defines methods for device record access. GetByID returns
// (nil, nil) when the device is unknown.
type DeviceRepository interface {
	// Exists reports whether a device record exists.
	Exists(ctx context.Context, deviceID string) (bool, error)
	// Create inserts a new device record.
	Create(ctx context.Context, device *models.Device) error
	// GetByID retrieves a device by its identifier.
	GetByID(ctx context.Context, deviceID string) (*models.Device, error)
	// LinkToUser binds a device to a user and marks it active.
	LinkToUser(ctx context.Context, deviceID string, userID uuid.UUID, pushToken, userToken *string) error
	// Deactivate clears the active flag and stamps the deactivation time.
	Deactivate(ctx context.Context, deviceID string) error
}
