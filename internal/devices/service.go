package devices

import (
	"context"

	"github.com/AnamariaDum/BikeRecorder/internal/db"

	"github.com/google/uuid"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Register stores a device identity for the user. Registering the same
// platform/model pair again refreshes version info and returns the same id,
// so a client that lost its cached id does not mint duplicates.
func (s *Service) Register(ctx context.Context, userID string, req RegisterRequest) (Device, error) {
	device := Device{
		ID:         uuid.NewString(),
		UserID:     userID,
		Platform:   req.Platform,
		Model:      req.Model,
		OSVersion:  req.OSVersion,
		AppVersion: req.AppVersion,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO devices (id, user_id, platform, model, os_version, app_version)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id, platform, model) DO UPDATE
		SET os_version=EXCLUDED.os_version, app_version=EXCLUDED.app_version
		RETURNING id, created_at
	`, device.ID, device.UserID, device.Platform, device.Model, device.OSVersion, device.AppVersion)
	if err := row.Scan(&device.ID, &device.CreatedAt); err != nil {
		return Device{}, err
	}
	return device, nil
}
