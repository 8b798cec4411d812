package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"go.uber.org/zap"
)

const deviceColumns = `id, device_uid, name, type, building_name, location_description, thresholds,
		       notification_email, api_key_hash, installed_at, connection_status, last_seen_at,
		       created_at, updated_at`

// DeviceRepository implements the repositories.DeviceRepository interface
type DeviceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *DB, logger *zap.Logger) repositories.DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a device and sets its ID
func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (
			device_uid, name, type, building_name, location_description, thresholds,
			notification_email, api_key_hash, installed_at, connection_status, last_seen_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		device.DeviceUID,
		device.Name,
		device.Type,
		device.BuildingName,
		device.LocationDescription,
		device.Thresholds,
		device.NotificationEmail,
		device.APIKeyHash,
		device.InstalledAt,
		device.ConnectionStatus,
		device.LastSeenAt,
		device.CreatedAt,
		device.UpdatedAt,
	).Scan(&device.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: device %s", repositories.ErrDuplicate, device.DeviceUID)
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	r.logger.Debug("device created", zap.Int64("id", device.ID), zap.String("device_uid", device.DeviceUID))
	return nil
}

// GetByID retrieves a device by ID
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	device, err := scanDevice(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: device %d", repositories.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// GetByUID retrieves a device by its hardware UID
func (r *DeviceRepository) GetByUID(ctx context.Context, deviceUID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_uid = $1`

	device, err := scanDevice(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, deviceUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: device %s", repositories.ErrNotFound, deviceUID)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// List retrieves all devices, newest first
func (r *DeviceRepository) List(ctx context.Context) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY created_at DESC, id DESC`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []*models.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}

	return devices, nil
}

// Update updates the mutable fields of a device
func (r *DeviceRepository) Update(ctx context.Context, device *models.Device) error {
	query := `
		UPDATE devices
		SET name = $2,
		    type = $3,
		    building_name = $4,
		    location_description = $5,
		    thresholds = $6,
		    notification_email = $7,
		    updated_at = $8
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Type,
		device.BuildingName,
		device.LocationDescription,
		device.Thresholds,
		device.NotificationEmail,
		device.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}

	if err := requireAffected(result, fmt.Sprintf("device %d", device.ID)); err != nil {
		return err
	}

	r.logger.Debug("device updated", zap.Int64("id", device.ID))
	return nil
}

// Delete deletes a device and, by cascade, its readings
func (r *DeviceRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM devices WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	if err := requireAffected(result, fmt.Sprintf("device %d", id)); err != nil {
		return err
	}

	r.logger.Debug("device deleted", zap.Int64("id", id))
	return nil
}

// SetConnection records the connection flag and, when non-nil, the last seen time
func (r *DeviceRepository) SetConnection(ctx context.Context, id int64, connected bool, lastSeenAt *time.Time) error {
	query := `
		UPDATE devices
		SET connection_status = $2,
		    last_seen_at = COALESCE($3, last_seen_at)
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, connected, lastSeenAt)
	if err != nil {
		return fmt.Errorf("failed to update device connection: %w", err)
	}

	return requireAffected(result, fmt.Sprintf("device %d", id))
}

// DisconnectStale marks connected devices not seen since cutoff as disconnected
func (r *DeviceRepository) DisconnectStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE devices
		SET connection_status = false
		WHERE connection_status = true
		  AND (last_seen_at IS NULL OR last_seen_at < $1)
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to disconnect stale devices: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n > 0 {
		r.logger.Info("stale devices disconnected", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *DeviceRepository) WithTx(tx repositories.Transaction) repositories.DeviceRepository {
	return &DeviceRepository{
		db:     r.db,
		logger: r.logger,
	}
}

func scanDevice(s scanner) (*models.Device, error) {
	device := &models.Device{}
	err := s.Scan(
		&device.ID,
		&device.DeviceUID,
		&device.Name,
		&device.Type,
		&device.BuildingName,
		&device.LocationDescription,
		&device.Thresholds,
		&device.NotificationEmail,
		&device.APIKeyHash,
		&device.InstalledAt,
		&device.ConnectionStatus,
		&device.LastSeenAt,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return device, nil
}

// requireAffected turns a zero-row write into ErrNotFound
func requireAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", repositories.ErrNotFound, what)
	}
	return nil
}
