package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/repositories"
	"go.uber.org/zap"
)

// ReadingRepository implements the repositories.ReadingRepository interface
type ReadingRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db *DB, logger *zap.Logger) repositories.ReadingRepository {
	return &ReadingRepository{
		db:     db,
		logger: logger,
	}
}

// InsertRaw inserts a raw reading and sets its ID
func (r *ReadingRepository) InsertRaw(ctx context.Context, reading *models.RawReading) error {
	query := `
		INSERT INTO raw_sensor_data (device_id, tilt_x, tilt_y, tilt_z, distance_mm, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		reading.DeviceID,
		reading.TiltX,
		reading.TiltY,
		reading.TiltZ,
		reading.DistanceMM,
		reading.CreatedAt,
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("failed to insert raw reading: %w", err)
	}

	return nil
}

// InsertProcessed inserts a processed reading and sets its ID
func (r *ReadingRepository) InsertProcessed(ctx context.Context, reading *models.ProcessedReading) error {
	query := `
		INSERT INTO processed_sensor_data (
			device_id, raw_data_id, tilt_diff_x, tilt_diff_y, tilt_diff_z, distance_diff_mm,
			tilt_change_percent, distance_change_percent, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		reading.DeviceID,
		reading.RawReadingID,
		reading.TiltDiffX,
		reading.TiltDiffY,
		reading.TiltDiffZ,
		reading.DistanceDiffMM,
		reading.TiltChangePercent,
		reading.DistanceChangePercent,
		reading.Status,
		reading.CreatedAt,
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("failed to insert processed reading: %w", err)
	}

	r.logger.Debug("processed reading stored",
		zap.Int64("device_id", reading.DeviceID),
		zap.String("status", string(reading.Status)))
	return nil
}

// GetBaseline returns the earliest raw reading of a device
func (r *ReadingRepository) GetBaseline(ctx context.Context, deviceID int64) (*models.RawReading, error) {
	query := `
		SELECT id, device_id, tilt_x, tilt_y, tilt_z, distance_mm, created_at
		FROM raw_sensor_data
		WHERE device_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	reading := &models.RawReading{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, deviceID).Scan(
		&reading.ID,
		&reading.DeviceID,
		&reading.TiltX,
		&reading.TiltY,
		&reading.TiltZ,
		&reading.DistanceMM,
		&reading.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: baseline for device %d", repositories.ErrNotFound, deviceID)
		}
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	return reading, nil
}

// ListProcessed returns processed readings newest first
func (r *ReadingRepository) ListProcessed(ctx context.Context, filter models.ReadingFilter) ([]*models.ProcessedReading, error) {
	var (
		conds = []string{"device_id = $1"}
		args  = []interface{}{filter.DeviceID}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `
		SELECT id, device_id, raw_data_id, tilt_diff_x, tilt_diff_y, tilt_diff_z, distance_diff_mm,
		       tilt_change_percent, distance_change_percent, status, created_at
		FROM processed_sensor_data
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed readings: %w", err)
	}
	defer rows.Close()

	readings := []*models.ProcessedReading{}
	for rows.Next() {
		p := &models.ProcessedReading{}
		err := rows.Scan(
			&p.ID,
			&p.DeviceID,
			&p.RawReadingID,
			&p.TiltDiffX,
			&p.TiltDiffY,
			&p.TiltDiffZ,
			&p.DistanceDiffMM,
			&p.TiltChangePercent,
			&p.DistanceChangePercent,
			&p.Status,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processed reading: %w", err)
		}
		readings = append(readings, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processed reading rows: %w", err)
	}

	return readings, nil
}

// DeleteByDevice removes every raw and processed reading of a device.
// Processed rows go first so the raw foreign key never dangles.
func (r *ReadingRepository) DeleteByDevice(ctx context.Context, deviceID int64) (int64, error) {
	executor := GetExecutor(ctx, r.db)

	processed, err := executor.ExecContext(ctx, `DELETE FROM processed_sensor_data WHERE device_id = $1`, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed readings: %w", err)
	}
	raw, err := executor.ExecContext(ctx, `DELETE FROM raw_sensor_data WHERE device_id = $1`, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete raw readings: %w", err)
	}

	nProcessed, _ := processed.RowsAffected()
	nRaw, _ := raw.RowsAffected()

	r.logger.Debug("device readings deleted",
		zap.Int64("device_id", deviceID),
		zap.Int64("raw", nRaw),
		zap.Int64("processed", nProcessed))
	return nRaw + nProcessed, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *ReadingRepository) WithTx(tx repositories.Transaction) repositories.ReadingRepository {
	return &ReadingRepository{
		db:     r.db,
		logger: r.logger,
	}
}
