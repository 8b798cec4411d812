package models

import (
	"fmt"
	"strings"
	"time"
)

// ReadingStatus is the classification of a processed reading
type ReadingStatus string

const (
	StatusSafe    ReadingStatus = "SAFE"
	StatusWarning ReadingStatus = "WARNING"
	StatusAlert   ReadingStatus = "ALERT"
)

// ParseReadingStatus parses a status case-insensitively
func ParseReadingStatus(s string) (ReadingStatus, error) {
	switch ReadingStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusSafe:
		return StatusSafe, nil
	case StatusWarning:
		return StatusWarning, nil
	case StatusAlert:
		return StatusAlert, nil
	}
	return "", fmt.Errorf("unknown reading status %q", s)
}

// RawReading is a measurement exactly as reported by the device
type RawReading struct {
	ID         int64     `json:"id" db:"id"`
	DeviceID   int64     `json:"device_id" db:"device_id"`
	TiltX      float64   `json:"tilt_x" db:"tilt_x"`
	TiltY      float64   `json:"tilt_y" db:"tilt_y"`
	TiltZ      float64   `json:"tilt_z" db:"tilt_z"`
	DistanceMM float64   `json:"distance_mm" db:"distance_mm"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RawReading model
func (RawReading) TableName() string {
	return "raw_sensor_data"
}

// ProcessedReading is a raw reading compared against the device baseline
type ProcessedReading struct {
	ID                    int64         `json:"id" db:"id"`
	DeviceID              int64         `json:"device_id" db:"device_id"`
	RawReadingID          int64         `json:"raw_data_id" db:"raw_data_id"`
	TiltDiffX             float64       `json:"tilt_diff_x" db:"tilt_diff_x"`
	TiltDiffY             float64       `json:"tilt_diff_y" db:"tilt_diff_y"`
	TiltDiffZ             float64       `json:"tilt_diff_z" db:"tilt_diff_z"`
	DistanceDiffMM        float64       `json:"distance_diff_mm" db:"distance_diff_mm"`
	TiltChangePercent     float64       `json:"tilt_change_percent" db:"tilt_change_percent"`
	DistanceChangePercent float64       `json:"distance_change_percent" db:"distance_change_percent"`
	Status                ReadingStatus `json:"status" db:"status"`
	CreatedAt             time.Time     `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ProcessedReading model
func (ProcessedReading) TableName() string {
	return "processed_sensor_data"
}

// ReadingFilter narrows a processed reading query
type ReadingFilter struct {
	DeviceID int64
	Status   ReadingStatus // empty matches all
	From     *time.Time    // inclusive
	To       *time.Time    // exclusive
	Limit    int
}
