package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ThresholdVersion tags the shape of a device's threshold profile
type ThresholdVersion string

const (
	// ThresholdsV1 has a single alert threshold per metric
	ThresholdsV1 ThresholdVersion = "v1"
	// ThresholdsV2 has warning and alert thresholds per metric
	ThresholdsV2 ThresholdVersion = "v2"
)

var (
	// ErrUnknownThresholdVersion is returned for a version other than v1 or v2
	ErrUnknownThresholdVersion = errors.New("unknown threshold version")

	// ErrInvalidThreshold is returned when a threshold value is out of range
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// ThresholdProfile holds the percentages a processed reading is compared against.
// Only the fields of the tagged version are meaningful.
type ThresholdProfile struct {
	Version ThresholdVersion `json:"version"`

	// v1
	TiltThresholdPercent     float64 `json:"tilt_threshold_percent,omitempty"`
	DistanceThresholdPercent float64 `json:"distance_threshold_percent,omitempty"`

	// v2
	TiltWarningPercent     float64 `json:"tilt_warning_percent,omitempty"`
	TiltAlertPercent       float64 `json:"tilt_alert_percent,omitempty"`
	DistanceWarningPercent float64 `json:"distance_warning_percent,omitempty"`
	DistanceAlertPercent   float64 `json:"distance_alert_percent,omitempty"`
}

// DefaultThresholdsV1 returns the single-threshold defaults
func DefaultThresholdsV1() ThresholdProfile {
	return ThresholdProfile{
		Version:                  ThresholdsV1,
		TiltThresholdPercent:     50,
		DistanceThresholdPercent: 50,
	}
}

// DefaultThresholdsV2 returns the warning/alert defaults
func DefaultThresholdsV2() ThresholdProfile {
	return ThresholdProfile{
		Version:                ThresholdsV2,
		TiltWarningPercent:     30,
		TiltAlertPercent:       50,
		DistanceWarningPercent: 5,
		DistanceAlertPercent:   10,
	}
}

// Validate checks the fields required by the profile's version
func (p ThresholdProfile) Validate() error {
	switch p.Version {
	case ThresholdsV1:
		if p.TiltThresholdPercent <= 0 {
			return fmt.Errorf("%w: tilt_threshold_percent must be positive", ErrInvalidThreshold)
		}
		if p.DistanceThresholdPercent <= 0 {
			return fmt.Errorf("%w: distance_threshold_percent must be positive", ErrInvalidThreshold)
		}
	case ThresholdsV2:
		if p.TiltWarningPercent <= 0 || p.DistanceWarningPercent <= 0 {
			return fmt.Errorf("%w: warning thresholds must be positive", ErrInvalidThreshold)
		}
		if p.TiltAlertPercent <= p.TiltWarningPercent {
			return fmt.Errorf("%w: tilt_alert_percent must exceed tilt_warning_percent", ErrInvalidThreshold)
		}
		if p.DistanceAlertPercent <= p.DistanceWarningPercent {
			return fmt.Errorf("%w: distance_alert_percent must exceed distance_warning_percent", ErrInvalidThreshold)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownThresholdVersion, p.Version)
	}
	return nil
}

// Normalize zeroes the fields that do not belong to the profile's version
func (p ThresholdProfile) Normalize() ThresholdProfile {
	switch p.Version {
	case ThresholdsV1:
		return ThresholdProfile{
			Version:                  ThresholdsV1,
			TiltThresholdPercent:     p.TiltThresholdPercent,
			DistanceThresholdPercent: p.DistanceThresholdPercent,
		}
	case ThresholdsV2:
		return ThresholdProfile{
			Version:                ThresholdsV2,
			TiltWarningPercent:     p.TiltWarningPercent,
			TiltAlertPercent:       p.TiltAlertPercent,
			DistanceWarningPercent: p.DistanceWarningPercent,
			DistanceAlertPercent:   p.DistanceAlertPercent,
		}
	}
	return p
}

// Classify maps tilt and distance change percentages to a reading status
func (p ThresholdProfile) Classify(tiltPercent, distancePercent float64) ReadingStatus {
	switch p.Version {
	case ThresholdsV2:
		if tiltPercent >= p.TiltAlertPercent || distancePercent >= p.DistanceAlertPercent {
			return StatusAlert
		}
		if tiltPercent >= p.TiltWarningPercent || distancePercent >= p.DistanceWarningPercent {
			return StatusWarning
		}
	default:
		if tiltPercent >= p.TiltThresholdPercent || distancePercent >= p.DistanceThresholdPercent {
			return StatusAlert
		}
	}
	return StatusSafe
}

// Value implements driver.Valuer so the profile is stored as JSONB
func (p ThresholdProfile) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner
func (p *ThresholdProfile) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*p = DefaultThresholdsV2()
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ThresholdProfile", src)
	}
	return json.Unmarshal(data, p)
}

// Device represents a registered structural sensor
type Device struct {
	ID                  int64            `json:"id" db:"id"`
	DeviceUID           string           `json:"device_uid" db:"device_uid"`
	Name                string           `json:"name" db:"name"`
	Type                string           `json:"type" db:"type"`
	BuildingName        *string          `json:"building_name" db:"building_name"`
	LocationDescription *string          `json:"location_description" db:"location_description"`
	Thresholds          ThresholdProfile `json:"thresholds" db:"thresholds"`
	NotificationEmail   *string          `json:"notification_email" db:"notification_email"`
	APIKeyHash          string           `json:"-" db:"api_key_hash"`
	InstalledAt         time.Time        `json:"installed_at" db:"installed_at"`
	ConnectionStatus    bool             `json:"connection_status" db:"connection_status"`
	LastSeenAt          *time.Time       `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Device model
func (Device) TableName() string {
	return "devices"
}

// NewDevice creates a new disconnected Device. A zero installedAt means now.
func NewDevice(deviceUID, name, deviceType string, thresholds ThresholdProfile, installedAt time.Time) *Device {
	now := time.Now().UTC()
	if installedAt.IsZero() {
		installedAt = now
	}
	return &Device{
		DeviceUID:   deviceUID,
		Name:        name,
		Type:        deviceType,
		Thresholds:  thresholds.Normalize(),
		InstalledAt: installedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkSeen records a reading arrival
func (d *Device) MarkSeen(at time.Time) {
	d.ConnectionStatus = true
	d.LastSeenAt = &at
}

// IsStale reports whether the device has been silent for longer than after
func (d *Device) IsStale(now time.Time, after time.Duration) bool {
	if !d.ConnectionStatus {
		return false
	}
	if d.LastSeenAt == nil {
		return true
	}
	return now.Sub(*d.LastSeenAt) > after
}
