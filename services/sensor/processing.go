package sensor

import (
	"math"

	"github.com/structsense/dashboard/models"
)

// TiltAngle returns the angle from vertical, in degrees, of an accelerometer
// vector. A zero z component counts as lying flat (90 degrees).
func TiltAngle(x, y, z float64) float64 {
	if z == 0 {
		return 90
	}
	return math.Atan2(math.Sqrt(x*x+y*y), math.Abs(z)) * 180 / math.Pi
}

// Process compares a raw reading with the device baseline and classifies it
// with the device's threshold profile.
func Process(baseline, current *models.RawReading, profile models.ThresholdProfile) *models.ProcessedReading {
	baseAngle := TiltAngle(baseline.TiltX, baseline.TiltY, baseline.TiltZ)
	currAngle := TiltAngle(current.TiltX, current.TiltY, current.TiltZ)
	tiltPercent := math.Abs(currAngle-baseAngle) / 90 * 100

	distanceDiff := current.DistanceMM - baseline.DistanceMM
	var distancePercent float64
	if baseline.DistanceMM != 0 {
		distancePercent = math.Abs(distanceDiff) / math.Abs(baseline.DistanceMM) * 100
	}

	return &models.ProcessedReading{
		DeviceID:              current.DeviceID,
		RawReadingID:          current.ID,
		TiltDiffX:             current.TiltX - baseline.TiltX,
		TiltDiffY:             current.TiltY - baseline.TiltY,
		TiltDiffZ:             current.TiltZ - baseline.TiltZ,
		DistanceDiffMM:        distanceDiff,
		TiltChangePercent:     tiltPercent,
		DistanceChangePercent: distancePercent,
		Status:                profile.Classify(tiltPercent, distancePercent),
		CreatedAt:             current.CreatedAt,
	}
}
