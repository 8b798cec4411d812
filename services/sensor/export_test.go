package sensor

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/structsense/dashboard/models"
)

func TestWriteCSV(t *testing.T) {
	readings := []*models.ProcessedReading{
		{RawReadingID: 1, Status: models.StatusSafe, TiltChangePercent: 1, DistanceChangePercent: 0.5, TiltDiffX: 0.1, TiltDiffY: 0.2, TiltDiffZ: 0.3, DistanceDiffMM: 5, CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{RawReadingID: 2, Status: models.StatusAlert, TiltChangePercent: 20, DistanceChangePercent: 0.2, TiltDiffX: 10, DistanceDiffMM: -2, CreatedAt: time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, readings))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"2024-03-01T12:00:00Z", "SAFE", "1", "0.5", "0.1", "0.2", "0.3", "5", "1"}, rows[1])
	assert.Equal(t, []string{"2024-03-01T12:05:00Z", "ALERT", "20", "0.2", "10", "0", "0", "-2", "2"}, rows[2])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportFilename(t *testing.T) {
	at := time.Date(2024, 3, 1, 23, 0, 0, 0, time.FixedZone("UTC-3", -3*3600))

	assert.Equal(t, "ESP32-001_readings_20240302.csv", ExportFilename("ESP32-001", at))
	assert.Equal(t, "a_b_readings_20240302.csv", ExportFilename(`a"/b`, at))
	assert.Equal(t, "device_readings_20240302.csv", ExportFilename("", at))
}

func TestExport_WriteTo(t *testing.T) {
	export := &Export{Readings: []*models.ProcessedReading{{Status: models.StatusSafe}}}

	var buf bytes.Buffer
	n, err := export.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
}
