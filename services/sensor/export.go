package sensor

import (
	"encoding/csv"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/structsense/dashboard/models"
)

// FormatCSV is the only export format served
const FormatCSV = "csv"

var csvHeader = []string{
	"timestamp",
	"status",
	"tilt_change_percent",
	"distance_change_percent",
	"tilt_diff_x",
	"tilt_diff_y",
	"tilt_diff_z",
	"distance_diff_mm",
	"raw_data_id",
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Export is a rendered-on-demand download of a device's processed readings
type Export struct {
	Device      *models.Device
	Readings    []*models.ProcessedReading // oldest first
	Format      string
	Filename    string
	ContentType string
}

// WriteTo streams the export as CSV
func (e *Export) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := WriteCSV(cw, e.Readings); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// WriteCSV writes readings with a header row
func WriteCSV(w io.Writer, readings []*models.ProcessedReading) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range readings {
		record := []string{
			r.CreatedAt.UTC().Format(time.RFC3339),
			string(r.Status),
			formatFloat(r.TiltChangePercent),
			formatFloat(r.DistanceChangePercent),
			formatFloat(r.TiltDiffX),
			formatFloat(r.TiltDiffY),
			formatFloat(r.TiltDiffZ),
			formatFloat(r.DistanceDiffMM),
			strconv.FormatInt(r.RawReadingID, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportFilename builds "<device_uid>_readings_<YYYYMMDD>.csv"
func ExportFilename(deviceUID string, at time.Time) string {
	uid := unsafeFilenameChars.ReplaceAllString(deviceUID, "_")
	if uid == "" {
		uid = "device"
	}
	return uid + "_readings_" + at.UTC().Format("20060102") + "." + FormatCSV
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
