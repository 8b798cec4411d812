package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services"
	"github.com/structsense/dashboard/services/sensor"
	"go.uber.org/zap"
)

func TestSensorHandler_HandleIngest(t *testing.T) {
	logger := zap.NewNop()
	body := `{"device_uid":"SENSOR-001","tilt_x":0.1,"tilt_y":0.2,"tilt_z":9.8,"distance_mm":1500}`

	t.Run("stores reading", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		processed := &models.ProcessedReading{ID: 11, DeviceID: 1, RawReadingID: 10, Status: models.StatusSafe}
		svc.On("Ingest", mock.Anything, "secret-key", sensor.IngestInput{
			DeviceUID:  "SENSOR-001",
			TiltX:      0.1,
			TiltY:      0.2,
			TiltZ:      9.8,
			DistanceMM: 1500,
		}).Return(&sensor.IngestResult{
			Raw:        &models.RawReading{ID: 10, DeviceID: 1},
			Processed:  processed,
			IsBaseline: true,
		}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor/ingest", bytes.NewBufferString(body))
		req.Header.Set(APIKeyHeader, "secret-key")
		w := httptest.NewRecorder()

		handler.HandleIngest(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response struct {
			Data IngestResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, int64(10), response.Data.RawDataID)
		assert.True(t, response.Data.IsBaseline)
		assert.Equal(t, models.StatusSafe, response.Data.Processed.Status)
		svc.AssertExpectations(t)
	})

	t.Run("missing api key", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor/ingest", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		handler.HandleIngest(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wrong api key", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		svc.On("Ingest", mock.Anything, "wrong", mock.Anything).Return(nil, services.ErrInvalidAPIKey)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor/ingest", bytes.NewBufferString(body))
		req.Header.Set(APIKeyHeader, "wrong")
		w := httptest.NewRecorder()

		handler.HandleIngest(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("zero values are accepted", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		svc.On("Ingest", mock.Anything, "k", mock.MatchedBy(func(in sensor.IngestInput) bool {
			return in.TiltX == 0 && in.DistanceMM == 0
		})).Return(&sensor.IngestResult{
			Raw:       &models.RawReading{ID: 1},
			Processed: &models.ProcessedReading{Status: models.StatusSafe},
		}, nil)

		zero := `{"device_uid":"SENSOR-001","tilt_x":0,"tilt_y":0,"tilt_z":0,"distance_mm":0}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor/ingest", bytes.NewBufferString(zero))
		req.Header.Set(APIKeyHeader, "k")
		w := httptest.NewRecorder()

		handler.HandleIngest(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("missing measurement", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor/ingest",
			bytes.NewBufferString(`{"device_uid":"SENSOR-001","tilt_x":0.1,"tilt_y":0.2}`))
		req.Header.Set(APIKeyHeader, "k")
		w := httptest.NewRecorder()

		handler.HandleIngest(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "tilt_z")
		assert.Contains(t, w.Body.String(), "distance_mm")
	})

	t.Run("oversized body", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		padded := `{"device_uid":"` + strings.Repeat("A", maxIngestBodyBytes) + `","tilt_x":0,"tilt_y":0,"tilt_z":0,"distance_mm":0}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor/ingest", bytes.NewBufferString(padded))
		req.Header.Set(APIKeyHeader, "k")
		w := httptest.NewRecorder()

		handler.HandleIngest(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "Request body too large")
		svc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("negative distance", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sensor/ingest",
			bytes.NewBufferString(`{"device_uid":"SENSOR-001","tilt_x":0,"tilt_y":0,"tilt_z":0,"distance_mm":-1}`))
		req.Header.Set(APIKeyHeader, "k")
		w := httptest.NewRecorder()

		handler.HandleIngest(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSensorHandler_HandleProcessed(t *testing.T) {
	logger := zap.NewNop()

	t.Run("applies filter", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		readings := []*models.ProcessedReading{
			{ID: 2, DeviceID: 7, Status: models.StatusAlert},
			{ID: 1, DeviceID: 7, Status: models.StatusAlert},
		}
		svc.On("ListProcessed", mock.Anything, mock.MatchedBy(func(f models.ReadingFilter) bool {
			return f.DeviceID == 7 && f.Limit == 20 && f.Status == models.StatusAlert &&
				f.From != nil && f.To != nil
		})).Return(readings, nil)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/sensor/devices/7/processed?limit=20&status=alert&from=2024-01-01&to=2024-01-31", nil)
		req = req.WithContext(withURLParam(req.Context(), "id", "7"))
		w := httptest.NewRecorder()

		handler.HandleProcessed(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var body []models.ProcessedReading
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Len(t, body, 2)
		assert.Equal(t, int64(2), body[0].ID)
		svc.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		svc.On("ListProcessed", mock.Anything, models.ReadingFilter{DeviceID: 7, Limit: sensor.DefaultLimit}).
			Return([]*models.ProcessedReading{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sensor/devices/7/processed", nil)
		req = req.WithContext(withURLParam(req.Context(), "id", "7"))
		w := httptest.NewRecorder()

		handler.HandleProcessed(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name  string
		query string
	}{
		{"limit too large", "limit=1001"},
		{"limit zero", "limit=0"},
		{"unknown status", "status=broken"},
		{"bad date", "from=yesterday"},
		{"inverted range", "from=2024-02-01&to=2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSensorService)
			handler := NewSensorHandler(svc, logger)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/sensor/devices/7/processed?"+tt.query, nil)
			req = req.WithContext(withURLParam(req.Context(), "id", "7"))
			w := httptest.NewRecorder()

			handler.HandleProcessed(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "ListProcessed", mock.Anything, mock.Anything)
		})
	}
}

func TestSensorHandler_HandleExport(t *testing.T) {
	logger := zap.NewNop()
	userID := uuid.New()

	t.Run("streams csv attachment", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		export := &sensor.Export{
			Device: testDevice(3),
			Readings: []*models.ProcessedReading{
				{ID: 1, Status: models.StatusSafe, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
				{ID: 2, Status: models.StatusWarning, CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
			},
			Format:      "csv",
			Filename:    "SENSOR-001_20240103.csv",
			ContentType: "text/csv",
		}
		svc.On("Export", mock.Anything, int64(3), "csv", mock.Anything, mock.Anything, userID, mock.Anything).
			Return(export, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sensor/devices/3/export?format=csv", nil)
		ctx := withURLParam(req.Context(), "id", "3")
		req = req.WithContext(withUser(ctx, userID, "viewer"))
		w := httptest.NewRecorder()

		handler.HandleExport(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="SENSOR-001_20240103.csv"`, w.Header().Get("Content-Disposition"))

		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		assert.Len(t, lines, 3)
		assert.Contains(t, lines[1], "SAFE")
		assert.Contains(t, lines[2], "WARNING")
		svc.AssertExpectations(t)
	})

	t.Run("unsupported format", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		svc.On("Export", mock.Anything, int64(3), "xlsx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, services.ErrUnsupportedFormat)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sensor/devices/3/export?format=xlsx", nil)
		req = req.WithContext(withURLParam(req.Context(), "id", "3"))
		w := httptest.NewRecorder()

		handler.HandleExport(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown device", func(t *testing.T) {
		svc := new(MockSensorService)
		handler := NewSensorHandler(svc, logger)

		svc.On("Export", mock.Anything, int64(3), "", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, services.ErrDeviceNotFound)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sensor/devices/3/export", nil)
		req = req.WithContext(withURLParam(req.Context(), "id", "3"))
		w := httptest.NewRecorder()

		handler.HandleExport(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
