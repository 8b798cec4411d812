package sensor

import (
	"strconv"
	"strings"
	"time"

	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services"
)

const (
	// DefaultLimit applies when no limit is requested
	DefaultLimit = 100
	// MaxLimit caps a single page of processed readings
	MaxLimit = 1000
)

const dateLayout = "2006-01-02"

// QueryParams are the raw query string values of a readings request
type QueryParams struct {
	Limit  string
	Status string
	From   string
	To     string
}

// ParseFilter validates query parameters into a repository filter. A
// date-only To covers that whole day.
func ParseFilter(deviceID int64, q QueryParams) (models.ReadingFilter, error) {
	filter := models.ReadingFilter{DeviceID: deviceID, Limit: DefaultLimit}

	if q.Limit != "" {
		limit, err := strconv.Atoi(q.Limit)
		if err != nil || limit < 1 || limit > MaxLimit {
			return filter, validation("limit must be between 1 and 1000", "limit", q.Limit)
		}
		filter.Limit = limit
	}

	if q.Status != "" {
		status, err := models.ParseReadingStatus(q.Status)
		if err != nil {
			return filter, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidStatusValue.Message, err).
				WithDetail("status", q.Status)
		}
		filter.Status = status
	}

	from, err := parseTime(q.From, false)
	if err != nil {
		return filter, validation("from must be RFC3339 or YYYY-MM-DD", "from", q.From)
	}
	to, err := parseTime(q.To, true)
	if err != nil {
		return filter, validation("to must be RFC3339 or YYYY-MM-DD", "to", q.To)
	}
	if from != nil && to != nil && !from.Before(*to) {
		return filter, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidTimeRange.Message, nil).
			WithDetail("from", q.From).
			WithDetail("to", q.To)
	}
	filter.From, filter.To = from, to

	return filter, nil
}

func parseTime(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

func validation(message, field, value string) error {
	return services.NewDomainError(services.ErrorTypeValidation, message, nil).
		WithDetail("field", field).
		WithDetail("value", value)
}
