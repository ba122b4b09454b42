package handlers

import (
	"time"

	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/booking"
)

// parseTime accepts RFC 3339 or a wall-clock time in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(booking.Layout, s, loc)
}

// parseOptionalTime is parseTime for optional fields; "" yields nil.
func parseOptionalTime(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const timeFormatHint = booking.Layout
