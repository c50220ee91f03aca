package util

import (
	"fmt"
	"strings"
	"time"
)

// ValidatePositive checks a quantity or price: must be positive and below the cap.
func ValidatePositive(field string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %g", field, v)
	}
	if v >= 10000000 {
		return fmt.Errorf("%s too large, got %g", field, v)
	}
	return nil
}

// ValidateUser checks the "who passed the entry" field.
func ValidateUser(user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("user is empty")
	}
	if len([]rune(user)) > 64 {
		return fmt.Errorf("user too long, max 64 characters")
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts an ISO timestamp or a bare YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format: %q", s)
}
