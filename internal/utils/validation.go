package utils

import (
	"fmt"
	"time"

	"shiftboard/store"
)

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(dateStr string) (time.Time, error) {
	parsed, err := time.ParseInLocation(store.DateLayout, dateStr, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD (e.g. 2025-01-31)", dateStr)
	}
	return parsed, nil
}

// ValidateDateRange checks that both bounds parse and start is not after
// end.
func ValidateDateRange(startDate, endDate string) error {
	start, err := ParseDate(startDate)
	if err != nil {
		return err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return err
	}
	if start.After(end) {
		return fmt.Errorf("start date (%s) cannot be after end date (%s)", startDate, endDate)
	}
	return nil
}
