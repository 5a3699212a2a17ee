package backend

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	// Strict 24-hour clock, two digits each side.
	timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

func ValidateDate(date string) error {
	if date == "" {
		return fmt.Errorf("%w: date is required", contractx.ErrValidation)
	}
	if !datePattern.MatchString(date) {
		return fmt.Errorf("%w: date must use the YYYY-MM-DD format", contractx.ErrValidation)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: date %s is not a valid calendar date", contractx.ErrValidation, date)
	}
	return nil
}

func ValidateTime(hhmm string) error {
	if !timePattern.MatchString(hhmm) {
		return fmt.Errorf("%w: time must use the 24-hour HH:MM format", contractx.ErrValidation)
	}
	return nil
}

func ValidateAvailabilityQuery(q contractx.AvailabilityQuery) error {
	if err := ValidateDate(q.Date); err != nil {
		return err
	}
	if q.Time != "" {
		if err := ValidateTime(q.Time); err != nil {
			return err
		}
	}
	if q.PartySize <= 0 {
		return fmt.Errorf("%w: party size must be a positive number", contractx.ErrValidation)
	}
	return nil
}

func ValidateBookingID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: booking id is required", contractx.ErrValidation)
	}
	return nil
}
