package perm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayToken returns the "yyddd" middle part of a case number such as A-170100-00001.
func DayToken(caseNumber string) (string, error) {
	parts := strings.Split(caseNumber, "-")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrMalformedIdentifier, caseNumber)
	}
	return parts[1], nil
}

// DecodeDate converts the day token of a case number into a calendar date in loc.
// The first two digits are the year offset from 2000, the rest the 1-based day of year.
func DecodeDate(caseNumber string, loc *time.Location) (time.Time, error) {
	token, err := DayToken(caseNumber)
	if err != nil {
		return time.Time{}, err
	}
	if len(token) < 3 {
		return time.Time{}, fmt.Errorf("%w: day token %q too short", ErrMalformedIdentifier, token)
	}
	year, err := strconv.Atoi(token[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: year %q: %v", ErrMalformedIdentifier, token[:2], err)
	}
	dayOfYear, err := strconv.Atoi(token[2:])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q: %v", ErrMalformedIdentifier, token[2:], err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(2000+year, time.January, 1, 0, 0, 0, 0, loc).AddDate(0, 0, dayOfYear-1), nil
}
