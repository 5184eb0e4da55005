package perm

import (
	"fmt"
	"time"
	_ "time/tzdata" // the source zone must resolve on hosts without zoneinfo
)

// SourceTimezone is the zone the DOL grid publishes in.
const SourceTimezone = "America/Los_Angeles"

// SourceDateLayout is the MM/DD/YYYY layout used by the grid for dates.
const SourceDateLayout = "01/02/2006"

// LoadLocation resolves name, falling back to SourceTimezone when empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = SourceTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay truncates t to local midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Yesterday returns the calendar day before now, in loc.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, -1)
}
