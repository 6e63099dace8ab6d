package domain

import (
	"fmt"
	"strconv"
	"time"
	_ "time/tzdata" // reference zone must resolve on hosts without zoneinfo
)

// DateLayout is the layout of selected dates and archive rows.
const DateLayout = "2006-01-02"

// liveLayouts are the accepted live-feed timestamp layouts, all in UTC.
var liveLayouts = []string{
	"200601021504",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// DefaultReferenceZone is the zone the source data is published in.
const DefaultReferenceZone = "Europe/Berlin"

var referenceZone = mustLoadLocation(DefaultReferenceZone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %q: %v", name, err))
	}
	return loc
}

// SetReferenceZone changes the zone used to decide which date is today.
func SetReferenceZone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("load reference zone: %w", err)
	}
	referenceZone = loc
	return nil
}

// ReferenceZone returns the zone used for date decisions.
func ReferenceZone() *time.Location {
	return referenceZone
}

// Today returns the current date in the reference zone.
func Today() string {
	return clock.Now().In(referenceZone).Format(DateLayout)
}

// IsToday reports whether date is the current date in the reference zone.
func IsToday(date string) bool {
	return date == Today()
}

// DateRange is an inclusive range over fixed-width date strings.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Contains compares lexicographically, valid because dates are zero-padded.
func (r DateRange) Contains(date string) bool {
	return date >= r.From && date <= r.To
}

// CalendarDay is a month/day pair addressing calendar-day datasets.
type CalendarDay struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Key renders the day as "MM_DD", the form used in file names.
func (d CalendarDay) Key() string {
	return fmt.Sprintf("%02d_%02d", d.Month, d.Day)
}

func (d CalendarDay) String() string {
	return d.Key()
}

// CalendarDayOf extracts the month/day pair of a "2006-01-02" date.
func CalendarDayOf(date string) (CalendarDay, error) {
	if len(date) != len(DateLayout) || date[4] != '-' || date[7] != '-' {
		return CalendarDay{}, fmt.Errorf("invalid date %q", date)
	}
	month, err := strconv.Atoi(date[5:7])
	if err != nil || month < 1 || month > 12 {
		return CalendarDay{}, fmt.Errorf("invalid month in %q", date)
	}
	day, err := strconv.Atoi(date[8:10])
	if err != nil || day < 1 || day > 31 {
		return CalendarDay{}, fmt.Errorf("invalid day in %q", date)
	}
	return CalendarDay{Month: month, Day: day}, nil
}

// ParseLiveTimestamp parses a live-feed timestamp as UTC.
func ParseLiveTimestamp(s string) (time.Time, error) {
	for _, layout := range liveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// HourBucket returns the reference-zone hour of a live-feed timestamp.
func HourBucket(timestamp string) (int, error) {
	t, err := ParseLiveTimestamp(timestamp)
	if err != nil {
		return 0, err
	}
	return t.In(referenceZone).Hour(), nil
}
