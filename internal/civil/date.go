// Package civil provides a calendar date without a time-of-day or location.
package civil

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

const layout = "2006-01-02"

// MinYear and MaxYear bound the years Parse accepts.
const (
	MinYear = 1000
	MaxYear = 9999
)

// ErrInvalidDate indicates that input could not be parsed as YYYY-MM-DD.
var ErrInvalidDate = errors.New("civil: invalid date")

// Date is a calendar day. The zero value is not a valid date.
type Date struct {
	midnight time.Time
}

// Of builds a Date, normalising overflowing components the way time.Date does.
func Of(year int, month time.Month, day int) Date {
	return Date{midnight: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// In returns the calendar day of instant as observed in location.
func In(instant time.Time, location *time.Location) Date {
	if location == nil {
		location = time.UTC
	}
	local := instant.In(location)
	return Of(local.Year(), local.Month(), local.Day())
}

// Parse reads an ISO calendar date (YYYY-MM-DD).
func Parse(raw string) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := time.Parse(layout, trimmed)
	if err != nil || !ValidYear(parsed.Year()) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, trimmed)
	}
	return Of(parsed.Year(), parsed.Month(), parsed.Day()), nil
}

// ValidYear reports whether year lies within MinYear and MaxYear.
func ValidYear(year int) bool {
	return year >= MinYear && year <= MaxYear
}

func (d Date) IsZero() bool            { return d.midnight.IsZero() }
func (d Date) Year() int               { return d.midnight.Year() }
func (d Date) Month() time.Month       { return d.midnight.Month() }
func (d Date) Day() int                { return d.midnight.Day() }
func (d Date) Weekday() time.Weekday   { return d.midnight.Weekday() }
func (d Date) Before(other Date) bool  { return d.midnight.Before(other.midnight) }
func (d Date) After(other Date) bool   { return d.midnight.After(other.midnight) }
func (d Date) Equal(other Date) bool   { return d.midnight.Equal(other.midnight) }
func (d Date) AddDays(days int) Date   { return Of(d.Year(), d.Month(), d.Day()+days) }
func (d Date) Time() time.Time         { return d.midnight }
func (d Date) FirstOfMonth() Date      { return Of(d.Year(), d.Month(), 1) }
func (d Date) LastOfMonth() Date       { return Of(d.Year(), d.Month()+1, 0) }
func (d Date) DaysSince(from Date) int { return int(d.midnight.Sub(from.midnight).Hours() / 24) }

// String renders the date as YYYY-MM-DD, or an empty string for the zero value.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.midnight.Format(layout)
}

// Min returns the earlier of two dates.
func Min(a, b Date) Date {
	if b.Before(a) {
		return b
	}
	return a
}

// GormDataType binds the column type for schema migration.
func (Date) GormDataType() string {
	return "string"
}

// Value stores the date as YYYY-MM-DD so range filters and GROUP BY work on the raw column.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan accepts the textual representation as well as driver-decoded timestamps.
func (d *Date) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		return d.scanText(value)
	case []byte:
		return d.scanText(string(value))
	case time.Time:
		*d = Of(value.Year(), value.Month(), value.Day())
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidDate, src)
	}
}

func (d *Date) scanText(raw string) error {
	if len(raw) > len(layout) {
		raw = raw[:len(layout)]
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
