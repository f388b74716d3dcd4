package forecast

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// KelvinOffset is 0°C in Kelvin.
const KelvinOffset = 273.15

// Timestamp layouts. TimestampLayout is the upstream dt_txt format.
const (
	TimestampLayout     = "2006-01-02 15:04:05"
	DateKeyLayout       = "2006-01-02"
	DateWeekdayLayout   = "01-02 Monday"
	ClockLayout         = "15:04"
	ShortDateTimeLayout = "01-02 15:04"
)

// ErrInvalidTimestamp is returned when a dt_txt value does not match TimestampLayout.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// KelvinToCelsius converts k to Celsius. NaN propagates.
func KelvinToCelsius(k float64) float64 {
	return k - KelvinOffset
}

// FormatTemperature formats c with a fixed number of decimals and a '.' separator
// regardless of locale.
func FormatTemperature(c float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(c, 'f', decimals, 64)
}

// ParseTimestamp parses an upstream dt_txt value. Times are UTC wall clock.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}

func FormatDateKey(t time.Time) string         { return t.Format(DateKeyLayout) }
func FormatDateWithWeekday(t time.Time) string { return t.Format(DateWeekdayLayout) }
func FormatClockTime(t time.Time) string       { return t.Format(ClockLayout) }
func FormatShortDateTime(t time.Time) string   { return t.Format(ShortDateTimeLayout) }

// DateWithWeekdayOrRaw formats s as "MM-dd Weekday", or returns s unchanged when
// it does not parse.
func DateWithWeekdayOrRaw(s string) string {
	return formatOrRaw(s, FormatDateWithWeekday)
}

// ShortDateTimeOrRaw formats s as "MM-dd HH:mm", or returns s unchanged.
func ShortDateTimeOrRaw(s string) string {
	return formatOrRaw(s, FormatShortDateTime)
}

// ClockTimeOrRaw formats s as "HH:mm", or returns s unchanged.
func ClockTimeOrRaw(s string) string {
	return formatOrRaw(s, FormatClockTime)
}

func formatOrRaw(s string, format func(time.Time) string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return format(t)
}
