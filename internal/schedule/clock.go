package schedule

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// HourOf returns the fractional hour of t in its own location.
func HourOf(t time.Time) float64 {
	return float64(t.Hour()) +
		float64(t.Minute())/60 +
		float64(t.Second())/3600 +
		float64(t.Nanosecond())/3.6e12
}

// ParseClock parses "HH:MM" into a fractional hour.
func ParseClock(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)

	matches := clockPattern.FindStringSubmatch(expr)
	if matches == nil {
		return 0, fmt.Errorf("invalid clock time: %q", expr)
	}

	hour, _ := strconv.Atoi(matches[1])
	min, _ := strconv.Atoi(matches[2])

	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour: %d", hour)
	}
	if min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid minute: %d", min)
	}

	return float64(hour) + float64(min)/60, nil
}

// ReadableTime formats a fractional hour as "h:mm AM/PM".
func ReadableTime(hour float64) string {
	h := int(hour)
	m := int((hour - float64(h)) * 60)

	ampm := "AM"
	if h%24 >= 12 {
		ampm = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, ampm)
}

// OnDay returns the instant at the given fractional hour on day's calendar
// date, in day's location.
func OnDay(day time.Time, hour float64) time.Time {
	y, m, d := day.Date()
	secs := int(math.Round(hour * 3600))
	return time.Date(y, m, d, secs/3600, secs%3600/60, secs%60, 0, day.Location())
}
