// Package schedule provides the time-of-day model for VCP value schedules.
// A schedule is a sparse, hour-sorted set of points on a circular 24 hour day.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// HoursPerDay is the period of the circular hour domain.
const HoursPerDay = 24.0

var (
	ErrNoPoints       = errors.New("schedule has no points")
	ErrHourOutOfRange = errors.New("hour out of range [0,24)")
	ErrDuplicateHour  = errors.New("duplicate hour")
)

// Point is an (hour, value) anchor.
type Point struct {
	Hour  float64 `json:"Hour"`
	Value float64 `json:"Value"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.Hour, math.Round(p.Value*1e4)/1e4)
}

// Normalize validates points and returns a copy sorted by hour.
func Normalize(points []Point) ([]Point, error) {
	out := make([]Point, len(points))
	copy(out, points)

	for _, p := range out {
		if math.IsNaN(p.Hour) || p.Hour < 0 || p.Hour >= HoursPerDay {
			return nil, fmt.Errorf("%w: %g", ErrHourOutOfRange, p.Hour)
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("invalid value at hour %g", p.Hour)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })

	for i := 1; i < len(out); i++ {
		if out[i].Hour == out[i-1].Hour {
			return nil, fmt.Errorf("%w: %g", ErrDuplicateHour, out[i].Hour)
		}
	}
	return out, nil
}

// Clone returns a copy of points.
func Clone(points []Point) []Point {
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	copy(out, points)
	return out
}
