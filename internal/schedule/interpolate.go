package schedule

import "math"

// Interpolate returns the schedule value at hour, treating the day as
// circular so the last and first points interpolate across midnight.
// points must be sorted by hour.
func Interpolate(points []Point, hour float64) (float64, error) {
	if len(points) == 0 {
		return 0, ErrNoPoints
	}
	if len(points) == 1 {
		return points[0].Value, nil
	}

	// Exact hits short-circuit, which also keeps degenerate periods out of
	// the division below.
	for _, p := range points {
		if p.Hour == hour {
			return p.Value, nil
		}
	}

	prevIdx, nextIdx := -1, -1
	for i, p := range points {
		if p.Hour < hour {
			prevIdx = i
		}
		if p.Hour > hour && nextIdx == -1 {
			nextIdx = i
		}
	}

	var prevHour, prevValue, nextHour, nextValue float64
	if prevIdx == -1 {
		last := points[len(points)-1]
		prevHour, prevValue = last.Hour-HoursPerDay, last.Value
	} else {
		prevHour, prevValue = points[prevIdx].Hour, points[prevIdx].Value
	}
	if nextIdx == -1 {
		first := points[0]
		nextHour, nextValue = first.Hour+HoursPerDay, first.Value
	} else {
		nextHour, nextValue = points[nextIdx].Hour, points[nextIdx].Value
	}

	period := nextHour - prevHour
	if period == 0 {
		return nextValue, nil
	}
	elapsed := hour - prevHour

	return prevValue + (nextValue-prevValue)*(elapsed/period), nil
}

// InterpolateInt is Interpolate rounded half to even.
func InterpolateInt(points []Point, hour float64) (int, error) {
	v, err := Interpolate(points, hour)
	if err != nil {
		return 0, err
	}
	return Round(v), nil
}

// Round converts an interpolated value to the integer sent to the monitor.
// Halves round to even.
func Round(v float64) int {
	return int(math.RoundToEven(v))
}
