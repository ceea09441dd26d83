package vcp

import (
	"math"
	"sort"
)

// Constraint describes the legal values of a VCP code: either a continuous
// [Min,Max] range or a discrete set of values.
type Constraint struct {
	Min      int
	Max      int
	Discrete []int
}

// Continuous returns a range constraint.
func Continuous(min, max int) Constraint {
	return Constraint{Min: min, Max: max}
}

// DiscreteSet returns a constraint over the given legal values.
func DiscreteSet(values ...int) Constraint {
	vs := append([]int(nil), values...)
	sort.Ints(vs)
	c := Constraint{Discrete: vs}
	if len(vs) > 0 {
		c.Min, c.Max = vs[0], vs[len(vs)-1]
	}
	return c
}

// IsDiscrete reports whether only an enumerated set of values is legal.
func (c Constraint) IsDiscrete() bool {
	return len(c.Discrete) > 0
}

// Snap maps a candidate value onto the nearest legal value. Discrete ties
// resolve to the larger value; continuous values are clamped and rounded.
func (c Constraint) Snap(v float64) float64 {
	if c.IsDiscrete() {
		return float64(nearest(v, c.Discrete))
	}
	if !c.unbounded() {
		v = math.Max(float64(c.Min), math.Min(float64(c.Max), v))
	}
	return math.RoundToEven(v)
}

// unbounded is true when the monitor reported no maximum.
func (c Constraint) unbounded() bool {
	return c.Min == 0 && c.Max == 0
}

func nearest(v float64, values []int) int {
	best := values[0]
	bestDist := math.Abs(float64(best) - v)
	for _, candidate := range values[1:] {
		dist := math.Abs(float64(candidate) - v)
		if dist < bestDist || (dist == bestDist && candidate > best) {
			best, bestDist = candidate, dist
		}
	}
	return best
}
