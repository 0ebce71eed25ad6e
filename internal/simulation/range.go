package simulation

import (
	"math"

	"github.com/rs/zerolog/log"
)

// RangeValue is the only numeric output type for growth, ROI and projected
// risk. Min <= Max always holds on values leaving this package.
type RangeValue struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r RangeValue) Width() float64    { return r.Max - r.Min }
func (r RangeValue) Midpoint() float64 { return (r.Min + r.Max) / 2 }

// ordered returns r with min <= max. An inversion is a computation defect, so
// it is logged with the stage that produced it before being repaired.
func ordered(stage, metric string, r RangeValue) RangeValue {
	if r.Min > r.Max {
		log.Error().
			Str("stage", stage).
			Str("metric", metric).
			Float64("min", r.Min).
			Float64("max", r.Max).
			Msg("range invariant violated: min > max")
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

// adjust scales v by factor f relative to its magnitude: f > 1 always moves v
// up and f < 1 always moves it down, whatever the sign of v.
func adjust(v, f float64) float64 { return v + math.Abs(v)*(f-1) }

func scaleBoth(r RangeValue, f float64) RangeValue {
	return RangeValue{Min: adjust(r.Min, f), Max: adjust(r.Max, f)}
}

func scaleUpper(r RangeValue, f float64) RangeValue {
	return RangeValue{Min: r.Min, Max: adjust(r.Max, f)}
}

// spread scales the half-width around a fixed midpoint.
func spread(r RangeValue, f float64) RangeValue {
	mid := r.Midpoint()
	half := r.Width() / 2 * f
	return RangeValue{Min: mid - half, Max: mid + half}
}

func shift(r RangeValue, d float64) RangeValue {
	return RangeValue{Min: r.Min + d, Max: r.Max + d}
}

func floorAt(r RangeValue, floor float64) RangeValue {
	return RangeValue{Min: math.Max(r.Min, floor), Max: math.Max(r.Max, floor)}
}

func clampRange(r RangeValue, lo, hi float64) RangeValue {
	return RangeValue{Min: clamp(r.Min, lo, hi), Max: clamp(r.Max, lo, hi)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // normalize -0
	}
	return r
}

func (r RangeValue) rounded() RangeValue {
	return RangeValue{Min: round2(r.Min), Max: round2(r.Max)}
}
