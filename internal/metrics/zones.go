package metrics

import "github.com/starford/cadence/internal/models"

// ZoneDistribution is the time spent in each heart-rate zone. Seconds is nil
// when undetermined.
type ZoneDistribution struct {
	Bounds    []float64 `json:"bounds_bpm,omitempty"`
	Seconds   []float64 `json:"seconds,omitempty"`
	Fractions []float64 `json:"fractions,omitempty"`
	Reason    string    `json:"undetermined_reason,omitempty"`
}

// Determined reports whether the distribution was computed.
func (z ZoneDistribution) Determined() bool { return z.Seconds != nil }

// ZoneBounds converts the fractional zone boundaries into beats per minute.
func (b Baseline) ZoneBounds() []float64 {
	out := make([]float64, len(b.Zones))
	for i, f := range b.Zones {
		out[i] = b.RestHR + f*(b.MaxHR-b.RestHR)
	}
	return out
}

// zoneIndex buckets hr. Below the second bound is the first zone, at or
// above the last inner bound is the top zone.
func zoneIndex(hr float64, bounds []float64) int {
	top := len(bounds) - 2
	for k := top; k >= 1; k-- {
		if hr >= bounds[k] {
			return k
		}
	}
	return 0
}

// Zones buckets heart-rate samples into the baseline's zones. Samples
// without heart rate are left out of both numerator and denominator.
func Zones(samples []models.Sample, durs []float64, b Baseline) ZoneDistribution {
	if !b.usable() {
		return ZoneDistribution{Reason: "athlete heart-rate baseline is incomplete"}
	}
	bounds := b.ZoneBounds()
	secs := make([]float64, len(bounds)-1)
	var covered float64
	var seen bool
	for i, s := range samples {
		if s.HeartRate == nil {
			continue
		}
		seen = true
		if durs[i] == 0 {
			continue
		}
		secs[zoneIndex(*s.HeartRate, bounds)] += durs[i]
		covered += durs[i]
	}
	switch {
	case !seen:
		return ZoneDistribution{Bounds: bounds, Reason: "no heart-rate samples"}
	case covered == 0:
		return ZoneDistribution{Bounds: bounds, Reason: "heart-rate samples cover no time"}
	}
	fr := make([]float64, len(secs))
	for i, s := range secs {
		fr[i] = s / covered
	}
	return ZoneDistribution{Bounds: bounds, Seconds: secs, Fractions: fr}
}
