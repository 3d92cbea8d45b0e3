// Package metrics turns activity samples into training metrics. Everything
// here is a pure function of its arguments. A measure that cannot be
// computed from the available data is reported as undetermined with a
// reason; it is never replaced by zero.
package metrics

import (
	"math"

	"github.com/starford/cadence/internal/models"
)

// FormulaVersion identifies the current set of formulas. Cached results and
// stored summaries computed with another version are stale.
const FormulaVersion = 2

// Baseline is the athlete's physiological reference.
type Baseline struct {
	MaxHR         float64
	RestHR        float64
	WeightKg      float64 // 0 when unknown
	ThresholdPace float64 // s/km; 0 when unknown
	// Zones holds ascending zone boundaries as fractions of heart-rate
	// reserve; n+1 boundaries describe n zones.
	Zones []float64
}

// DefaultBaseline returns a generic adult baseline with five Karvonen zones.
func DefaultBaseline() Baseline {
	return Baseline{
		MaxHR:  190,
		RestHR: 60,
		Zones:  []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	}
}

func (b Baseline) usable() bool {
	return b.RestHR > 0 && b.MaxHR > b.RestHR && len(b.Zones) >= 2
}

func (b Baseline) reserveFraction(hr float64) float64 {
	return (hr - b.RestHR) / (b.MaxHR - b.RestHR)
}

// Params holds the calibration constants of the formulas.
type Params struct {
	TRIMPFactor          float64 // a in a*r*exp(b*r)
	TRIMPExponent        float64 // b in a*r*exp(b*r)
	MovingSpeedThreshold float64 // m/s; slower samples count as stopped
	MaxSampleGap         float64 // s; longest time a single sample may cover
	SustainedWindow      float64 // s; effort window for aerobic capacity
	MinAerobicDuration   float64 // s
	MinAerobicIntensity  float64 // fraction of heart-rate reserve
}

// DefaultParams returns Banister's TRIMP constants and conservative
// thresholds for the other measures.
func DefaultParams() Params {
	return Params{
		TRIMPFactor:          0.64,
		TRIMPExponent:        1.92,
		MovingSpeedThreshold: 0.5,
		MaxSampleGap:         30,
		SustainedWindow:      600,
		MinAerobicDuration:   1200,
		MinAerobicIntensity:  0.65,
	}
}

// Measure is a single metric value. Value is nil when undetermined.
type Measure struct {
	Value  *float64 `json:"value"`
	Unit   string   `json:"unit"`
	Reason string   `json:"undetermined_reason,omitempty"`
}

// Determined reports whether the measure has a value.
func (m Measure) Determined() bool { return m.Value != nil }

func determined(v float64, unit string) Measure {
	return Measure{Value: &v, Unit: unit}
}

func undetermined(unit, reason string) Measure {
	return Measure{Unit: unit, Reason: reason}
}

// Result bundles every per-activity metric.
type Result struct {
	ActivityID       string               `json:"activity_id"`
	FormulaVersion   int                  `json:"formula_version"`
	CoveredSeconds   float64              `json:"covered_s"`
	HeartRateSeconds float64              `json:"hr_covered_s"`
	Zones            ZoneDistribution     `json:"hr_zones"`
	Load             Measure              `json:"training_load"`
	NormalizedSpeed  Measure              `json:"normalized_speed"`
	NormalizedPace   Measure              `json:"normalized_pace"`
	AerobicCapacity  AerobicEstimate      `json:"aerobic_capacity"`
	PaceZones        PaceZoneDistribution `json:"pace_zones"`
}

// Compute derives every metric for a.
func Compute(a *models.Activity, b Baseline, p Params) Result {
	durs := SampleDurations(a.Samples, a.DurationSeconds, p.MaxSampleGap)
	res := Result{
		ActivityID:     a.ID,
		FormulaVersion: FormulaVersion,
	}
	for i, d := range durs {
		res.CoveredSeconds += d
		if a.Samples[i].HeartRate != nil {
			res.HeartRateSeconds += d
		}
	}
	res.Zones = Zones(a.Samples, durs, b)
	res.Load = TrainingLoad(a.Samples, durs, b, p)
	res.NormalizedSpeed = NormalizedSpeed(a.Samples, durs, p)
	res.NormalizedPace = PaceOf(res.NormalizedSpeed)
	res.AerobicCapacity = AerobicCapacity(a.Sport, a.DurationSeconds, a.Samples, durs, b, p)
	res.PaceZones = PaceZoneTimes(a.Sport, a.Samples, durs, b, p)
	return res
}

// SampleDurations returns the time covered by each sample: the gap to the
// next sample capped at maxGap, the last sample running to the end of the
// activity. The running total never exceeds total. When total is unknown
// (<= 0) the last sample offset is used as the end.
func SampleDurations(samples []models.Sample, total, maxGap float64) []float64 {
	n := len(samples)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	end := total
	if end <= 0 {
		end = math.Max(0, samples[n-1].Offset)
	}
	var sum float64
	for i := range samples {
		next := end
		if i+1 < n {
			next = samples[i+1].Offset
		}
		d := next - samples[i].Offset
		if d < 0 || math.IsNaN(d) {
			d = 0
		}
		if maxGap > 0 && d > maxGap {
			d = maxGap
		}
		if sum+d > end {
			d = math.Max(0, end-sum)
		}
		out[i] = d
		sum += d
	}
	return out
}

// TrainingLoad integrates the heart-rate-reserve weighted duration (TRIMP).
func TrainingLoad(samples []models.Sample, durs []float64, b Baseline, p Params) Measure {
	const unit = "trimp"
	if !b.usable() {
		return undetermined(unit, "athlete heart-rate baseline is incomplete")
	}
	var load, covered float64
	var seen bool
	for i, s := range samples {
		if s.HeartRate == nil {
			continue
		}
		seen = true
		covered += durs[i]
		r := clamp(b.reserveFraction(*s.HeartRate), 0, 1)
		load += durs[i] / 60 * r * p.TRIMPFactor * math.Exp(p.TRIMPExponent*r)
	}
	switch {
	case !seen:
		return undetermined(unit, "no heart-rate samples")
	case covered == 0:
		return undetermined(unit, "heart-rate samples cover no time")
	}
	return determined(load, unit)
}

// NormalizedSpeed is the duration-weighted mean speed over moving samples.
func NormalizedSpeed(samples []models.Sample, durs []float64, p Params) Measure {
	const unit = "m/s"
	var num, den float64
	var seen bool
	for i, s := range samples {
		if s.Speed == nil {
			continue
		}
		seen = true
		if *s.Speed < p.MovingSpeedThreshold || durs[i] == 0 {
			continue
		}
		num += *s.Speed * durs[i]
		den += durs[i]
	}
	switch {
	case !seen:
		return undetermined(unit, "no speed samples")
	case den == 0:
		return undetermined(unit, "no moving segments")
	}
	return determined(num/den, unit)
}

// PaceOf converts a speed measure into seconds per kilometre.
func PaceOf(speed Measure) Measure {
	const unit = "s/km"
	if !speed.Determined() {
		return undetermined(unit, speed.Reason)
	}
	if *speed.Value <= 0 {
		return undetermined(unit, "speed is zero")
	}
	return determined(1000 / *speed.Value, unit)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
