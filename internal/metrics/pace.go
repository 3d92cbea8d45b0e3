package metrics

import (
	"fmt"
	"sort"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/models"
)

// PaceZone is one band of pace relative to threshold pace, in s/km. Slow is
// nil for the open-ended easiest zone and Fast for the hardest one.
type PaceZone struct {
	Name string   `json:"name"`
	Slow *float64 `json:"slow_s_per_km"`
	Fast *float64 `json:"fast_s_per_km"`
}

// paceZoneFactors are the zone boundaries as multiples of threshold pace,
// from slowest to fastest.
var paceZoneFactors = []float64{1.30, 1.15, 1.05, 0.95}

var paceZoneNames = []string{"recovery", "aerobic", "tempo", "threshold", "vo2max"}

// PaceZones returns the five pace zones for a threshold pace in s/km.
func PaceZones(threshold float64) []PaceZone {
	out := make([]PaceZone, len(paceZoneNames))
	for i := range out {
		out[i].Name = paceZoneNames[i]
		if i > 0 {
			out[i].Slow = models.Float(threshold * paceZoneFactors[i-1])
		}
		if i < len(paceZoneFactors) {
			out[i].Fast = models.Float(threshold * paceZoneFactors[i])
		}
	}
	return out
}

func paceZoneIndex(pace, threshold float64) int {
	r := pace / threshold
	for i, f := range paceZoneFactors {
		if r > f {
			return i
		}
	}
	return len(paceZoneFactors)
}

// PaceZoneDistribution is the moving time spent in each pace zone. Seconds
// is nil when undetermined.
type PaceZoneDistribution struct {
	ThresholdPace *float64   `json:"threshold_pace_s_per_km,omitempty"`
	Zones         []PaceZone `json:"zones,omitempty"`
	Seconds       []float64  `json:"seconds,omitempty"`
	Fractions     []float64  `json:"fractions,omitempty"`
	Reason        string     `json:"undetermined_reason,omitempty"`
}

// Determined reports whether the distribution was computed.
func (z PaceZoneDistribution) Determined() bool { return z.Seconds != nil }

// PaceZoneTimes buckets moving speed samples of an on-foot activity into
// the pace zones of the baseline's threshold pace.
func PaceZoneTimes(sport models.Sport, samples []models.Sample, durs []float64, b Baseline, p Params) PaceZoneDistribution {
	if !sport.OnFoot() {
		return PaceZoneDistribution{Reason: fmt.Sprintf("no pace zones for %s", sport)}
	}
	if b.ThresholdPace <= 0 {
		return PaceZoneDistribution{Reason: "threshold pace unknown"}
	}
	out := PaceZoneDistribution{
		ThresholdPace: models.Float(b.ThresholdPace),
		Zones:         PaceZones(b.ThresholdPace),
	}
	secs := make([]float64, len(out.Zones))
	var covered float64
	var seen bool
	for i, s := range samples {
		if s.Speed == nil {
			continue
		}
		seen = true
		if *s.Speed < p.MovingSpeedThreshold || durs[i] == 0 {
			continue
		}
		secs[paceZoneIndex(1000 / *s.Speed, b.ThresholdPace)] += durs[i]
		covered += durs[i]
	}
	switch {
	case !seen:
		out.Reason = "no speed samples"
		return out
	case covered == 0:
		out.Reason = "no moving segments"
		return out
	}
	out.Seconds = secs
	out.Fractions = make([]float64, len(secs))
	for i, s := range secs {
		out.Fractions[i] = s / covered
	}
	return out
}

// MinThresholdSessions is the number of qualifying runs a threshold pace
// estimate needs.
const MinThresholdSessions = 3

// minThresholdIntensity is the mean heart-rate reserve fraction from which a
// run counts as tempo effort or harder.
const minThresholdIntensity = 0.75

// ThresholdEstimate is a threshold pace derived from recent hard runs.
type ThresholdEstimate struct {
	Pace     float64    `json:"threshold_pace_s_per_km"`
	Sessions []string   `json:"sessions"`
	Zones    []PaceZone `json:"zones"`
}

// EstimateThresholdPace takes the median average pace of the runs in acts
// whose mean heart rate is at tempo intensity or above. Fewer than
// MinThresholdSessions such runs is an InsufficientData error.
func EstimateThresholdPace(acts []models.Activity, b Baseline) (*ThresholdEstimate, error) {
	const op = "metrics.EstimateThresholdPace"
	if !b.usable() {
		return nil, apperr.New(apperr.ErrInsufficientData, op, fmt.Errorf("athlete heart-rate baseline is incomplete"))
	}
	type run struct {
		id   string
		pace float64
	}
	var runs []run
	for _, a := range acts {
		sum := a.Summary
		if a.Sport != models.SportRunning || sum.AvgPace == nil || sum.AvgHeartRate == nil || *sum.AvgPace <= 0 {
			continue
		}
		if b.reserveFraction(*sum.AvgHeartRate) < minThresholdIntensity {
			continue
		}
		runs = append(runs, run{id: a.ID, pace: *sum.AvgPace})
	}
	if len(runs) < MinThresholdSessions {
		return nil, apperr.New(apperr.ErrInsufficientData, op,
			fmt.Errorf("%d qualifying runs, need %d", len(runs), MinThresholdSessions))
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].pace < runs[j].pace })
	mid := len(runs) / 2
	median := runs[mid].pace
	if len(runs)%2 == 0 {
		median = (runs[mid-1].pace + runs[mid].pace) / 2
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.id
	}
	sort.Strings(ids)
	return &ThresholdEstimate{Pace: median, Sessions: ids, Zones: PaceZones(median)}, nil
}
