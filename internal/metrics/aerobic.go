package metrics

import (
	"fmt"

	"github.com/starford/cadence/internal/models"
)

// AerobicEstimate is a VO2max estimate in ml/kg/min.
type AerobicEstimate struct {
	Measure
	LowConfidence bool     `json:"low_confidence"`
	Method        string   `json:"method,omitempty"`
	Notes         []string `json:"notes,omitempty"`
}

// minReserveFraction is the lowest heart-rate reserve fraction the
// extrapolation is attempted from.
const minReserveFraction = 0.1

const restingVO2 = 3.5

type workModel struct {
	method string
	signal func(models.Sample) *float64
	vo2    func(work float64) float64
}

func workModelFor(sport models.Sport, p Params, weightKg float64) (*workModel, string) {
	speed := func(s models.Sample) *float64 {
		if s.Speed == nil || *s.Speed < p.MovingSpeedThreshold {
			return nil
		}
		return s.Speed
	}
	switch sport {
	case models.SportRunning:
		// ACSM running: 0.2 ml/kg/min per m/min.
		return &workModel{method: "acsm_running", signal: speed, vo2: func(v float64) float64 {
			return restingVO2 + 0.2*v*60
		}}, ""
	case models.SportWalking, models.SportHiking:
		// ACSM walking: 0.1 ml/kg/min per m/min.
		return &workModel{method: "acsm_walking", signal: speed, vo2: func(v float64) float64 {
			return restingVO2 + 0.1*v*60
		}}, ""
	case models.SportCycling:
		if weightKg <= 0 {
			return nil, "body weight unknown"
		}
		// ACSM leg ergometry: 10.8 ml/kg/min per W/kg plus 7 ml/kg/min.
		return &workModel{method: "acsm_cycling", signal: func(s models.Sample) *float64 { return s.Power },
			vo2: func(w float64) float64 {
				return 7 + 10.8*w/weightKg
			}}, ""
	}
	return nil, fmt.Sprintf("no aerobic model for %s", sport)
}

// AerobicCapacity estimates VO2max from the hardest sustained window. The
// work rate of the window is turned into an oxygen cost with the ACSM
// equation for the sport, then extrapolated to maximum through the
// heart-rate reserve fraction (%HRR ~ %VO2R).
func AerobicCapacity(sport models.Sport, duration float64, samples []models.Sample, durs []float64, b Baseline, p Params) AerobicEstimate {
	const unit = "ml/kg/min"
	if !b.usable() {
		return AerobicEstimate{Measure: undetermined(unit, "athlete heart-rate baseline is incomplete")}
	}
	wm, reason := workModelFor(sport, p, b.WeightKg)
	if wm == nil {
		return AerobicEstimate{Measure: undetermined(unit, reason)}
	}

	var work, hr, dur []float64
	for i, s := range samples {
		w := wm.signal(s)
		if w == nil || s.HeartRate == nil || durs[i] == 0 {
			continue
		}
		work = append(work, *w)
		hr = append(hr, *s.HeartRate)
		dur = append(dur, durs[i])
	}
	if len(work) == 0 {
		return AerobicEstimate{Measure: undetermined(unit, "no samples with both heart rate and work rate"), Method: wm.method}
	}

	n := len(work)
	prefD := make([]float64, n+1)
	prefW := make([]float64, n+1)
	prefH := make([]float64, n+1)
	for i := 0; i < n; i++ {
		prefD[i+1] = prefD[i] + dur[i]
		prefW[i+1] = prefW[i] + dur[i]*work[i]
		prefH[i+1] = prefH[i] + dur[i]*hr[i]
	}

	var notes []string
	bestI, bestJ, bestWork := 0, n, -1.0
	j := 0
	for i := 0; i < n; i++ {
		for j < n && prefD[j]-prefD[i] < p.SustainedWindow {
			j++
		}
		span := prefD[j] - prefD[i]
		if span < p.SustainedWindow {
			break
		}
		if w := (prefW[j] - prefW[i]) / span; w > bestWork {
			bestI, bestJ, bestWork = i, j, w
		}
	}
	if bestWork < 0 {
		bestI, bestJ = 0, n
		notes = append(notes, fmt.Sprintf("no sustained %.0f min window", p.SustainedWindow/60))
	}

	span := prefD[bestJ] - prefD[bestI]
	avgWork := (prefW[bestJ] - prefW[bestI]) / span
	avgHR := (prefH[bestJ] - prefH[bestI]) / span
	frac := b.reserveFraction(avgHR)
	if frac < minReserveFraction {
		return AerobicEstimate{
			Measure: undetermined(unit, "effort intensity too low to extrapolate"),
			Method:  wm.method,
			Notes:   notes,
		}
	}
	if frac > 1 {
		frac = 1
	}

	vo2 := wm.vo2(avgWork)
	vo2max := restingVO2 + (vo2-restingVO2)/frac

	if duration < p.MinAerobicDuration {
		notes = append(notes, fmt.Sprintf("activity shorter than %.0f min", p.MinAerobicDuration/60))
	}
	if frac < p.MinAerobicIntensity {
		notes = append(notes, fmt.Sprintf("intensity %.0f%% of heart-rate reserve is below %.0f%%", frac*100, p.MinAerobicIntensity*100))
	}
	return AerobicEstimate{
		Measure:       determined(vo2max, unit),
		LowConfidence: len(notes) > 0,
		Method:        wm.method,
		Notes:         notes,
	}
}
