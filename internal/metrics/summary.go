package metrics

import "github.com/starford/cadence/internal/models"

// Summarize computes the stored summary fields of a. Values that cannot be
// derived from samples are taken from fallback, which usually carries the
// device's own session totals.
func Summarize(a *models.Activity, fallback models.Summary, p Params) models.Summary {
	out := fallback

	var hr, power channelStats
	var bestSpeed float64
	for _, s := range a.Samples {
		hr.add(s.HeartRate)
		power.add(s.Power)
		if s.Speed != nil && *s.Speed >= p.MovingSpeedThreshold && *s.Speed > bestSpeed {
			bestSpeed = *s.Speed
		}
	}
	if hr.n > 0 {
		out.AvgHeartRate = models.Float(hr.mean())
		out.MinHeartRate = models.Float(hr.min)
		out.MaxHeartRate = models.Float(hr.max)
	}
	if power.n > 0 {
		out.AvgPower = models.Float(power.mean())
		out.MaxPower = models.Float(power.max)
	}

	durs := SampleDurations(a.Samples, a.DurationSeconds, p.MaxSampleGap)
	if speed := NormalizedSpeed(a.Samples, durs, p); speed.Determined() {
		out.AvgSpeed = speed.Value
	}
	out.AvgPace, out.BestPace = nil, nil
	if a.Sport.OnFoot() {
		if out.AvgSpeed != nil && *out.AvgSpeed > 0 {
			out.AvgPace = models.Float(1000 / *out.AvgSpeed)
		}
		if bestSpeed > 0 {
			out.BestPace = models.Float(1000 / bestSpeed)
		}
	}

	var prev *float64
	var gain, loss float64
	var alt int
	for _, s := range a.Samples {
		if s.Altitude == nil {
			continue
		}
		if prev != nil {
			if d := *s.Altitude - *prev; d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		prev = s.Altitude
		alt++
	}
	if alt >= 2 {
		out.ElevationGain = models.Float(gain)
		out.ElevationLoss = models.Float(loss)
	}
	return out
}

// channelStats accumulates the mean and range of an optional sample channel.
type channelStats struct {
	sum, min, max float64
	n             int
}

func (s *channelStats) add(v *float64) {
	if v == nil {
		return
	}
	if s.n == 0 || *v < s.min {
		s.min = *v
	}
	if s.n == 0 || *v > s.max {
		s.max = *v
	}
	s.sum += *v
	s.n++
}

func (s *channelStats) mean() float64 { return s.sum / float64(s.n) }
