package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/cadence/internal/models"
)

func f(v float64) *float64 { return &v }

// series builds n samples spaced step seconds apart.
func series(n int, step float64, fill func(i int, s *models.Sample)) []models.Sample {
	out := make([]models.Sample, n)
	for i := range out {
		out[i].Offset = float64(i) * step
		if fill != nil {
			fill(i, &out[i])
		}
	}
	return out
}

func TestSampleDurationsNeverExceedTotal(t *testing.T) {
	samples := []models.Sample{{Offset: 0}, {Offset: 10}, {Offset: 100}}
	durs := SampleDurations(samples, 50, 30)
	require.Equal(t, []float64{10, 30, 0}, durs)

	samples = []models.Sample{{Offset: 0}, {Offset: 10}, {Offset: 20}}
	durs = SampleDurations(samples, 15, 30)
	require.Equal(t, []float64{10, 5, 0}, durs)

	require.Empty(t, SampleDurations(nil, 100, 30))
}

func TestTrainingLoad(t *testing.T) {
	b := DefaultBaseline()
	p := DefaultParams()
	samples := series(60, 10, func(_ int, s *models.Sample) { s.HeartRate = f(125) })
	durs := SampleDurations(samples, 600, p.MaxSampleGap)

	m := TrainingLoad(samples, durs, b, p)
	require.True(t, m.Determined())
	want := 10 * 0.5 * 0.64 * math.Exp(1.92*0.5)
	require.InDelta(t, want, *m.Value, 1e-9)
	require.Equal(t, "trimp", m.Unit)
}

func TestMissingHeartRateIsUndetermined(t *testing.T) {
	a := &models.Activity{
		ID:              "act_x",
		Sport:           models.SportRunning,
		DurationSeconds: 600,
		Samples:         series(60, 10, func(_ int, s *models.Sample) { s.Speed = f(3) }),
	}
	res := Compute(a, DefaultBaseline(), DefaultParams())

	require.Nil(t, res.Load.Value)
	require.Equal(t, "no heart-rate samples", res.Load.Reason)
	require.False(t, res.Zones.Determined())
	require.Nil(t, res.Zones.Fractions)
	require.False(t, res.AerobicCapacity.Determined())
	require.Zero(t, res.HeartRateSeconds)
	require.InDelta(t, 600, res.CoveredSeconds, 1e-9)

	require.True(t, res.NormalizedSpeed.Determined())
	require.InDelta(t, 3, *res.NormalizedSpeed.Value, 1e-9)
	require.InDelta(t, 1000.0/3, *res.NormalizedPace.Value, 1e-9)
}

func TestHeartRateWithoutCoveredTimeIsUndetermined(t *testing.T) {
	a := &models.Activity{
		ID:      "act_instant",
		Sport:   models.SportRunning,
		Samples: []models.Sample{{Offset: 0, HeartRate: f(160)}},
	}
	res := Compute(a, DefaultBaseline(), DefaultParams())

	require.False(t, res.Zones.Determined())
	require.Equal(t, "heart-rate samples cover no time", res.Zones.Reason)
	require.False(t, res.Load.Determined())
	require.Nil(t, res.Load.Value)
	require.Equal(t, "heart-rate samples cover no time", res.Load.Reason)
}

func TestZonesBucketing(t *testing.T) {
	hrs := []*float64{f(130), f(140), f(180), nil}
	samples := series(4, 10, func(i int, s *models.Sample) { s.HeartRate = hrs[i] })
	durs := SampleDurations(samples, 40, 30)

	z := Zones(samples, durs, DefaultBaseline())
	require.True(t, z.Determined())
	require.Equal(t, []float64{125, 138, 151, 164, 177, 190}, z.Bounds)
	require.Equal(t, []float64{10, 10, 0, 0, 10}, z.Seconds)
	var sum float64
	for _, fr := range z.Fractions {
		sum += fr
	}
	require.InDelta(t, 1, sum, 1e-9)
	require.InDelta(t, 1.0/3, z.Fractions[4], 1e-9)
}

func TestZonesIncompleteBaseline(t *testing.T) {
	samples := series(2, 10, func(_ int, s *models.Sample) { s.HeartRate = f(150) })
	z := Zones(samples, []float64{10, 10}, Baseline{MaxHR: 180})
	require.False(t, z.Determined())
	require.NotEmpty(t, z.Reason)
}

func TestNormalizedSpeedExcludesStops(t *testing.T) {
	speeds := []float64{3, 0.2, 4}
	samples := series(3, 10, func(i int, s *models.Sample) { s.Speed = f(speeds[i]) })
	durs := SampleDurations(samples, 30, 30)

	m := NormalizedSpeed(samples, durs, DefaultParams())
	require.True(t, m.Determined())
	require.InDelta(t, 3.5, *m.Value, 1e-9)

	stopped := series(3, 10, func(_ int, s *models.Sample) { s.Speed = f(0) })
	m = NormalizedSpeed(stopped, durs, DefaultParams())
	require.False(t, m.Determined())
	require.Equal(t, "no moving segments", m.Reason)

	pace := PaceOf(m)
	require.False(t, pace.Determined())
	require.Equal(t, "s/km", pace.Unit)
}

func TestAerobicCapacityRunning(t *testing.T) {
	samples := series(180, 10, func(_ int, s *models.Sample) {
		s.HeartRate = f(164)
		s.Speed = f(3)
	})
	a := &models.Activity{Sport: models.SportRunning, DurationSeconds: 1800, Samples: samples}

	est := Compute(a, DefaultBaseline(), DefaultParams()).AerobicCapacity
	require.True(t, est.Determined())
	require.Equal(t, "acsm_running", est.Method)
	// 3 m/s costs 39.5 ml/kg/min at 80% of heart-rate reserve.
	require.InDelta(t, 48.5, *est.Value, 1e-6)
	require.False(t, est.LowConfidence)
	require.Empty(t, est.Notes)
}

func TestAerobicCapacityPicksHardestWindow(t *testing.T) {
	samples := series(180, 10, func(i int, s *models.Sample) {
		s.HeartRate = f(164)
		s.Speed = f(2)
		if i >= 100 && i < 160 {
			s.Speed = f(3)
		}
	})
	durs := SampleDurations(samples, 1800, 30)
	est := AerobicCapacity(models.SportRunning, 1800, samples, durs, DefaultBaseline(), DefaultParams())
	require.True(t, est.Determined())
	require.InDelta(t, 48.5, *est.Value, 1e-6)
}

func TestAerobicCapacityShortActivityIsLowConfidence(t *testing.T) {
	samples := series(30, 10, func(_ int, s *models.Sample) {
		s.HeartRate = f(164)
		s.Speed = f(3)
	})
	durs := SampleDurations(samples, 300, 30)
	est := AerobicCapacity(models.SportRunning, 300, samples, durs, DefaultBaseline(), DefaultParams())
	require.True(t, est.Determined())
	require.True(t, est.LowConfidence)
	require.Len(t, est.Notes, 2)
}

func TestAerobicCapacityCycling(t *testing.T) {
	samples := series(180, 10, func(_ int, s *models.Sample) {
		s.HeartRate = f(164)
		s.Power = f(210)
	})
	durs := SampleDurations(samples, 1800, 30)

	est := AerobicCapacity(models.SportCycling, 1800, samples, durs, DefaultBaseline(), DefaultParams())
	require.False(t, est.Determined())
	require.Equal(t, "body weight unknown", est.Reason)

	b := DefaultBaseline()
	b.WeightKg = 70
	est = AerobicCapacity(models.SportCycling, 1800, samples, durs, b, DefaultParams())
	require.True(t, est.Determined())
	require.InDelta(t, 3.5+(39.4-3.5)/0.8, *est.Value, 1e-6)
}

func TestAerobicCapacityLowIntensityIsUndetermined(t *testing.T) {
	samples := series(180, 10, func(_ int, s *models.Sample) {
		s.HeartRate = f(65)
		s.Speed = f(1)
	})
	durs := SampleDurations(samples, 1800, 30)
	est := AerobicCapacity(models.SportWalking, 1800, samples, durs, DefaultBaseline(), DefaultParams())
	require.False(t, est.Determined())
	require.Equal(t, "acsm_walking", est.Method)
}

func TestAerobicCapacityUnsupportedSport(t *testing.T) {
	samples := series(10, 10, func(_ int, s *models.Sample) { s.HeartRate = f(150) })
	est := AerobicCapacity(models.SportSwimming, 100, samples, SampleDurations(samples, 100, 30), DefaultBaseline(), DefaultParams())
	require.False(t, est.Determined())
	require.Contains(t, est.Reason, "swimming")
}

func TestSummarize(t *testing.T) {
	alts := []float64{100, 105, 103, 110}
	a := &models.Activity{
		Sport:           models.SportRunning,
		DurationSeconds: 40,
		Samples: series(4, 10, func(i int, s *models.Sample) {
			s.Altitude = f(alts[i])
			s.Speed = f(4)
			s.HeartRate = f(140 + float64(i))
			if i > 0 {
				s.Power = f(200 + 10*float64(i))
			}
		}),
	}
	a.Samples[0].Speed = f(0.2)
	a.Samples[3].Speed = f(5)
	sum := Summarize(a, models.Summary{Calories: f(320), AvgHeartRate: f(1), AvgPower: f(999)}, DefaultParams())

	require.InDelta(t, 12, *sum.ElevationGain, 1e-9)
	require.InDelta(t, 2, *sum.ElevationLoss, 1e-9)
	require.InDelta(t, 13.0/3, *sum.AvgSpeed, 1e-9)
	require.InDelta(t, 1000/(13.0/3), *sum.AvgPace, 1e-9)
	require.InDelta(t, 200, *sum.BestPace, 1e-9)
	require.InDelta(t, 141.5, *sum.AvgHeartRate, 1e-9)
	require.InDelta(t, 140, *sum.MinHeartRate, 1e-9)
	require.InDelta(t, 143, *sum.MaxHeartRate, 1e-9)
	require.InDelta(t, 220, *sum.AvgPower, 1e-9)
	require.InDelta(t, 230, *sum.MaxPower, 1e-9)
	require.InDelta(t, 320, *sum.Calories, 1e-9)

	a.Sport = models.SportCycling
	cyc := Summarize(a, models.Summary{}, DefaultParams())
	require.Nil(t, cyc.AvgPace)
	require.Nil(t, cyc.BestPace)
}
