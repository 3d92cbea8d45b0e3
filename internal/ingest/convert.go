package ingest

import (
	"errors"
	"sort"
	"time"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/checksum"
	"github.com/starford/cadence/internal/fit"
	"github.com/starford/cadence/internal/metrics"
	"github.com/starford/cadence/internal/models"
)

// SportOf maps a FIT sport and sub sport onto the activity sport set.
func SportOf(sport, sub uint8) models.Sport {
	switch sport {
	case fit.SportRunning:
		return models.SportRunning
	case fit.SportCycling:
		return models.SportCycling
	case fit.SportSwimming:
		return models.SportSwimming
	case fit.SportWalking:
		return models.SportWalking
	case fit.SportHiking:
		return models.SportHiking
	case fit.SportRowing:
		return models.SportRowing
	case fit.SportTraining:
		return models.SportStrength
	case fit.SportGeneric:
		if sub == fit.SubSportStrengthTraining {
			return models.SportStrength
		}
	case fit.SportFitnessEquipment:
		switch sub {
		case fit.SubSportIndoorRowing:
			return models.SportRowing
		case fit.SubSportStrengthTraining:
			return models.SportStrength
		}
	}
	return models.SportOther
}

// toActivity builds an activity from a fully decoded file. Sessions are
// summed for multisport recordings; the first session names the sport.
func toActivity(f *fit.File, fingerprint, path string, p metrics.Params) (*models.Activity, error) {
	const op = "ingest.convert"

	sessions := f.Sessions()
	records := f.Records()

	a := &models.Activity{
		ID:             checksum.ActivityID(fingerprint),
		Sport:          models.SportOther,
		Fingerprint:    fingerprint,
		SourcePath:     path,
		SummaryVersion: metrics.FormulaVersion,
	}

	var fallback models.Summary
	var haveDuration bool
	var sessionDistance *float64
	for i, s := range sessions {
		if i == 0 {
			a.StartTime = s.StartTime
			if s.HasSport {
				a.Sport = SportOf(s.Sport, s.SubSport)
			}
			fallback = models.Summary{
				AvgHeartRate:  s.AvgHeartRate,
				MaxHeartRate:  s.MaxHeartRate,
				AvgSpeed:      s.AvgSpeed,
				AvgPower:      s.AvgPower,
				MaxPower:      s.MaxPower,
				ElevationGain: s.TotalAscent,
				ElevationLoss: s.TotalDescent,
				Calories:      s.TotalCalories,
			}
		}
		if s.TotalElapsedTime != nil {
			a.DurationSeconds += *s.TotalElapsedTime
			haveDuration = true
		}
		if s.TotalDistance != nil {
			sessionDistance = models.Float(deref(sessionDistance) + *s.TotalDistance)
		}
	}
	if len(sessions) == 0 || !sessions[0].HasSport {
		if sport, sub, ok := f.SportOf(); ok {
			a.Sport = SportOf(sport, sub)
		}
	}

	if a.StartTime.IsZero() {
		for _, r := range records {
			if !r.Timestamp.IsZero() {
				a.StartTime = r.Timestamp
				break
			}
		}
	}
	if a.StartTime.IsZero() {
		if id, ok := f.FileID(); ok {
			a.StartTime = id.TimeCreated
		}
	}
	if a.StartTime.IsZero() {
		return nil, apperr.New(apperr.ErrMalformedInput, op, errors.New("activity has no start time")).WithKey(path)
	}
	a.StartTime = a.StartTime.UTC()

	a.Samples = samplesOf(records, a.StartTime)
	if !haveDuration && len(a.Samples) > 0 {
		a.DurationSeconds = a.Samples[len(a.Samples)-1].Offset
	}

	a.DistanceMeters = sessionDistance
	if a.DistanceMeters == nil {
		for i := len(a.Samples) - 1; i >= 0; i-- {
			if d := a.Samples[i].Distance; d != nil {
				a.DistanceMeters = models.Float(*d)
				break
			}
		}
	}

	a.Summary = metrics.Summarize(a, fallback, p)
	return a, nil
}

// samplesOf converts records into samples offset from start. Records without
// a timestamp or before the start are dropped.
func samplesOf(records []fit.Record, start time.Time) []models.Sample {
	out := make([]models.Sample, 0, len(records))
	for _, r := range records {
		if r.Timestamp.IsZero() || r.Timestamp.Before(start) {
			continue
		}
		out = append(out, models.Sample{
			Offset:    r.Timestamp.Sub(start).Seconds(),
			HeartRate: r.HeartRate,
			Speed:     r.Speed,
			Power:     r.Power,
			Altitude:  r.Altitude,
			Distance:  r.Distance,
			Cadence:   r.Cadence,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
