package models

import (
	"fmt"
	"time"
)

// Sport is the closed set of activity classifications.
type Sport string

const (
	SportRunning  Sport = "running"
	SportCycling  Sport = "cycling"
	SportSwimming Sport = "swimming"
	SportWalking  Sport = "walking"
	SportHiking   Sport = "hiking"
	SportStrength Sport = "strength"
	SportRowing   Sport = "rowing"
	SportOther    Sport = "other"
)

// Sports lists every valid Sport in display order.
var Sports = []Sport{
	SportRunning, SportCycling, SportSwimming, SportWalking,
	SportHiking, SportStrength, SportRowing, SportOther,
}

// Valid reports whether s is one of the known sports.
func (s Sport) Valid() bool {
	switch s {
	case SportRunning, SportCycling, SportSwimming, SportWalking,
		SportHiking, SportStrength, SportRowing, SportOther:
		return true
	}
	return false
}

// OnFoot reports whether pace (time per distance) is the natural intensity
// unit for s.
func (s Sport) OnFoot() bool {
	return s == SportRunning || s == SportWalking || s == SportHiking
}

// ParseSport converts a string into a Sport.
func ParseSport(v string) (Sport, error) {
	s := Sport(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown sport %q", v)
	}
	return s, nil
}

// Sample is one point of an activity time series. Every measurement is
// optional; nil means the sensor did not report a value.
type Sample struct {
	Offset    float64  `json:"offset_s"`
	HeartRate *float64 `json:"hr,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Power     *float64 `json:"power,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	Cadence   *float64 `json:"cadence,omitempty"`
}

// Summary holds the derived per-activity fields.
type Summary struct {
	AvgHeartRate  *float64 `json:"avg_hr,omitempty"`
	MaxHeartRate  *float64 `json:"max_hr,omitempty"`
	MinHeartRate  *float64 `json:"min_hr,omitempty"`
	AvgSpeed      *float64 `json:"avg_speed,omitempty"`
	AvgPace       *float64 `json:"avg_pace_s_per_km,omitempty"`
	BestPace      *float64 `json:"best_pace_s_per_km,omitempty"`
	AvgPower      *float64 `json:"avg_power_w,omitempty"`
	MaxPower      *float64 `json:"max_power_w,omitempty"`
	ElevationGain *float64 `json:"elevation_gain_m,omitempty"`
	ElevationLoss *float64 `json:"elevation_loss_m,omitempty"`
	Calories      *float64 `json:"calories,omitempty"`
}

// Activity is a decoded recording. ID is derived from the file content.
type Activity struct {
	ID              string    `json:"id"`
	Sport           Sport     `json:"sport"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds float64   `json:"duration_s"`
	DistanceMeters  *float64  `json:"distance_m,omitempty"`
	Samples         []Sample  `json:"samples,omitempty"`
	Summary         Summary   `json:"summary"`
	SummaryVersion  int       `json:"summary_version"`
	Fingerprint     string    `json:"fingerprint"`
	SourcePath      string    `json:"source_path"`
	ImportedAt      time.Time `json:"imported_at"`
}

// EndTime returns the start time plus the duration.
func (a *Activity) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationSeconds * float64(time.Second)))
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
