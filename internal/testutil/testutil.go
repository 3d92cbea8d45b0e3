// Package testutil provides shared test helpers for setting up source
// directories, databases and FIT fixtures.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/cadence/internal/fit"
	"github.com/starford/cadence/internal/store"
	"github.com/starford/cadence/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "cadence-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSource creates a temporary source directory with a storage.Provider.
func TestSource(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	src, err := storage.NewFS(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	return dir, src
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Workout describes a synthetic recording. Zero sensor values are left out
// of the records.
type Workout struct {
	Start     time.Time
	Duration  time.Duration
	Sport     uint8
	SubSport  uint8
	Interval  time.Duration // default 10s
	HeartRate float64
	Speed     float64 // m/s
	Power     float64
	Altitude  func(i int) float64
	Calories  float64
}

// ActivityFIT encodes w as a complete activity file.
func ActivityFIT(w Workout) []byte {
	if w.Interval <= 0 {
		w.Interval = 10 * time.Second
	}
	e := fit.NewEncoder()
	e.WriteFileID(fit.FileID{Type: fit.FileTypeActivity, Manufacturer: 1, TimeCreated: w.Start})
	e.WriteSport(w.Sport, w.SubSport)

	n := int(w.Duration / w.Interval)
	var dist float64
	for i := 0; i < n; i++ {
		r := fit.Record{Timestamp: w.Start.Add(time.Duration(i) * w.Interval)}
		if w.HeartRate > 0 {
			r.HeartRate = ptr(w.HeartRate)
		}
		if w.Speed > 0 {
			r.Speed = ptr(w.Speed)
			r.Distance = ptr(dist)
			dist += w.Speed * w.Interval.Seconds()
		}
		if w.Power > 0 {
			r.Power = ptr(w.Power)
		}
		if w.Altitude != nil {
			r.Altitude = ptr(w.Altitude(i))
		}
		e.WriteRecord(r)
	}

	s := fit.Session{
		Timestamp:        w.Start.Add(w.Duration),
		StartTime:        w.Start,
		Sport:            w.Sport,
		HasSport:         true,
		SubSport:         w.SubSport,
		TotalElapsedTime: ptr(w.Duration.Seconds()),
		TotalTimerTime:   ptr(w.Duration.Seconds()),
	}
	if w.Speed > 0 {
		s.TotalDistance = ptr(w.Speed * w.Duration.Seconds())
	}
	if w.Calories > 0 {
		s.TotalCalories = ptr(w.Calories)
	}
	e.WriteSession(s)
	return e.Bytes()
}

// Run returns a steady run of the given length starting at start.
func Run(start time.Time, d time.Duration) []byte {
	return ActivityFIT(Workout{Start: start, Duration: d, Sport: fit.SportRunning, HeartRate: 150, Speed: 3})
}

// SettingsFIT encodes a valid FIT file that holds no activity.
func SettingsFIT() []byte {
	e := fit.NewEncoder()
	e.WriteFileID(fit.FileID{Type: 2, Manufacturer: 1})
	e.Message(fit.MesgUserProfile, fit.U8(1, 30))
	return e.Bytes()
}

// Corrupt returns a copy of data with one body byte flipped, which breaks
// the file CRC.
func Corrupt(data []byte) []byte {
	out := append([]byte(nil), data...)
	out[len(out)/2] ^= 0xFF
	return out
}

func ptr(v float64) *float64 { return &v }
