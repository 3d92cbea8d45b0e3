package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/models"
)

const activityColumns = `id, sport, start_time, duration_s, distance_m, summary, summary_version,
	fingerprint, source_path, imported_at`

// PutActivity inserts or replaces a keyed by id. The write with the later
// writtenAt wins; an older write is discarded and audited.
func (db *DB) PutActivity(a *models.Activity, writtenAt time.Time) (models.WriteOutcome, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	out, err := db.putActivityTx(tx, a, writtenAt)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit: %w", err)
	}
	return out, nil
}

func (db *DB) putActivityTx(tx *sql.Tx, a *models.Activity, writtenAt time.Time) (models.WriteOutcome, error) {
	if a.ID == "" {
		return "", apperr.New(apperr.ErrInvalidArgument, "store.PutActivity", errors.New("empty activity id"))
	}
	if !a.Sport.Valid() {
		return "", apperr.New(apperr.ErrInvalidArgument, "store.PutActivity", fmt.Errorf("unknown sport %q", a.Sport)).WithKey(a.ID)
	}

	var prev string
	err := tx.QueryRow(`SELECT written_at FROM activities WHERE id = ?`, a.ID).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		prev = ""
	case err != nil:
		return "", fmt.Errorf("store: read activity stamp: %w", err)
	}

	stamp := formatTime(writtenAt)
	outcome := models.OutcomeInserted
	if prev != "" {
		if stamp < prev {
			detail := fmt.Sprintf("write stamped %s older than stored %s", stamp, prev)
			if err := db.auditTx(tx, "activity", a.ID, models.OutcomeDiscarded, detail); err != nil {
				return "", err
			}
			return models.OutcomeDiscarded, nil
		}
		outcome = models.OutcomeReplaced
	}

	samples, err := json.Marshal(nonNilSamples(a.Samples))
	if err != nil {
		return "", fmt.Errorf("store: encode samples: %w", err)
	}
	summary, err := json.Marshal(a.Summary)
	if err != nil {
		return "", fmt.Errorf("store: encode summary: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO activities (id, sport, start_time, duration_s, distance_m, samples, summary,
			summary_version, fingerprint, source_path, imported_at, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sport           = excluded.sport,
			start_time      = excluded.start_time,
			duration_s      = excluded.duration_s,
			distance_m      = excluded.distance_m,
			samples         = excluded.samples,
			summary         = excluded.summary,
			summary_version = excluded.summary_version,
			fingerprint     = excluded.fingerprint,
			source_path     = excluded.source_path,
			imported_at     = excluded.imported_at,
			written_at      = excluded.written_at
	`, a.ID, string(a.Sport), formatTime(a.StartTime), a.DurationSeconds, nullFloat(a.DistanceMeters),
		string(samples), string(summary), a.SummaryVersion, a.Fingerprint, a.SourcePath,
		formatTime(a.ImportedAt), stamp)
	if err != nil {
		return "", fmt.Errorf("store: upsert activity: %w", err)
	}
	if outcome == models.OutcomeReplaced {
		if err := db.auditTx(tx, "activity", a.ID, outcome, "replaced by write stamped "+stamp); err != nil {
			return "", err
		}
	}
	return outcome, nil
}

// GetActivity returns the activity with its samples.
func (db *DB) GetActivity(id string) (*models.Activity, error) {
	row := db.conn.QueryRow(`SELECT `+activityColumns+`, samples FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.GetActivity", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// QueryActivities returns the activities matching f ordered by start time,
// then id.
func (db *DB) QueryActivities(f ActivityFilter) ([]models.Activity, error) {
	cols := activityColumns
	if f.WithSamples {
		cols += ", samples"
	}
	var where []string
	var args []any
	if !f.From.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time <= ?")
		args = append(args, formatTime(f.To))
	}
	if f.Sport != "" {
		where = append(where, "sport = ?")
		args = append(args, string(f.Sport))
	}
	q := `SELECT ` + cols + ` FROM activities`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_time ASC, id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query activities: %w", err)
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows, f.WithSamples)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateSummary replaces the stored summary of an activity.
func (db *DB) UpdateSummary(id string, s models.Summary, version int) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: encode summary: %w", err)
	}
	res, err := db.conn.Exec(`UPDATE activities SET summary = ?, summary_version = ? WHERE id = ?`, string(raw), version, id)
	if err != nil {
		return fmt.Errorf("store: update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("store.UpdateSummary", id)
	}
	return nil
}

// StaleSummaries returns the ids of activities whose summary was computed
// with a formula version other than version.
func (db *DB) StaleSummaries(version int) ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM activities WHERE summary_version != ? ORDER BY start_time, id`, version)
	if err != nil {
		return nil, fmt.Errorf("store: stale summaries: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanActivity(s scanner, withSamples bool) (*models.Activity, error) {
	var (
		a                      models.Activity
		sport, start, imported string
		summary, samples       string
		distance               sql.NullFloat64
	)
	dest := []any{&a.ID, &sport, &start, &a.DurationSeconds, &distance, &summary, &a.SummaryVersion,
		&a.Fingerprint, &a.SourcePath, &imported}
	if withSamples {
		dest = append(dest, &samples)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	a.Sport = models.Sport(sport)
	var err error
	if a.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if a.ImportedAt, err = parseTime(imported); err != nil {
		return nil, err
	}
	if distance.Valid {
		a.DistanceMeters = models.Float(distance.Float64)
	}
	if err := json.Unmarshal([]byte(summary), &a.Summary); err != nil {
		return nil, fmt.Errorf("store: decode summary of %s: %w", a.ID, err)
	}
	if withSamples {
		if err := json.Unmarshal([]byte(samples), &a.Samples); err != nil {
			return nil, fmt.Errorf("store: decode samples of %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func nonNilSamples(s []models.Sample) []models.Sample {
	if s == nil {
		return []models.Sample{}
	}
	return s
}
