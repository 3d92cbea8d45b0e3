package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/models"
)

const beliefColumns = `id, text, category, stability, confidence, embedding, embedding_model,
	confirm_count, contradict_count, status, created_at, last_touched, archived_at, superseded_by`

// InsertOrTouchBelief inserts b unless an active belief with the same
// normalised text and category exists, in which case that belief's
// last_touched is refreshed and it is returned instead. The boolean reports
// whether b was inserted.
func (db *DB) InsertOrTouchBelief(b *models.Belief, normText string) (*models.Belief, bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRow(`SELECT `+beliefColumns+` FROM beliefs
		WHERE norm_text = ? AND category = ? AND status = 'active'
		ORDER BY created_at LIMIT 1`, normText, string(b.Category))
	existing, err := scanBelief(row)
	switch {
	case err == nil:
		existing.LastTouched = b.LastTouched
		if _, err := tx.Exec(`UPDATE beliefs SET last_touched = ? WHERE id = ?`,
			formatTime(existing.LastTouched), existing.ID); err != nil {
			return nil, false, fmt.Errorf("store: touch belief: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("store: commit: %w", err)
		}
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, err
	}

	emb, err := json.Marshal(nonNilEmbedding(b.Embedding))
	if err != nil {
		return nil, false, fmt.Errorf("store: encode embedding: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO beliefs (id, text, norm_text, category, stability, confidence, embedding,
			embedding_model, confirm_count, contradict_count, status, created_at, last_touched,
			archived_at, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Text, normText, string(b.Category), string(b.Stability), b.Confidence, string(emb),
		b.EmbeddingModel, b.ConfirmCount, b.ContradictCount, string(b.Status),
		formatTime(b.CreatedAt), formatTime(b.LastTouched), nullTime(b.ArchivedAt), b.SupersededBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, apperr.New(apperr.ErrAlreadyExists, "store.InsertBelief", err).WithKey(b.ID)
		}
		return nil, false, fmt.Errorf("store: insert belief: %w", err)
	}
	if b.Status == models.BeliefActive {
		if err := ftsUpsertBelief(tx, b.ID, b.Text); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("store: commit: %w", err)
	}
	return b, true, nil
}

// GetBelief returns the belief with id or a NotFound error.
func (db *DB) GetBelief(id string) (*models.Belief, error) {
	b, err := scanBelief(db.conn.QueryRow(`SELECT `+beliefColumns+` FROM beliefs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.GetBelief", id)
	}
	return b, err
}

// MutateBelief loads the belief, applies fn and writes the mutable fields
// back, all inside one transaction. fn must not change the text; use
// ReviseBelief for that.
func (db *DB) MutateBelief(id string, fn func(*models.Belief) error) (*models.Belief, error) {
	return db.mutateBelief("store.MutateBelief", id, "", fn)
}

// ReviseBelief is MutateBelief for changes that rewrite the text. normText
// is the normalised form of the new text; another active belief of the same
// category with that form is an AlreadyExists error.
func (db *DB) ReviseBelief(id, normText string, fn func(*models.Belief) error) (*models.Belief, error) {
	if normText == "" {
		return nil, apperr.New(apperr.ErrInvalidArgument, "store.ReviseBelief", errors.New("normalised text is empty")).WithKey(id)
	}
	return db.mutateBelief("store.ReviseBelief", id, normText, fn)
}

func (db *DB) mutateBelief(op, id, normText string, fn func(*models.Belief) error) (*models.Belief, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	b, err := scanBelief(tx.QueryRow(`SELECT `+beliefColumns+` FROM beliefs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, id)
	}
	if err != nil {
		return nil, err
	}
	text := b.Text
	if err := fn(b); err != nil {
		return nil, err
	}
	if normText == "" && b.Text != text {
		return nil, apperr.New(apperr.ErrInvalidArgument, op, errors.New("text changed without normalised form")).WithKey(id)
	}

	if normText != "" && b.Status == models.BeliefActive {
		var other string
		err := tx.QueryRow(`SELECT id FROM beliefs
			WHERE norm_text = ? AND category = ? AND status = 'active' AND id <> ?
			LIMIT 1`, normText, string(b.Category), id).Scan(&other)
		switch {
		case err == nil:
			return nil, apperr.New(apperr.ErrAlreadyExists, op, fmt.Errorf("duplicates active belief %s", other)).WithKey(id)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("store: check duplicate: %w", err)
		}
	}

	emb, err := json.Marshal(nonNilEmbedding(b.Embedding))
	if err != nil {
		return nil, fmt.Errorf("store: encode embedding: %w", err)
	}
	_, err = tx.Exec(`
		UPDATE beliefs SET
			text             = ?,
			norm_text        = CASE WHEN ? = '' THEN norm_text ELSE ? END,
			confidence       = ?,
			embedding        = ?,
			embedding_model  = ?,
			confirm_count    = ?,
			contradict_count = ?,
			status           = ?,
			last_touched     = ?,
			archived_at      = ?,
			superseded_by    = ?
		WHERE id = ?
	`, b.Text, normText, normText, b.Confidence, string(emb), b.EmbeddingModel,
		b.ConfirmCount, b.ContradictCount, string(b.Status),
		formatTime(b.LastTouched), nullTime(b.ArchivedAt), b.SupersededBy, b.ID)
	if err != nil {
		return nil, fmt.Errorf("store: update belief: %w", err)
	}
	if b.Status == models.BeliefActive {
		if err := ftsUpsertBelief(tx, b.ID, b.Text); err != nil {
			return nil, err
		}
	} else {
		ftsDeleteBelief(tx, b.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return b, nil
}

// ActiveBeliefs returns every active belief including its embedding.
func (db *DB) ActiveBeliefs() ([]models.Belief, error) {
	out, _, err := db.ListBeliefs(BeliefFilter{Status: models.BeliefActive})
	return out, err
}

// ListBeliefs returns beliefs ordered by last_touched (newest first), then
// id, together with the total number of matches.
func (db *DB) ListBeliefs(f BeliefFilter) ([]models.Belief, int, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	cond := ""
	if len(where) > 0 {
		cond = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM beliefs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count beliefs: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.Query(`SELECT `+beliefColumns+` FROM beliefs`+cond+
		` ORDER BY last_touched DESC, id ASC LIMIT ? OFFSET ?`, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list beliefs: %w", err)
	}
	defer rows.Close()

	var out []models.Belief
	for rows.Next() {
		b, err := scanBelief(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

// ArchiveStaleBeliefs archives active beliefs with confidence below floor
// that were last touched before touchedBefore. It returns the archived ids.
func (db *DB) ArchiveStaleBeliefs(floor float64, touchedBefore, now time.Time) ([]string, error) {
	return db.archiveWhere(now, `confidence < ? AND last_touched < ?`, floor, formatTime(touchedBefore))
}

// ArchiveSessionBeliefs archives every active session-scoped belief.
func (db *DB) ArchiveSessionBeliefs(now time.Time) ([]string, error) {
	return db.archiveWhere(now, `stability = ?`, string(models.StabilitySession))
}

func (db *DB) archiveWhere(now time.Time, cond string, args ...any) ([]string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.Query(`SELECT id FROM beliefs WHERE status = 'active' AND `+cond+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select archivable: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stamp := formatTime(now)
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE beliefs SET status = 'archived', archived_at = ? WHERE id = ?`, stamp, id); err != nil {
			return nil, fmt.Errorf("store: archive belief: %w", err)
		}
		ftsDeleteBelief(tx, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return ids, nil
}

func scanBelief(s scanner) (*models.Belief, error) {
	var (
		b                           models.Belief
		category, stability, status string
		emb, createdAt, lastTouched string
		archivedAt                  sql.NullString
	)
	if err := s.Scan(&b.ID, &b.Text, &category, &stability, &b.Confidence, &emb, &b.EmbeddingModel,
		&b.ConfirmCount, &b.ContradictCount, &status, &createdAt, &lastTouched, &archivedAt, &b.SupersededBy); err != nil {
		return nil, err
	}
	b.Category = models.Category(category)
	b.Stability = models.Stability(stability)
	b.Status = models.BeliefStatus(status)
	if err := json.Unmarshal([]byte(emb), &b.Embedding); err != nil {
		return nil, fmt.Errorf("store: decode embedding of %s: %w", b.ID, err)
	}
	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.LastTouched, err = parseTime(lastTouched); err != nil {
		return nil, err
	}
	if b.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func nonNilEmbedding(v []float32) []float32 {
	if v == nil {
		return []float32{}
	}
	return v
}
