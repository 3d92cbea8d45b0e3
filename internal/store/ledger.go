package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/cadence/internal/apperr"
	"github.com/starford/cadence/internal/models"
)

const ledgerColumns = `path, fingerprint, classification, activity_id, status, error_kind, error, imported_at, updated_at`

// GetLedger returns the entry for path or a NotFound error.
func (db *DB) GetLedger(path string) (*models.LedgerEntry, error) {
	row := db.conn.QueryRow(`SELECT `+ledgerColumns+` FROM ledger WHERE path = ?`, path)
	e, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("store.GetLedger", path)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// RecordLedger inserts or updates the entry for e.Path.
func (db *DB) RecordLedger(e models.LedgerEntry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertLedgerTx(tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertLedgerTx(tx *sql.Tx, e models.LedgerEntry) error {
	if e.Path == "" {
		return apperr.New(apperr.ErrInvalidArgument, "store.RecordLedger", errors.New("empty path"))
	}
	if !e.Status.Valid() {
		return apperr.New(apperr.ErrInvalidArgument, "store.RecordLedger", fmt.Errorf("unknown status %q", e.Status)).WithKey(e.Path)
	}
	_, err := tx.Exec(`
		INSERT INTO ledger (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint    = excluded.fingerprint,
			classification = excluded.classification,
			activity_id    = excluded.activity_id,
			status         = excluded.status,
			error_kind     = excluded.error_kind,
			error          = excluded.error,
			imported_at    = COALESCE(excluded.imported_at, ledger.imported_at),
			updated_at     = excluded.updated_at
	`, e.Path, e.Fingerprint, e.Classification, e.ActivityID, string(e.Status), e.ErrorKind, e.Error,
		nullTime(e.ImportedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: upsert ledger: %w", err)
	}
	return nil
}

// ListLedger returns entries ordered by path together with the total number
// of matching entries.
func (db *DB) ListLedger(f LedgerFilter) ([]models.LedgerEntry, int, error) {
	where := ""
	var args []any
	if f.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, string(f.Status))
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM ledger`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count ledger: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.Query(`SELECT `+ledgerColumns+` FROM ledger`+where+` ORDER BY path LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list ledger: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// CommitImport atomically stores the decoded activity (if any) and the ledger
// entry for its path. When the path previously pointed at another activity
// that no other entry references, that activity is removed.
func (db *DB) CommitImport(c ImportCommit) (models.WriteOutcome, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var prevID string
	err = tx.QueryRow(`SELECT activity_id FROM ledger WHERE path = ?`, c.Entry.Path).Scan(&prevID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: read ledger: %w", err)
	}

	outcome := models.OutcomeUnchanged
	if c.Activity != nil {
		if outcome, err = db.putActivityTx(tx, c.Activity, c.WrittenAt); err != nil {
			return "", err
		}
		c.Entry.ActivityID = c.Activity.ID
	}
	if err := upsertLedgerTx(tx, c.Entry); err != nil {
		return "", err
	}

	if prevID != "" && prevID != c.Entry.ActivityID {
		var refs int
		if err := tx.QueryRow(`SELECT count(*) FROM ledger WHERE activity_id = ?`, prevID).Scan(&refs); err != nil {
			return "", fmt.Errorf("store: count ledger refs: %w", err)
		}
		if refs == 0 {
			if _, err := tx.Exec(`DELETE FROM activities WHERE id = ?`, prevID); err != nil {
				return "", fmt.Errorf("store: delete superseded activity: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit: %w", err)
	}
	return outcome, nil
}

func scanLedger(s scanner) (*models.LedgerEntry, error) {
	var (
		e                 models.LedgerEntry
		status, updatedAt string
		importedAt        sql.NullString
	)
	if err := s.Scan(&e.Path, &e.Fingerprint, &e.Classification, &e.ActivityID, &status,
		&e.ErrorKind, &e.Error, &importedAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Status = models.LedgerStatus(status)
	var err error
	if e.ImportedAt, err = parseNullTime(importedAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
