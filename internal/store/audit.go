package store

import (
	"database/sql"
	"fmt"

	"github.com/starford/cadence/internal/models"
)

func (db *DB) auditTx(tx *sql.Tx, entity, key string, outcome models.WriteOutcome, detail string) error {
	_, err := tx.Exec(`INSERT INTO write_audit (at, entity, key, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		formatTime(db.now()), entity, key, string(outcome), detail)
	if err != nil {
		return fmt.Errorf("store: audit: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit entries, newest first.
func (db *DB) ListAudit(limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(`SELECT id, at, entity, key, outcome, detail FROM write_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list audit: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e           models.AuditEntry
			at, outcome string
		)
		if err := rows.Scan(&e.ID, &at, &e.Entity, &e.Key, &outcome, &e.Detail); err != nil {
			return nil, err
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		e.Outcome = models.WriteOutcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}
