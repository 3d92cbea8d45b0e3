package models

import "time"

// LedgerStatus is the processing state of a source file.
type LedgerStatus string

const (
	LedgerPending  LedgerStatus = "pending"
	LedgerImported LedgerStatus = "imported"
	LedgerFailed   LedgerStatus = "failed"
)

// Valid reports whether s is a known status.
func (s LedgerStatus) Valid() bool {
	return s == LedgerPending || s == LedgerImported || s == LedgerFailed
}

// ClassificationUnrecognized marks a decodable file that holds no activity.
const ClassificationUnrecognized = "unrecognized"

// LedgerEntry records what happened the last time a source path was seen.
type LedgerEntry struct {
	Path           string       `json:"path"`
	Fingerprint    string       `json:"fingerprint"`
	Classification string       `json:"classification,omitempty"`
	ActivityID     string       `json:"activity_id,omitempty"`
	Status         LedgerStatus `json:"status"`
	ErrorKind      string       `json:"error_kind,omitempty"`
	Error          string       `json:"error,omitempty"`
	ImportedAt     *time.Time   `json:"imported_at,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
