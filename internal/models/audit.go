package models

import "time"

// WriteOutcome is the result of a last-writer-wins activity write.
type WriteOutcome string

const (
	OutcomeInserted  WriteOutcome = "inserted"
	OutcomeReplaced  WriteOutcome = "replaced"
	OutcomeDiscarded WriteOutcome = "discarded"
	OutcomeUnchanged WriteOutcome = "unchanged"
)

// AuditEntry records a write conflict and how it was resolved.
type AuditEntry struct {
	ID      int64        `json:"id"`
	At      time.Time    `json:"at"`
	Entity  string       `json:"entity"`
	Key     string       `json:"key"`
	Outcome WriteOutcome `json:"outcome"`
	Detail  string       `json:"detail,omitempty"`
}
