package store

import (
	"time"

	"github.com/starford/cadence/internal/models"
)

// ActivityFilter selects activities by start time and sport. Zero bounds are
// open; both bounds are inclusive.
type ActivityFilter struct {
	From        time.Time
	To          time.Time
	Sport       models.Sport
	WithSamples bool
	Limit       int
}

// LedgerFilter selects ledger entries. An empty status matches all.
type LedgerFilter struct {
	Status models.LedgerStatus
	Limit  int
	Offset int
}

// BeliefFilter selects beliefs. An empty field matches all.
type BeliefFilter struct {
	Status   models.BeliefStatus
	Category models.Category
	Limit    int
	Offset   int
}

// ImportCommit is the persisted result of importing one file. Activity is nil
// for failed and unrecognized files.
type ImportCommit struct {
	Entry     models.LedgerEntry
	Activity  *models.Activity
	WrittenAt time.Time
}

// ActivityStore is the durable collection of decoded activities.
type ActivityStore interface {
	PutActivity(a *models.Activity, writtenAt time.Time) (models.WriteOutcome, error)
	GetActivity(id string) (*models.Activity, error)
	QueryActivities(f ActivityFilter) ([]models.Activity, error)
	UpdateSummary(id string, s models.Summary, version int) error
	StaleSummaries(version int) ([]string, error)
}

// Ledger is the content-addressed manifest of observed source files.
type Ledger interface {
	GetLedger(path string) (*models.LedgerEntry, error)
	RecordLedger(e models.LedgerEntry) error
	ListLedger(f LedgerFilter) ([]models.LedgerEntry, int, error)
	CommitImport(c ImportCommit) (models.WriteOutcome, error)
}

// BeliefRepo persists beliefs.
type BeliefRepo interface {
	InsertOrTouchBelief(b *models.Belief, normText string) (*models.Belief, bool, error)
	GetBelief(id string) (*models.Belief, error)
	MutateBelief(id string, fn func(*models.Belief) error) (*models.Belief, error)
	ReviseBelief(id, normText string, fn func(*models.Belief) error) (*models.Belief, error)
	ActiveBeliefs() ([]models.Belief, error)
	ListBeliefs(f BeliefFilter) ([]models.Belief, int, error)
	ArchiveStaleBeliefs(floor float64, touchedBefore, now time.Time) ([]string, error)
	ArchiveSessionBeliefs(now time.Time) ([]string, error)
}

// AuditLog exposes recorded write conflicts.
type AuditLog interface {
	ListAudit(limit int) ([]models.AuditEntry, error)
}

var (
	_ ActivityStore = (*DB)(nil)
	_ Ledger        = (*DB)(nil)
	_ BeliefRepo    = (*DB)(nil)
	_ AuditLog      = (*DB)(nil)
)
