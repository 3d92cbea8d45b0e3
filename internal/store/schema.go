// Package store provides SQLite-backed persistence for activities, the
// import ledger, beliefs and the write audit log.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS activities (
	id              TEXT PRIMARY KEY,
	sport           TEXT NOT NULL,
	start_time      TEXT NOT NULL,
	duration_s      REAL NOT NULL,
	distance_m      REAL,
	samples         TEXT NOT NULL DEFAULT '[]',
	summary         TEXT NOT NULL DEFAULT '{}',
	summary_version INTEGER NOT NULL DEFAULT 0,
	fingerprint     TEXT NOT NULL,
	source_path     TEXT NOT NULL DEFAULT '',
	imported_at     TEXT NOT NULL,
	written_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_start ON activities(start_time, id);
CREATE INDEX IF NOT EXISTS idx_activities_sport ON activities(sport, start_time);

CREATE TABLE IF NOT EXISTS ledger (
	path           TEXT PRIMARY KEY,
	fingerprint    TEXT NOT NULL,
	classification TEXT NOT NULL DEFAULT '',
	activity_id    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	error_kind     TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	imported_at    TEXT,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_activity ON ledger(activity_id);

CREATE TABLE IF NOT EXISTS beliefs (
	id               TEXT PRIMARY KEY,
	text             TEXT NOT NULL,
	norm_text        TEXT NOT NULL,
	category         TEXT NOT NULL,
	stability        TEXT NOT NULL,
	confidence       REAL NOT NULL,
	embedding        TEXT NOT NULL DEFAULT '[]',
	embedding_model  TEXT NOT NULL DEFAULT '',
	confirm_count    INTEGER NOT NULL DEFAULT 0,
	contradict_count INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	last_touched     TEXT NOT NULL,
	archived_at      TEXT,
	superseded_by    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_beliefs_status ON beliefs(status, category);
CREATE INDEX IF NOT EXISTS idx_beliefs_norm ON beliefs(norm_text, category, status);

CREATE TABLE IF NOT EXISTS write_audit (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      TEXT NOT NULL,
	entity  TEXT NOT NULL,
	key     TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail  TEXT NOT NULL DEFAULT ''
);
`

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema. Every
// transaction takes the write lock up front (_txlock=immediate), so
// read-modify-write sequences never interleave.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// columnAdds are columns introduced after the first release, added to
// databases created before them.
var columnAdds = []struct{ table, column, def string }{
	{"beliefs", "superseded_by", `TEXT NOT NULL DEFAULT ''`},
}

func migrate(conn *sql.DB) error {
	for _, c := range columnAdds {
		var n int
		err := conn.QueryRow(`SELECT count(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := conn.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, c.table, c.column, c.def)); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// timeLayout is fixed width so that text comparison orders instants.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
