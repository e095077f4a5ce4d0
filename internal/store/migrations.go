package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "contexts: one row per interaction context",
		SQL: `
CREATE TABLE contexts (
    id         TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "history: aggregated interaction history",
		SQL: `
CREATE TABLE history (
    id                      TEXT PRIMARY KEY,
    context_id              TEXT NOT NULL,
    seq                     INTEGER NOT NULL,
    kind                    TEXT NOT NULL,
    structure_kind          TEXT NOT NULL DEFAULT '',
    handle                  TEXT NOT NULL CHECK (handle <> ''),
    origin_id               TEXT NOT NULL DEFAULT '',
    navigated_relation      TEXT NOT NULL DEFAULT '',
    delta                   TEXT NOT NULL DEFAULT '',
    interest_contribution   REAL NOT NULL,
    start_date              INTEGER NOT NULL,
    end_date                INTEGER NOT NULL CHECK (end_date >= start_date),
    num_collapsed           INTEGER NOT NULL CHECK (num_collapsed >= 1),
    event_count_on_creation INTEGER NOT NULL,
    durations               TEXT NOT NULL DEFAULT '',
    score                   REAL NOT NULL,

    UNIQUE (context_id, seq),
    FOREIGN KEY (context_id) REFERENCES contexts(id) ON DELETE CASCADE
);

CREATE INDEX idx_history_handle ON history(context_id, handle);
`,
	},
	{
		Version:     3,
		Description: "quarantine: history rows that could not be decoded",
		SQL: `
CREATE TABLE quarantine (
    id         TEXT PRIMARY KEY,
    context_id TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    handle     TEXT NOT NULL,
    reason     TEXT NOT NULL,
    raw        TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_quarantine_context ON quarantine(context_id);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

// LatestSchemaVersion is the version a fully migrated database reports.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}
