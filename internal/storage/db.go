package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS properties (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  city TEXT,
  state TEXT,
  units INTEGER,
  updatedAt TEXT,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_properties_name ON properties(name);

CREATE TABLE IF NOT EXISTS extraction_runs (
  id TEXT PRIMARY KEY,
  trigger TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'running',
  countsJson TEXT NOT NULL DEFAULT '{}',
  startedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  finishedAt TEXT
);

CREATE TABLE IF NOT EXISTS extracted_values (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  property TEXT NOT NULL,
  sourceFile TEXT NOT NULL,
  groupName TEXT,
  trigger TEXT NOT NULL,
  field TEXT NOT NULL,
  value TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(runId) REFERENCES extraction_runs(id)
);
CREATE INDEX IF NOT EXISTS idx_values_property ON extracted_values(property);
CREATE INDEX IF NOT EXISTS idx_values_run ON extracted_values(runId);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertProperties(properties []internal.PropertyRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO properties (id, name, city, state, units, updatedAt, raw_json, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  city=excluded.city,
  state=excluded.state,
  units=excluded.units,
  updatedAt=excluded.updatedAt,
  raw_json=excluded.raw_json,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range properties {
		if _, err := stmt.Exec(p.ID, p.Name, p.City, p.State, p.Units, p.UpdatedAt, p.RawJSON); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListPropertyNames() ([]string, error) {
	rows, err := d.conn.Query(`SELECT name FROM properties ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (d *DB) BeginRun(runID, trigger string) error {
	_, err := d.conn.Exec(`INSERT INTO extraction_runs (id, trigger) VALUES (?, ?)`, runID, trigger)
	return err
}

func (d *DB) FinishRun(runID, status string, counts map[string]int) error {
	countsJSON, _ := json.Marshal(counts)
	result, err := d.conn.Exec(`
UPDATE extraction_runs SET status = ?, countsJson = ?, finishedAt = CURRENT_TIMESTAMP WHERE id = ?
`, status, string(countsJSON), runID)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("unknown run: %s", runID)
	}
	return nil
}

// InsertValues writes one group's extracted values in a single
// transaction so a partial failure leaves nothing behind.
func (d *DB) InsertValues(values []internal.ExtractedValue) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO extracted_values (runId, property, sourceFile, groupName, trigger, field, value)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.Exec(v.RunID, v.Property, v.SourceFile, v.GroupName, v.Trigger, v.Field, v.Value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PriorExtractions reports earlier non-pipeline writes for any of the
// given property names. Informational only; the conflict phase surfaces
// these without blocking.
func (d *DB) PriorExtractions(properties []string) ([]internal.PriorExtraction, error) {
	if len(properties) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(properties))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(properties))
	for i, p := range properties {
		args[i] = p
	}

	rows, err := d.conn.Query(`
SELECT property, runId, trigger, COUNT(*), MAX(createdAt)
FROM extracted_values
WHERE property IN (`+placeholders+`) AND trigger != ?
GROUP BY property, runId, trigger
ORDER BY property, runId
`, append(args, internal.TriggerPipeline)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PriorExtraction
	for rows.Next() {
		var p internal.PriorExtraction
		var lastWrite sql.NullString
		if err := rows.Scan(&p.Property, &p.RunID, &p.Trigger, &p.ValueCount, &lastWrite); err != nil {
			return nil, err
		}
		if lastWrite.Valid {
			p.LastWrite = lastWrite.String
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountValuesByGroup tallies stored pipeline values per group for the
// validation phase.
func (d *DB) CountValuesByGroup(runID string) (map[string]int, error) {
	rows, err := d.conn.Query(`
SELECT COALESCE(groupName, ''), COUNT(*)
FROM extracted_values WHERE runId = ?
GROUP BY groupName
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var group string
		var count int
		if err := rows.Scan(&group, &count); err != nil {
			return nil, err
		}
		out[group] = count
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
