// Package checkpoint persists per-cell field maps and the sweep's
// last-completed marker. The store is the crash-safety boundary: a cell's
// samples are appended and committed before the marker advances, so a crash
// mid-cell resumes at the incomplete cell (at-least-once, never skipping).
package checkpoint

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/accelmap/rfqmap/internal/fieldmap"
)

// Store is the SQLite-backed checkpoint store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sweep_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cell_samples (
	cell INTEGER NOT NULL,
	seq  INTEGER NOT NULL,
	x  REAL NOT NULL, y  REAL NOT NULL, z  REAL NOT NULL,
	ex REAL NOT NULL, ey REAL NOT NULL, ez REAL NOT NULL,
	bx REAL NOT NULL, by REAL NOT NULL, bz REAL NOT NULL,
	PRIMARY KEY (cell, seq)
);
`

const lastCompletedKey = "last_completed_cell"

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// One writer; the status command may read concurrently.
	db.SetMaxOpenConns(1)

	// Checkpoint writes must be durable before the next cell begins.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure checkpoint db: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}
	return &Store{db: db}, nil
}

// LastCompleted returns the marker, 0 when the store is fresh.
func (s *Store) LastCompleted() (int, error) {
	v, err := s.Meta(lastCompletedKey)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s marker %q: %w", lastCompletedKey, v, err)
	}
	return n, nil
}

// SetLastCompleted advances the marker. The marker is never rolled back.
func (s *Store) SetLastCompleted(cell int) error {
	return s.SetMeta(lastCompletedKey, strconv.Itoa(cell))
}

// Meta reads one metadata value, empty string when absent.
func (s *Store) Meta(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM sweep_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return v, nil
}

// SetMeta upserts one metadata value atomically.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO sweep_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// AppendCellMap stores one cell's samples in a single transaction. A re-run
// of the same cell (crash before the marker advanced) replaces the previous
// partial rows.
func (s *Store) AppendCellMap(m fieldmap.CellMap) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cell_samples WHERE cell = ?`, m.Cell); err != nil {
		return fmt.Errorf("clear cell %d: %w", m.Cell, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cell_samples (cell, seq, x, y, z, ex, ey, ez, bx, by, bz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, smp := range m.Samples {
		_, err := stmt.Exec(m.Cell, i, smp.X, smp.Y, smp.Z, smp.Ex, smp.Ey, smp.Ez, smp.Bx, smp.By, smp.Bz)
		if err != nil {
			return fmt.Errorf("insert cell %d sample %d: %w", m.Cell, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cell %d: %w", m.Cell, err)
	}
	return nil
}

// Cells lists the stored cell indices in ascending order.
func (s *Store) Cells() ([]int, error) {
	rows, err := s.db.Query(`SELECT DISTINCT cell FROM cell_samples ORDER BY cell`)
	if err != nil {
		return nil, fmt.Errorf("list cells: %w", err)
	}
	defer rows.Close()

	var cells []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// CellMap loads one cell's samples in append order.
func (s *Store) CellMap(cell int) (fieldmap.CellMap, error) {
	rows, err := s.db.Query(`
		SELECT x, y, z, ex, ey, ez, bx, by, bz
		FROM cell_samples WHERE cell = ? ORDER BY seq`, cell)
	if err != nil {
		return fieldmap.CellMap{}, fmt.Errorf("load cell %d: %w", cell, err)
	}
	defer rows.Close()

	m := fieldmap.CellMap{Cell: cell}
	for rows.Next() {
		var smp fieldmap.Sample
		err := rows.Scan(&smp.X, &smp.Y, &smp.Z, &smp.Ex, &smp.Ey, &smp.Ez, &smp.Bx, &smp.By, &smp.Bz)
		if err != nil {
			return fieldmap.CellMap{}, fmt.Errorf("scan cell %d sample: %w", cell, err)
		}
		m.Samples = append(m.Samples, smp)
	}
	return m, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
