// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists batch outcomes in a SQLite results index so
// extracted conditions can be queried across runs without re-reading the
// per-file artifacts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/battery-extract/pkg/types"
)

const dbFile = "battery.db"

// Store manages the results index SQLite database.
type Store struct {
	db       *sql.DB
	indexDir string
}

// NewStore opens or creates the results database at indexDir/battery.db,
// creating the schema if needed.
func NewStore(indexDir string) (*Store, error) {
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(indexDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, indexDir: indexDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			verdict TEXT NOT NULL,
			doi TEXT,
			status TEXT NOT NULL,
			error_kind TEXT,
			record_count INTEGER NOT NULL,
			indexed_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			document_path TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
			doi TEXT,
			battery_model TEXT,
			dc_capacity TEXT,
			lower_voltage_limit TEXT,
			upper_voltage_limit TEXT,
			cathode_material TEXT,
			anode_material TEXT,
			temperature TEXT,
			charge_rate TEXT,
			discharge_rate TEXT,
			capacity_retention TEXT,
			cycle_count TEXT,
			binder TEXT,
			manufacturing_process TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_document ON records(document_path)`,
		`CREATE INDEX IF NOT EXISTS idx_records_doi ON records(doi)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_verdict ON documents(verdict)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// IndexDocument upserts one finished document and its records. Re-runs
// over the same file replace the previous rows, keeping the index
// idempotent.
func (s *Store) IndexDocument(doc types.Document) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, doc.Path); err != nil {
		return fmt.Errorf("clearing previous rows for %s: %w", doc.Path, err)
	}

	_, err = tx.Exec(
		`INSERT INTO documents (path, verdict, doi, status, error_kind, record_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.Path, string(doc.Verdict), nullable(doc.DOI), string(doc.Status),
		nullable(doc.ErrorKind), len(doc.Records),
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.Path, err)
	}

	for _, rec := range doc.Records {
		_, err = tx.Exec(
			`INSERT INTO records (
				document_path, doi, battery_model, dc_capacity,
				lower_voltage_limit, upper_voltage_limit,
				cathode_material, anode_material, temperature,
				charge_rate, discharge_rate, capacity_retention,
				cycle_count, binder, manufacturing_process
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.Path, rec.DOI, rec.BatteryModel, rec.DCCapacity,
			rec.LowerVoltageLimit, rec.UpperVoltageLimit,
			rec.CathodeMaterial, rec.AnodeMaterial, rec.Temperature,
			rec.ChargeRate, rec.DischargeRate, rec.CapacityRetention,
			rec.CycleCount, rec.Binder, rec.ManufacturingProcess,
		)
		if err != nil {
			return fmt.Errorf("inserting record for %s: %w", doc.Path, err)
		}
	}

	return tx.Commit()
}

// DocumentRow is one indexed document as returned by List.
type DocumentRow struct {
	Path        string `json:"path" yaml:"path"`
	Verdict     string `json:"verdict" yaml:"verdict"`
	DOI         string `json:"doi,omitempty" yaml:"doi,omitempty"`
	Status      string `json:"status" yaml:"status"`
	ErrorKind   string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	RecordCount int    `json:"record_count" yaml:"record_count"`
}

// QueryOptions filters List and the exports.
type QueryOptions struct {
	// Verdict filters documents by classification verdict ("" = all).
	Verdict string

	// DOI filters records and documents by exact DOI ("" = all).
	DOI string
}

// List returns indexed documents matching the filters, ordered by path.
func (s *Store) List(opts QueryOptions) ([]DocumentRow, error) {
	query := `SELECT path, verdict, COALESCE(doi, ''), status, COALESCE(error_kind, ''), record_count
		FROM documents WHERE 1=1`
	var args []any
	if opts.Verdict != "" {
		query += ` AND verdict = ?`
		args = append(args, opts.Verdict)
	}
	if opts.DOI != "" {
		query += ` AND doi = ?`
		args = append(args, opts.DOI)
	}
	query += ` ORDER BY path`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Path, &d.Verdict, &d.DOI, &d.Status, &d.ErrorKind, &d.RecordCount); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// nullable maps "" to NULL so optional columns stay queryable with IS NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
