// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/battery-extract/pkg/types"
)

// ExportEntry pairs one extracted record with its source document.
type ExportEntry struct {
	DocumentPath string                 `json:"document_path" yaml:"document_path"`
	Record       types.ExperimentRecord `json:"record" yaml:"record"`
}

// ExportYAML writes all indexed records matching opts to
// indexDir/export.yaml.
func (s *Store) ExportYAML(opts QueryOptions) error {
	entries, err := s.exportEntries(opts)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(filepath.Join(s.indexDir, "export.yaml"), data, 0o644)
}

// ExportJSON writes all indexed records matching opts to
// indexDir/export.json.
func (s *Store) ExportJSON(opts QueryOptions) error {
	entries, err := s.exportEntries(opts)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(filepath.Join(s.indexDir, "export.json"), data, 0o644)
}

func (s *Store) exportEntries(opts QueryOptions) ([]ExportEntry, error) {
	query := `SELECT document_path, doi, battery_model, dc_capacity,
		lower_voltage_limit, upper_voltage_limit, cathode_material,
		anode_material, temperature, charge_rate, discharge_rate,
		capacity_retention, cycle_count, binder, manufacturing_process
		FROM records WHERE 1=1`
	var args []any
	if opts.DOI != "" {
		query += ` AND doi = ?`
		args = append(args, opts.DOI)
	}
	if opts.Verdict != "" {
		query += ` AND document_path IN (SELECT path FROM documents WHERE verdict = ?)`
		args = append(args, opts.Verdict)
	}
	query += ` ORDER BY document_path, rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records for export: %w", err)
	}
	defer rows.Close()

	var entries []ExportEntry
	for rows.Next() {
		var e ExportEntry
		r := &e.Record
		err := rows.Scan(&e.DocumentPath, &r.DOI, &r.BatteryModel, &r.DCCapacity,
			&r.LowerVoltageLimit, &r.UpperVoltageLimit, &r.CathodeMaterial,
			&r.AnodeMaterial, &r.Temperature, &r.ChargeRate, &r.DischargeRate,
			&r.CapacityRetention, &r.CycleCount, &r.Binder, &r.ManufacturingProcess)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
