// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Verdict is the classifier's battery-relatedness decision for a document.
type Verdict string

const (
	VerdictUnknown Verdict = "unknown"
	VerdictTrue    Verdict = "battery-related"
	VerdictFalse   Verdict = "not-battery-related"
)

// ProcessingStatus tracks a document through the per-file pipeline.
type ProcessingStatus string

const (
	StatusPending       ProcessingStatus = "pending"
	StatusTextAcquired  ProcessingStatus = "text-acquired"
	StatusTextFailed    ProcessingStatus = "text-failed"
	StatusClassified    ProcessingStatus = "classified"
	StatusSkipped       ProcessingStatus = "skipped"
	StatusExtracted     ProcessingStatus = "extracted"
	StatusExtractFailed ProcessingStatus = "extract-failed"
	StatusPersisted     ProcessingStatus = "persisted"
)

// ExperimentRecord is one row of extracted battery experiment metadata.
// The field set is closed: every record carries exactly these keys, with
// null for anything the paper does not report. Keys match the artifact
// format consumed downstream, units included.
type ExperimentRecord struct {
	DOI                  *string `json:"DOI" yaml:"doi"`
	BatteryModel         *string `json:"Battery Model" yaml:"battery_model"`
	DCCapacity           *string `json:"DC Capacity (mAh/g)" yaml:"dc_capacity"`
	LowerVoltageLimit    *string `json:"Lower Voltage Limit (V)" yaml:"lower_voltage_limit"`
	UpperVoltageLimit    *string `json:"Upper Voltage Limit (V)" yaml:"upper_voltage_limit"`
	CathodeMaterial      *string `json:"Cathode Material" yaml:"cathode_material"`
	AnodeMaterial        *string `json:"Anode Material" yaml:"anode_material"`
	Temperature          *string `json:"Temperature (°C)" yaml:"temperature"`
	ChargeRate           *string `json:"Charge Rate (C)" yaml:"charge_rate"`
	DischargeRate        *string `json:"Discharge Rate (C)" yaml:"discharge_rate"`
	CapacityRetention    *string `json:"Capacity Retention (%)" yaml:"capacity_retention"`
	CycleCount           *string `json:"Cycle Count" yaml:"cycle_count"`
	Binder               *string `json:"Binder" yaml:"binder"`
	ManufacturingProcess *string `json:"Manufacturing Process" yaml:"manufacturing_process"`
}

// Document is one input PDF and everything the pipeline learned about it.
// It is owned by the batch orchestrator while the file is processed, then
// handed off to persistence.
type Document struct {
	// Path is the input PDF path; it identifies the document.
	Path string `json:"path" yaml:"path"`

	// Text is the acquired page text. Empty when both backends failed.
	Text string `json:"-" yaml:"-"`

	// DOI is taken from the first extracted record that reports one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Verdict is the battery-relatedness decision.
	Verdict Verdict `json:"verdict" yaml:"verdict"`

	// Records holds the extracted experimental conditions, in model order.
	Records []ExperimentRecord `json:"records" yaml:"records"`

	// Status is the terminal pipeline state for the file.
	Status ProcessingStatus `json:"status" yaml:"status"`

	// ErrorKind names the failure class for files that did not extract
	// cleanly ("pdf-read", "model-unavailable", "extraction-parse").
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}
