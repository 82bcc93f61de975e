// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/battery-extract/pkg/types"
)

// ErrParse reports a response that was received but could not be parsed
// into the record schema. It is a parsing defect, not a transport
// failure, so it never triggers a retry.
var ErrParse = errors.New("response is not parseable record JSON")

// ParseRecords turns a raw extraction response into normalized records.
// It tolerates a bare JSON array, JSON inside a fenced code block, and
// JSON surrounded by prose. A single JSON object is treated as a
// one-element array. Keys outside the schema are dropped; missing keys
// stay null; values are kept as provided, numbers by their literal text.
func ParseRecords(raw string) ([]types.ExperimentRecord, error) {
	payload := isolateJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON payload found", ErrParse)
	}

	rows, err := decodeRows(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	records := make([]types.ExperimentRecord, len(rows))
	for i, row := range rows {
		records[i] = recordFromMap(row)
	}
	return records, nil
}

// decodeRows parses the payload as an array of objects, falling back to
// a single object. UseNumber preserves numeric literals exactly.
func decodeRows(payload string) ([]map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err == nil {
		return rows, nil
	}

	dec = json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return []map[string]any{row}, nil
}

// isolateJSON locates the JSON payload inside a raw model response:
// a ```json fenced block first, then the outermost bracketed array,
// then the outermost object.
func isolateJSON(raw string) string {
	if fenced := fencedBlock(raw); fenced != "" {
		return fenced
	}
	if arr := bracketed(raw, '[', ']'); arr != "" {
		return arr
	}
	return bracketed(raw, '{', '}')
}

// fencedBlock returns the contents of the first ```json (or bare ```)
// fence, or "" when no complete fence exists.
func fencedBlock(raw string) string {
	start := strings.Index(raw, "```json")
	offset := len("```json")
	if start == -1 {
		start = strings.Index(raw, "```")
		offset = len("```")
	}
	if start == -1 {
		return ""
	}

	rest := raw[start+offset:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// bracketed returns the substring from the first open bracket to its
// matching close bracket, skipping brackets inside JSON strings.
func bracketed(raw string, open, close byte) string {
	start := strings.IndexByte(raw, open)
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// schema key constants match the prompt and the output artifact.
const (
	keyDOI                  = "DOI"
	keyBatteryModel         = "Battery Model"
	keyDCCapacity           = "DC Capacity (mAh/g)"
	keyLowerVoltageLimit    = "Lower Voltage Limit (V)"
	keyUpperVoltageLimit    = "Upper Voltage Limit (V)"
	keyCathodeMaterial      = "Cathode Material"
	keyAnodeMaterial        = "Anode Material"
	keyTemperature          = "Temperature (°C)"
	keyChargeRate           = "Charge Rate (C)"
	keyDischargeRate        = "Discharge Rate (C)"
	keyCapacityRetention    = "Capacity Retention (%)"
	keyCycleCount           = "Cycle Count"
	keyBinder               = "Binder"
	keyManufacturingProcess = "Manufacturing Process"
)

// recordFromMap normalizes one parsed object to the closed field set.
// Assigning only schema keys drops everything else.
func recordFromMap(m map[string]any) types.ExperimentRecord {
	return types.ExperimentRecord{
		DOI:                  field(m, keyDOI),
		BatteryModel:         field(m, keyBatteryModel),
		DCCapacity:           field(m, keyDCCapacity),
		LowerVoltageLimit:    field(m, keyLowerVoltageLimit),
		UpperVoltageLimit:    field(m, keyUpperVoltageLimit),
		CathodeMaterial:      field(m, keyCathodeMaterial),
		AnodeMaterial:        field(m, keyAnodeMaterial),
		Temperature:          field(m, keyTemperature),
		ChargeRate:           field(m, keyChargeRate),
		DischargeRate:        field(m, keyDischargeRate),
		CapacityRetention:    field(m, keyCapacityRetention),
		CycleCount:           field(m, keyCycleCount),
		Binder:               field(m, keyBinder),
		ManufacturingProcess: field(m, keyManufacturingProcess),
	}
}

// field looks up key and renders the value as a string pointer. Absent
// and null values stay nil. No numeric or unit normalization happens
// here; downstream consumers handle heterogeneous formats.
func field(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = fmt.Sprintf("%t", t)
	default:
		// Nested structures are rare; keep their JSON text.
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		s = string(b)
	}
	return &s
}
