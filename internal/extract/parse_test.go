// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/battery-extract/pkg/types"
)

func strptr(s string) *string { return &s }

func TestParseRecordsFencedBlock(t *testing.T) {
	raw := "Here is the data:\n```json\n[{\"DOI\":\"10.1/x\"}]\n```"

	records, err := ParseRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.NotNil(t, rec.DOI)
	assert.Equal(t, "10.1/x", *rec.DOI)

	// Every other field stays null.
	assert.Nil(t, rec.BatteryModel)
	assert.Nil(t, rec.DCCapacity)
	assert.Nil(t, rec.LowerVoltageLimit)
	assert.Nil(t, rec.UpperVoltageLimit)
	assert.Nil(t, rec.CathodeMaterial)
	assert.Nil(t, rec.AnodeMaterial)
	assert.Nil(t, rec.Temperature)
	assert.Nil(t, rec.ChargeRate)
	assert.Nil(t, rec.DischargeRate)
	assert.Nil(t, rec.CapacityRetention)
	assert.Nil(t, rec.CycleCount)
	assert.Nil(t, rec.Binder)
	assert.Nil(t, rec.ManufacturingProcess)
}

func TestParseRecordsBareArray(t *testing.T) {
	raw := `[{"DOI": "10.2/y", "Cathode Material": "NMC811"}, {"Binder": "PVDF"}]`

	records, err := ParseRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "10.2/y", *records[0].DOI)
	assert.Equal(t, "NMC811", *records[0].CathodeMaterial)
	assert.Nil(t, records[1].DOI)
	assert.Equal(t, "PVDF", *records[1].Binder)
}

func TestParseRecordsProseWrapped(t *testing.T) {
	raw := `Sure! Based on the literature I found the following conditions:

[{"DOI": "10.3/z", "Cycle Count": 500}]

Let me know if you need anything else.`

	records, err := ParseRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.3/z", *records[0].DOI)
	// Numeric values keep their literal text.
	assert.Equal(t, "500", *records[0].CycleCount)
}

func TestParseRecordsSingleObject(t *testing.T) {
	raw := "```json\n{\"DOI\": \"10.4/w\", \"Temperature (°C)\": 25.5}\n```"

	records, err := ParseRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "25.5", *records[0].Temperature)
}

func TestParseRecordsNormalization(t *testing.T) {
	raw := `[{
		"DOI": "10.5/v",
		"Battery Model": "18650",
		"Capacity Retention (%)": 80.1,
		"Charge Rate (C)": "0.5C",
		"Cycle Count": null,
		"Electrolyte": "LiPF6",
		"confidence": 0.9
	}]`

	records, err := ParseRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "18650", *rec.BatteryModel)
	assert.Equal(t, "80.1", *rec.CapacityRetention)
	// Strings pass through untouched; no unit stripping.
	assert.Equal(t, "0.5C", *rec.ChargeRate)
	// Explicit null stays null; unknown keys are dropped.
	assert.Nil(t, rec.CycleCount)
}

func TestParseRecordsKeepsNAPlaceholders(t *testing.T) {
	raw := `[{"DOI": "N/A", "Anode Material": "graphite"}]`

	records, err := ParseRecords(raw)
	require.NoError(t, err)
	assert.Equal(t, "N/A", *records[0].DOI)
	assert.Equal(t, "graphite", *records[0].AnodeMaterial)
}

func TestParseRecordsEmptyArray(t *testing.T) {
	records, err := ParseRecords("```json\n[]\n```")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseRecordsBracketsInsideStrings(t *testing.T) {
	raw := `The array follows. [{"DOI": "10.6/u", "Manufacturing Process": "doctor blade [standard]"}] Done.`

	records, err := ParseRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doctor blade [standard]", *records[0].ManufacturingProcess)
}

func TestParseRecordsFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON at all", "I could not find any experimental data in this paper."},
		{"unterminated fence", "```json\n[{\"DOI\":"},
		{"malformed array", "[{\"DOI\": }]"},
		{"array of scalars", "[1, 2, 3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParseRecords(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
			assert.Nil(t, records)
		})
	}
}

func TestRecordMarshalShape(t *testing.T) {
	// Missing fields marshal as null so every artifact row has the
	// same closed shape.
	rec := types.ExperimentRecord{DOI: strptr("10.7/t")}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"DOI":"10.7/t"`)
	assert.Contains(t, string(data), `"Battery Model":null`)
	assert.Contains(t, string(data), `"Temperature (°C)":null`)
}
