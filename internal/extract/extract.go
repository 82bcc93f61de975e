// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract pulls experimental-condition records out of battery
// papers. It sends the document text to the extraction model with a
// fixed schema description and parses the semi-structured answer into
// ExperimentRecords.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/pdiddy/battery-extract/internal/model"
	"github.com/pdiddy/battery-extract/pkg/types"
)

// systemMessage frames the extractor role.
const systemMessage = "You are an expert in extracting battery experimental data."

// promptTmpl embeds the closed schema. The model is asked for a fenced
// JSON array with "N/A" placeholders; the parser tolerates prose and
// bare JSON as well.
var promptTmpl = template.Must(template.New("extract").Parse(`You are a battery experimental data extraction expert. Extract the experimental conditions from the following literature content and output them in JSON format.
Ensure the data is complete. If a value is missing, fill in "N/A".

Literature content:
{{.Text}}

Output format (follow strictly):
` + "```json" + `
[
  {
    "DOI": "<Literature DOI>",
    "Battery Model": "<Battery model>",
    "DC Capacity (mAh/g)": "<Discharge capacity>",
    "Lower Voltage Limit (V)": "<Lower voltage limit>",
    "Upper Voltage Limit (V)": "<Upper voltage limit>",
    "Cathode Material": "<Cathode material>",
    "Anode Material": "<Anode material>",
    "Temperature (°C)": "<Experimental temperature>",
    "Charge Rate (C)": "<Charge rate>",
    "Discharge Rate (C)": "<Discharge rate>",
    "Capacity Retention (%)": "<Capacity retention>",
    "Cycle Count": "<Cycle count>",
    "Binder": "<Binder>",
    "Manufacturing Process": "<Electrode manufacturing process>"
  }
]
` + "```" + `

Return only JSON data, do not include any explanatory text.
`))

// Stage drives the extraction model for one document at a time.
type Stage struct {
	client      model.Completer
	maxDocChars int
}

// NewStage builds an extractor stage. maxDocChars caps the document text
// sent to the model, in runes; <= 0 means no cap.
func NewStage(client model.Completer, maxDocChars int) *Stage {
	return &Stage{client: client, maxDocChars: maxDocChars}
}

// Extract returns the experimental-condition records found in the
// document text, in model order. The CallResult is returned alongside so
// the caller can record latency and token usage. A terminal model
// failure or an unparseable response yields an empty list and a non-nil
// error; parse failures wrap ErrParse and are never retried here.
func (s *Stage) Extract(ctx context.Context, text string) ([]types.ExperimentRecord, model.CallResult, error) {
	if s.maxDocChars > 0 {
		if runes := []rune(text); len(runes) > s.maxDocChars {
			text = string(runes[:s.maxDocChars])
		}
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, struct{ Text string }{Text: text}); err != nil {
		return nil, model.CallResult{}, fmt.Errorf("rendering extraction prompt: %w", err)
	}

	res, err := s.client.Complete(ctx, []model.Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: buf.String()},
	})
	if err != nil {
		return nil, res, fmt.Errorf("extraction call: %w", err)
	}

	records, err := ParseRecords(res.Content)
	if err != nil {
		return nil, res, err
	}
	return records, res, nil
}
