// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stats accumulates counters, timings, and token totals across
// one batch run. A Run has a single writer at a time; parallel workers
// each own a shard and merge them by summation after the batch, so the
// merge must stay commutative and associative.
package stats

import (
	"math"
	"time"
)

// Stage names used in error descriptors and call accounting.
const (
	StageText       = "text"
	StageClassifier = "classifier"
	StageExtractor  = "extractor"
)

// FileError describes one per-file failure. No error is silently
// dropped: every failure lands here or in a dedicated counter.
type FileError struct {
	File    string `json:"file"`
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ModelUsage accumulates per-stage call counts, time, and token totals.
type ModelUsage struct {
	Calls            int
	Errors           int
	Latency          time.Duration
	PromptTokens     int
	CompletionTokens int
}

// add folds one call's usage into the accumulator.
func (u *ModelUsage) add(latency time.Duration, promptTokens, completionTokens int) {
	u.Calls++
	u.Latency += latency
	u.PromptTokens += promptTokens
	u.CompletionTokens += completionTokens
}

// merge sums another shard into this one.
func (u *ModelUsage) merge(other ModelUsage) {
	u.Calls += other.Calls
	u.Errors += other.Errors
	u.Latency += other.Latency
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Run is the statistics accumulator for one batch execution (or one
// worker's shard of it).
type Run struct {
	TotalFiles     int
	ProcessedFiles int
	BatteryRelated int
	Extracted      int

	TextFailures      int
	ParseErrors       int
	AmbiguousVerdicts int
	Retries           int
	RetrySuccesses    int

	Classifier ModelUsage
	Extractor  ModelUsage

	Errors []FileError
}

// RecordCall folds a model call's result into the named stage's usage.
// Attempts beyond the first count as retries; a success after a retry
// counts as a retry success.
func (r *Run) RecordCall(stage string, latency time.Duration, promptTokens, completionTokens, attempts int, failed bool) {
	u := r.usage(stage)
	u.add(latency, promptTokens, completionTokens)
	if attempts > 1 {
		r.Retries += attempts - 1
		if !failed {
			r.RetrySuccesses++
		}
	}
	if failed {
		u.Errors++
	}
}

// RecordError appends a per-file error descriptor.
func (r *Run) RecordError(file, stage, kind, message string) {
	r.Errors = append(r.Errors, FileError{File: file, Stage: stage, Kind: kind, Message: message})
}

func (r *Run) usage(stage string) *ModelUsage {
	if stage == StageExtractor {
		return &r.Extractor
	}
	return &r.Classifier
}

// Merge sums another Run into this one. Merging disjoint shards in any
// order yields the same totals as accumulating the full set in one Run.
func (r *Run) Merge(other Run) {
	r.TotalFiles += other.TotalFiles
	r.ProcessedFiles += other.ProcessedFiles
	r.BatteryRelated += other.BatteryRelated
	r.Extracted += other.Extracted
	r.TextFailures += other.TextFailures
	r.ParseErrors += other.ParseErrors
	r.AmbiguousVerdicts += other.AmbiguousVerdicts
	r.Retries += other.Retries
	r.RetrySuccesses += other.RetrySuccesses
	r.Classifier.merge(other.Classifier)
	r.Extractor.merge(other.Extractor)
	r.Errors = append(r.Errors, other.Errors...)
}

// ModelSummary is the finalized form of one stage's usage.
type ModelSummary struct {
	Calls              int     `json:"calls"`
	Errors             int     `json:"errors"`
	TotalTimeSeconds   float64 `json:"total_time_seconds"`
	AverageTimeSeconds float64 `json:"average_time_seconds"`
	TotalInputTokens   int     `json:"total_input_tokens"`
	TotalOutputTokens  int     `json:"total_output_tokens"`
	TotalTokens        int     `json:"total_tokens"`
}

// Summary is the finalized, serializable form of a Run.
type Summary struct {
	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	BatteryRelated int `json:"battery_related_files"`
	Extracted      int `json:"successfully_extracted_files"`

	ErrorStats struct {
		PDFReadErrors     int `json:"pdf_read_errors"`
		ClassifierErrors  int `json:"classifier_errors"`
		ExtractorErrors   int `json:"extractor_errors"`
		ParseErrors       int `json:"parse_errors"`
		AmbiguousVerdicts int `json:"ambiguous_verdicts"`
		TotalRetries      int `json:"total_retries"`
		RetrySuccesses    int `json:"retry_successes"`
	} `json:"error_stats"`

	Classifier ModelSummary `json:"classifier"`
	Extractor  ModelSummary `json:"extractor"`

	Rates struct {
		BatteryRelated    float64 `json:"battery_related"`
		ExtractionSuccess float64 `json:"extraction_success"`
	} `json:"rates"`

	Total struct {
		TotalTimeSeconds float64 `json:"total_time_seconds"`
		TotalTokens      int     `json:"total_tokens"`
	} `json:"total"`

	Errors []FileError `json:"errors,omitempty"`
}

// Finalize produces the summary artifact for the run: totals, rates, and
// per-stage averages. The Run is not modified and is discarded by the
// caller afterwards.
func (r *Run) Finalize() Summary {
	var s Summary
	s.TotalFiles = r.TotalFiles
	s.ProcessedFiles = r.ProcessedFiles
	s.BatteryRelated = r.BatteryRelated
	s.Extracted = r.Extracted

	s.ErrorStats.PDFReadErrors = r.TextFailures
	s.ErrorStats.ClassifierErrors = r.Classifier.Errors
	s.ErrorStats.ExtractorErrors = r.Extractor.Errors
	s.ErrorStats.ParseErrors = r.ParseErrors
	s.ErrorStats.AmbiguousVerdicts = r.AmbiguousVerdicts
	s.ErrorStats.TotalRetries = r.Retries
	s.ErrorStats.RetrySuccesses = r.RetrySuccesses

	s.Classifier = summarize(r.Classifier)
	s.Extractor = summarize(r.Extractor)

	if r.TotalFiles > 0 {
		s.Rates.BatteryRelated = round2(float64(r.BatteryRelated) / float64(r.TotalFiles))
		s.Rates.ExtractionSuccess = round2(float64(r.Extracted) / float64(r.TotalFiles))
	}

	s.Total.TotalTimeSeconds = round2((r.Classifier.Latency + r.Extractor.Latency).Seconds())
	s.Total.TotalTokens = r.Classifier.PromptTokens + r.Classifier.CompletionTokens +
		r.Extractor.PromptTokens + r.Extractor.CompletionTokens

	s.Errors = r.Errors
	return s
}

func summarize(u ModelUsage) ModelSummary {
	m := ModelSummary{
		Calls:             u.Calls,
		Errors:            u.Errors,
		TotalTimeSeconds:  round2(u.Latency.Seconds()),
		TotalInputTokens:  u.PromptTokens,
		TotalOutputTokens: u.CompletionTokens,
		TotalTokens:       u.PromptTokens + u.CompletionTokens,
	}
	if succeeded := u.Calls - u.Errors; succeeded > 0 {
		m.AverageTimeSeconds = round2(u.Latency.Seconds() / float64(succeeded))
	}
	return m
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
