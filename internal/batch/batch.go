// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch drives the per-file pipeline over a folder of PDFs:
// acquire text, classify, extract, persist. Per-file failures are
// isolated; the batch always runs to completion and writes a summary.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/battery-extract/internal/extract"
	"github.com/pdiddy/battery-extract/internal/model"
	"github.com/pdiddy/battery-extract/internal/stats"
	"github.com/pdiddy/battery-extract/pkg/types"
)

// Error kinds recorded on documents and in statistics.
const (
	KindPDFRead          = "pdf-read"
	KindModelUnavailable = "model-unavailable"
	KindExtractionParse  = "extraction-parse"
	KindPersist          = "persist"
)

// summaryFile is the run summary artifact name.
const summaryFile = "processing_stats.json"

// TextAcquirer yields page text for a PDF path. pdftext.Chain implements it.
type TextAcquirer interface {
	Acquire(path string, maxPages int) (string, error)
}

// Classifier decides battery-relatedness. classify.Stage implements it.
type Classifier interface {
	Classify(ctx context.Context, text string) (types.Verdict, model.CallResult, error)
}

// Extractor pulls experiment records. extract.Stage implements it.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]types.ExperimentRecord, model.CallResult, error)
}

// Indexer records finished documents in the results index. Optional.
type Indexer interface {
	IndexDocument(doc types.Document) error
}

// Runner owns one batch execution and its statistics.
type Runner struct {
	texts      TextAcquirer
	classifier Classifier
	extractor  Extractor
	index      Indexer
	cfg        types.PipelineConfig
}

// NewRunner wires the pipeline stages into a batch runner. index may be
// nil to disable results indexing.
func NewRunner(cfg types.PipelineConfig, texts TextAcquirer, classifier Classifier, extractor Extractor, index Indexer) *Runner {
	return &Runner{
		texts:      texts,
		classifier: classifier,
		extractor:  extractor,
		index:      index,
		cfg:        cfg,
	}
}

// Run processes every PDF in the configured input folder and writes one
// artifact per file plus the run summary. Only configuration and
// output-directory failures abort; per-file errors become statistics
// entries and placeholder artifacts. Per-file status lines go to w.
func (r *Runner) Run(ctx context.Context, w io.Writer) (stats.Summary, error) {
	if err := r.cfg.Validate(); err != nil {
		return stats.Summary{}, err
	}

	files, err := listPDFs(r.cfg.InputDir)
	if err != nil {
		return stats.Summary{}, fmt.Errorf("%w: %v", types.ErrConfig, err)
	}

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return stats.Summary{}, fmt.Errorf("creating output directory: %w", err)
	}

	var run stats.Run
	if r.cfg.Workers > 1 {
		run = r.runParallel(ctx, files, w)
	} else {
		for _, f := range files {
			r.processAndPersist(ctx, f, &run, w)
		}
	}
	run.TotalFiles = len(files)

	summary := run.Finalize()
	if err := writeSummary(filepath.Join(r.cfg.OutputDir, summaryFile), summary); err != nil {
		return summary, fmt.Errorf("writing run summary: %w", err)
	}

	fmt.Fprintf(w, "\nBatch summary: %d files, %d battery-related, %d extracted, %d failed reads\n",
		summary.TotalFiles, summary.BatteryRelated, summary.Extracted, summary.ErrorStats.PDFReadErrors)
	return summary, nil
}

// runParallel fans files out over a bounded worker pool. Each file gets
// its own statistics shard; shards merge by summation after all workers
// finish, so totals match the sequential path regardless of order.
func (r *Runner) runParallel(ctx context.Context, files []string, w io.Writer) stats.Run {
	shards := make([]stats.Run, len(files))
	out := &lockedWriter{w: w}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, f := range files {
		g.Go(func() error {
			r.processAndPersist(ctx, f, &shards[i], out)
			return nil
		})
	}
	// Workers never return errors; per-file failures are statistics.
	_ = g.Wait()

	var run stats.Run
	for _, shard := range shards {
		run.Merge(shard)
	}
	return run
}

// processAndPersist runs the per-file pipeline, then persists the
// artifact and updates the results index. Every path through here ends
// with a persisted artifact and an incremented processed count.
func (r *Runner) processAndPersist(ctx context.Context, path string, st *stats.Run, w io.Writer) {
	doc := r.processFile(ctx, path, st, w)

	base := artifactBase(path)
	outPath := filepath.Join(r.cfg.OutputDir, base+"_conditions.json")
	if err := writeArtifact(outPath, doc.Records); err != nil {
		doc.ErrorKind = KindPersist
		st.RecordError(base, stats.StageText, KindPersist, err.Error())
		fmt.Fprintf(w, "failed  %s: %v\n", base, err)
	} else {
		doc.Status = types.StatusPersisted
	}

	if r.index != nil {
		if err := r.index.IndexDocument(doc); err != nil {
			fmt.Fprintf(w, "warning %s: index update failed: %v\n", base, err)
		}
	}

	st.ProcessedFiles++
}

// processFile drives one document through acquire → classify → extract.
// It never returns an error: failures set the document's terminal status
// and error kind, and are recorded in the statistics shard.
func (r *Runner) processFile(ctx context.Context, path string, st *stats.Run, w io.Writer) types.Document {
	base := artifactBase(path)
	doc := types.Document{
		Path:    path,
		Verdict: types.VerdictUnknown,
		Status:  types.StatusPending,
		Records: []types.ExperimentRecord{},
	}

	text, err := r.texts.Acquire(path, r.cfg.MaxPages)
	if err != nil || strings.TrimSpace(text) == "" {
		doc.Status = types.StatusTextFailed
		doc.ErrorKind = KindPDFRead
		st.TextFailures++
		st.RecordError(base, stats.StageText, KindPDFRead, errString(err))
		fmt.Fprintf(w, "failed  %s: unreadable PDF\n", base)
		return doc
	}
	doc.Text = text
	doc.Status = types.StatusTextAcquired

	verdict, res, err := r.classifier.Classify(ctx, text)
	st.RecordCall(stats.StageClassifier, res.Latency, res.PromptTokens, res.CompletionTokens, res.Attempts, err != nil)
	doc.Verdict = verdict
	if err != nil {
		doc.Status = types.StatusSkipped
		doc.ErrorKind = KindModelUnavailable
		st.RecordError(base, stats.StageClassifier, KindModelUnavailable, err.Error())
		fmt.Fprintf(w, "failed  %s: %v\n", base, err)
		return doc
	}
	doc.Status = types.StatusClassified

	switch verdict {
	case types.VerdictFalse:
		doc.Status = types.StatusSkipped
		fmt.Fprintf(w, "skipped %s (not battery-related)\n", base)
		return doc
	case types.VerdictUnknown:
		// Ambiguous answers route like negatives but count separately.
		st.AmbiguousVerdicts++
		doc.Status = types.StatusSkipped
		fmt.Fprintf(w, "skipped %s (ambiguous classification)\n", base)
		return doc
	}

	st.BatteryRelated++

	records, eres, err := r.extractor.Extract(ctx, doc.Text)
	st.RecordCall(stats.StageExtractor, eres.Latency, eres.PromptTokens, eres.CompletionTokens, eres.Attempts, err != nil)
	if err != nil {
		doc.Status = types.StatusExtractFailed
		if errors.Is(err, extract.ErrParse) {
			doc.ErrorKind = KindExtractionParse
			st.ParseErrors++
			st.RecordError(base, stats.StageExtractor, KindExtractionParse, err.Error())
		} else {
			doc.ErrorKind = KindModelUnavailable
			st.RecordError(base, stats.StageExtractor, KindModelUnavailable, err.Error())
		}
		fmt.Fprintf(w, "failed  %s: %v\n", base, err)
		return doc
	}

	if records == nil {
		records = []types.ExperimentRecord{}
	}
	doc.Records = records
	doc.DOI = firstDOI(records)
	doc.Status = types.StatusExtracted
	st.Extracted++
	fmt.Fprintf(w, "extracted %s (%d records)\n", base, len(records))
	return doc
}

// listPDFs returns the sorted *.pdf paths directly under dir.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input folder %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// artifactBase derives the artifact stem from a PDF path.
func artifactBase(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// writeArtifact persists the per-file record array. An empty slice
// marshals as [], never null, so every artifact has the same shape.
func writeArtifact(path string, records []types.ExperimentRecord) error {
	if records == nil {
		records = []types.ExperimentRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling records: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// writeSummary persists the finalized run statistics.
func writeSummary(path string, summary stats.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// firstDOI returns the first non-empty DOI among the records.
func firstDOI(records []types.ExperimentRecord) string {
	for _, rec := range records {
		if rec.DOI != nil && *rec.DOI != "" {
			return *rec.DOI
		}
	}
	return ""
}

// errString tolerates nil errors from acquirers that return blank text.
func errString(err error) string {
	if err == nil {
		return "empty text"
	}
	return err.Error()
}

// lockedWriter serializes status lines from parallel workers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
