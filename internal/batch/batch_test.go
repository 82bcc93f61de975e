// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/battery-extract/internal/extract"
	"github.com/pdiddy/battery-extract/internal/model"
	"github.com/pdiddy/battery-extract/internal/pdftext"
	"github.com/pdiddy/battery-extract/internal/stats"
	"github.com/pdiddy/battery-extract/pkg/types"
)

// fakeTexts maps PDF base names to canned page text. Missing entries
// behave like unreadable PDFs.
type fakeTexts struct {
	pages map[string]string
}

func (f *fakeTexts) Acquire(path string, _ int) (string, error) {
	text, ok := f.pages[filepath.Base(path)]
	if !ok {
		return "", fmt.Errorf("%w: no readable pages", pdftext.ErrUnreadable)
	}
	return text, nil
}

// fakeClassifier answers from the document text so routing is visible
// in the tests. It counts calls to prove failed reads never reach it.
type fakeClassifier struct {
	calls    atomic.Int64
	verdicts map[string]types.Verdict
	err      error
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (types.Verdict, model.CallResult, error) {
	f.calls.Add(1)
	res := model.CallResult{Latency: time.Second, PromptTokens: 50, CompletionTokens: 2, Attempts: 1}
	if f.err != nil {
		return types.VerdictUnknown, model.CallResult{Latency: time.Second, Attempts: 3}, f.err
	}
	if v, ok := f.verdicts[text]; ok {
		return v, res, nil
	}
	return types.VerdictFalse, res, nil
}

// fakeExtractor returns canned records keyed by document text.
type fakeExtractor struct {
	calls   atomic.Int64
	records map[string][]types.ExperimentRecord
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, text string) ([]types.ExperimentRecord, model.CallResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, model.CallResult{Latency: 2 * time.Second, Attempts: 3}, f.err
	}
	res := model.CallResult{Latency: 2 * time.Second, PromptTokens: 900, CompletionTokens: 120, Attempts: 1}
	return f.records[text], res, nil
}

// fakeIndex captures indexed documents.
type fakeIndex struct {
	docs []types.Document
}

func (f *fakeIndex) IndexDocument(doc types.Document) error {
	f.docs = append(f.docs, doc)
	return nil
}

func strptr(s string) *string { return &s }

func testConfig(t *testing.T, workers int) types.PipelineConfig {
	t.Helper()
	cfg := types.PipelineConfig{
		InputDir: t.TempDir(),
		Workers:  workers,
		Classifier: types.ModelConfig{
			BaseURL: "http://localhost:1234/v1",
			APIKey:  types.NoAuthAPIKey,
			Model:   "classifier-model",
		},
		Extractor: types.ModelConfig{
			BaseURL: "http://localhost:1234/v1",
			APIKey:  types.NoAuthAPIKey,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func touchPDFs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4 stub"), 0o644))
	}
}

func readArtifact(t *testing.T, dir, base string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, base+"_conditions.json"))
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

// Mixed batch: one unreadable file, one negative, one positive with two
// records. Every file gets an artifact; the summary reflects the split.
func TestRunMixedBatch(t *testing.T) {
	cfg := testConfig(t, 1)
	touchPDFs(t, cfg.InputDir, "a.pdf", "b.pdf", "c.pdf")

	texts := &fakeTexts{pages: map[string]string{
		"b.pdf": "solar panel text",
		"c.pdf": "battery paper text",
	}}
	classifier := &fakeClassifier{verdicts: map[string]types.Verdict{
		"solar panel text":   types.VerdictFalse,
		"battery paper text": types.VerdictTrue,
	}}
	extractor := &fakeExtractor{records: map[string][]types.ExperimentRecord{
		"battery paper text": {
			{DOI: strptr("10.1/c"), CathodeMaterial: strptr("NMC811")},
			{DOI: strptr("10.1/c"), Binder: strptr("PVDF")},
		},
	}}
	index := &fakeIndex{}

	var out bytes.Buffer
	summary, err := NewRunner(cfg, texts, classifier, extractor, index).Run(context.Background(), &out)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalFiles)
	assert.Equal(t, 3, summary.ProcessedFiles)
	assert.Equal(t, 1, summary.BatteryRelated)
	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 1, summary.ErrorStats.PDFReadErrors)
	assert.Equal(t, 0, summary.ErrorStats.ParseErrors)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "a", summary.Errors[0].File)
	assert.Equal(t, KindPDFRead, summary.Errors[0].Kind)

	// Unreadable file never reaches a model, but classification ran for
	// the two readable files and extraction only for the positive one.
	assert.Equal(t, int64(2), classifier.calls.Load())
	assert.Equal(t, int64(1), extractor.calls.Load())

	// One artifact per input file, failed read included.
	assert.Empty(t, readArtifact(t, cfg.OutputDir, "a"))
	assert.Empty(t, readArtifact(t, cfg.OutputDir, "b"))
	rows := readArtifact(t, cfg.OutputDir, "c")
	require.Len(t, rows, 2)
	assert.Equal(t, "NMC811", rows[0]["Cathode Material"])
	assert.Nil(t, rows[0]["Binder"])

	// Summary artifact lands next to the per-file artifacts.
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "processing_stats.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_files": 3`)
	assert.Contains(t, string(data), `"pdf_read_errors": 1`)

	// Index saw all three documents with their terminal statuses.
	require.Len(t, index.docs, 3)
	statuses := map[string]types.ProcessingStatus{}
	for _, doc := range index.docs {
		statuses[filepath.Base(doc.Path)] = doc.Status
	}
	assert.Equal(t, types.StatusPersisted, statuses["a.pdf"])
	assert.Equal(t, types.StatusPersisted, statuses["c.pdf"])

	assert.Contains(t, out.String(), "Batch summary: 3 files, 1 battery-related, 1 extracted, 1 failed reads")
}

func TestRunBlankTextCountsAsReadFailure(t *testing.T) {
	cfg := testConfig(t, 1)
	touchPDFs(t, cfg.InputDir, "scan.pdf")

	texts := &fakeTexts{pages: map[string]string{"scan.pdf": "   \n\t "}}
	classifier := &fakeClassifier{}
	extractor := &fakeExtractor{}

	var out bytes.Buffer
	summary, err := NewRunner(cfg, texts, classifier, extractor, nil).Run(context.Background(), &out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ErrorStats.PDFReadErrors)
	assert.Zero(t, classifier.calls.Load(), "blank text never reaches the classifier")
	assert.Zero(t, extractor.calls.Load())
}

func TestRunAmbiguousVerdictSkips(t *testing.T) {
	cfg := testConfig(t, 1)
	touchPDFs(t, cfg.InputDir, "odd.pdf")

	texts := &fakeTexts{pages: map[string]string{"odd.pdf": "ambiguous text"}}
	classifier := &fakeClassifier{verdicts: map[string]types.Verdict{
		"ambiguous text": types.VerdictUnknown,
	}}
	extractor := &fakeExtractor{}

	var out bytes.Buffer
	summary, err := NewRunner(cfg, texts, classifier, extractor, nil).Run(context.Background(), &out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ErrorStats.AmbiguousVerdicts)
	assert.Zero(t, summary.BatteryRelated)
	assert.Zero(t, extractor.calls.Load())
	assert.Empty(t, readArtifact(t, cfg.OutputDir, "odd"))
}

func TestRunParseFailureProducesEmptyArtifact(t *testing.T) {
	cfg := testConfig(t, 1)
	touchPDFs(t, cfg.InputDir, "paper.pdf")

	texts := &fakeTexts{pages: map[string]string{"paper.pdf": "battery text"}}
	classifier := &fakeClassifier{verdicts: map[string]types.Verdict{
		"battery text": types.VerdictTrue,
	}}
	extractor := &fakeExtractor{err: fmt.Errorf("%w: no JSON found", extract.ErrParse)}

	var out bytes.Buffer
	summary, err := NewRunner(cfg, texts, classifier, extractor, nil).Run(context.Background(), &out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.BatteryRelated)
	assert.Zero(t, summary.Extracted)
	assert.Equal(t, 1, summary.ErrorStats.ParseErrors)
	assert.Equal(t, 1, summary.Extractor.Errors)
	assert.Empty(t, readArtifact(t, cfg.OutputDir, "paper"))
}

func TestRunClassifierOutageIsPerFile(t *testing.T) {
	cfg := testConfig(t, 1)
	touchPDFs(t, cfg.InputDir, "x.pdf", "y.pdf")

	texts := &fakeTexts{pages: map[string]string{"x.pdf": "text x", "y.pdf": "text y"}}
	classifier := &fakeClassifier{err: fmt.Errorf("%w: endpoint down", model.ErrUnavailable)}
	extractor := &fakeExtractor{}

	var out bytes.Buffer
	summary, err := NewRunner(cfg, texts, classifier, extractor, nil).Run(context.Background(), &out)
	require.NoError(t, err, "model outages never abort the batch")

	assert.Equal(t, 2, summary.ProcessedFiles)
	assert.Equal(t, 2, summary.Classifier.Errors)
	assert.Equal(t, 4, summary.ErrorStats.TotalRetries)
	assert.Zero(t, extractor.calls.Load())
}

// Rerunning the same batch with deterministic stages rewrites identical
// per-file artifacts.
func TestRunIdempotentArtifacts(t *testing.T) {
	cfg := testConfig(t, 1)
	touchPDFs(t, cfg.InputDir, "p.pdf")

	texts := &fakeTexts{pages: map[string]string{"p.pdf": "battery text"}}
	classifier := &fakeClassifier{verdicts: map[string]types.Verdict{
		"battery text": types.VerdictTrue,
	}}
	extractor := &fakeExtractor{records: map[string][]types.ExperimentRecord{
		"battery text": {{DOI: strptr("10.9/p"), CycleCount: strptr("500")}},
	}}

	runner := NewRunner(cfg, texts, classifier, extractor, nil)

	var out bytes.Buffer
	_, err := runner.Run(context.Background(), &out)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(cfg.OutputDir, "p_conditions.json"))
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), &out)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(cfg.OutputDir, "p_conditions.json"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// Parallel and sequential runs over the same inputs produce the same
// summary totals.
func TestRunParallelMatchesSequential(t *testing.T) {
	pages := map[string]string{}
	verdicts := map[string]types.Verdict{}
	records := map[string][]types.ExperimentRecord{}
	var names []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("doc%d.pdf", i)
		names = append(names, name)
		switch i % 4 {
		case 0: // unreadable: no pages entry
		case 1:
			text := fmt.Sprintf("negative %d", i)
			pages[name] = text
			verdicts[text] = types.VerdictFalse
		case 2:
			text := fmt.Sprintf("ambiguous %d", i)
			pages[name] = text
			verdicts[text] = types.VerdictUnknown
		default:
			text := fmt.Sprintf("positive %d", i)
			pages[name] = text
			verdicts[text] = types.VerdictTrue
			records[text] = []types.ExperimentRecord{{DOI: strptr(fmt.Sprintf("10.0/%d", i))}}
		}
	}

	runBatch := func(workers int) stats.Summary {
		cfg := testConfig(t, workers)
		touchPDFs(t, cfg.InputDir, names...)
		texts := &fakeTexts{pages: pages}
		classifier := &fakeClassifier{verdicts: verdicts}
		extractor := &fakeExtractor{records: records}

		var out bytes.Buffer
		summary, err := NewRunner(cfg, texts, classifier, extractor, nil).Run(context.Background(), &out)
		require.NoError(t, err)
		return summary
	}

	seq := runBatch(1)
	par := runBatch(4)

	assert.Equal(t, seq.TotalFiles, par.TotalFiles)
	assert.Equal(t, seq.ProcessedFiles, par.ProcessedFiles)
	assert.Equal(t, seq.BatteryRelated, par.BatteryRelated)
	assert.Equal(t, seq.Extracted, par.Extracted)
	assert.Equal(t, seq.ErrorStats, par.ErrorStats)
	assert.Equal(t, seq.Classifier.Calls, par.Classifier.Calls)
	assert.Equal(t, seq.Extractor.TotalTokens, par.Extractor.TotalTokens)
	assert.Len(t, par.Errors, len(seq.Errors))
}

func TestRunEmptyInputFolder(t *testing.T) {
	cfg := testConfig(t, 1)

	var out bytes.Buffer
	summary, err := NewRunner(cfg, &fakeTexts{}, &fakeClassifier{}, &fakeExtractor{}, nil).Run(context.Background(), &out)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalFiles)

	// Summary is still written.
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "processing_stats.json"))
	assert.NoError(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Classifier.APIKey = ""

	var out bytes.Buffer
	_, err := NewRunner(cfg, &fakeTexts{}, &fakeClassifier{}, &fakeExtractor{}, nil).Run(context.Background(), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestListPDFsFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	touchPDFs(t, dir, "b.pdf", "a.PDF", "c.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755))

	files, err := listPDFs(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "a.PDF"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.pdf"), files[1])
	assert.Equal(t, filepath.Join(dir, "c.pdf"), files[2])
}

func TestFirstDOI(t *testing.T) {
	assert.Empty(t, firstDOI(nil))
	assert.Empty(t, firstDOI([]types.ExperimentRecord{{Binder: strptr("PVDF")}}))
	assert.Equal(t, "10.2/b", firstDOI([]types.ExperimentRecord{
		{DOI: strptr("")},
		{DOI: strptr("10.2/b")},
	}))
}
