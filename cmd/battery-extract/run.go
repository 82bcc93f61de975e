// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/battery-extract/internal/batch"
	"github.com/pdiddy/battery-extract/internal/classify"
	"github.com/pdiddy/battery-extract/internal/extract"
	"github.com/pdiddy/battery-extract/internal/model"
	"github.com/pdiddy/battery-extract/internal/pdftext"
	"github.com/pdiddy/battery-extract/internal/store"
	"github.com/pdiddy/battery-extract/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a folder of PDFs through the extraction pipeline",
	Long: `Run acquires text from each PDF (native parser with pdftotext
fallback), asks the classification model whether the paper is
battery-related, and for positive papers asks the extraction model for
experimental-condition records. Each file produces
<name>_conditions.json in the output folder; the run produces
processing_stats.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runConfig(cmd)
		if err != nil {
			return err
		}

		runner, closeStore, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		summary, err := runner.Run(cmd.Context(), os.Stdout)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Summary written to %s/processing_stats.json (%d tokens, %.2fs model time)\n",
			cfg.OutputDir, summary.Total.TotalTokens, summary.Total.TotalTimeSeconds)
		return nil
	},
}

// runConfig assembles the pipeline configuration from flags, the viper
// config file, and loaded secrets, in that precedence order.
func runConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	flagOr := func(flag, viperKey string) string {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			return v
		}
		return viper.GetString(viperKey)
	}

	cfg := types.PipelineConfig{
		InputDir:  flagOr("input", "input_dir"),
		OutputDir: flagOr("output", "output_dir"),
		IndexDir:  flagOr("index-dir", "index_dir"),
		Classifier: types.ModelConfig{
			BaseURL: flagOr("classifier-url", "classifier.base_url"),
			APIKey:  secretDefault("classifier-api-key", flagOr("classifier-key", "classifier.api_key")),
			Model:   flagOr("classifier-model", "classifier.model"),
		},
		Extractor: types.ModelConfig{
			BaseURL: flagOr("extractor-url", "extractor.base_url"),
			APIKey:  secretDefault("extractor-api-key", flagOr("extractor-key", "extractor.api_key")),
			Model:   flagOr("extractor-model", "extractor.model"),
		},
	}

	cfg.Workers, _ = cmd.Flags().GetInt("workers")
	cfg.MaxPages, _ = cmd.Flags().GetInt("max-pages")
	cfg.ExcerptLimit, _ = cmd.Flags().GetInt("excerpt-limit")
	cfg.MaxDocChars, _ = cmd.Flags().GetInt("max-doc-chars")

	timeout, _ := cmd.Flags().GetDuration("timeout")
	cfg.Classifier.Timeout = timeout
	cfg.Extractor.Timeout = timeout

	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// buildRunner wires the production stages. The returned func closes the
// results index when one was opened.
func buildRunner(cfg types.PipelineConfig) (*batch.Runner, func(), error) {
	classifier := classify.NewStage(model.NewClient(cfg.Classifier), cfg.ExcerptLimit)
	extractor := extract.NewStage(model.NewClient(cfg.Extractor), cfg.MaxDocChars)

	var index batch.Indexer
	closeStore := func() {}
	if cfg.IndexDir != "" {
		s, err := store.NewStore(cfg.IndexDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening results index: %w", err)
		}
		index = s
		closeStore = func() { s.Close() }
	}

	runner := batch.NewRunner(cfg, pdftext.DefaultChain(), classifier, extractor, index)
	return runner, closeStore, nil
}

func init() {
	runCmd.Flags().String("input", "", "folder containing PDF literature")
	runCmd.Flags().String("output", "", "output folder (default: <input>/extraction_results)")
	runCmd.Flags().String("classifier-url", "", "classification endpoint base URL")
	runCmd.Flags().String("classifier-key", "", "classification API key ('none' for unauthenticated endpoints)")
	runCmd.Flags().String("classifier-model", "", "classification model identifier")
	runCmd.Flags().String("extractor-url", "", "extraction endpoint base URL")
	runCmd.Flags().String("extractor-key", "", "extraction API key ('none' for unauthenticated endpoints)")
	runCmd.Flags().String("extractor-model", "", "extraction model identifier (default: "+types.DefaultExtractorModel+")")
	runCmd.Flags().String("index-dir", "", "directory for the SQLite results index (empty disables indexing)")
	runCmd.Flags().Int("workers", 1, "number of files processed concurrently")
	runCmd.Flags().Int("max-pages", 2, "pages of text read from each PDF")
	runCmd.Flags().Int("excerpt-limit", 2000, "classification excerpt cap in characters")
	runCmd.Flags().Int("max-doc-chars", 0, "extraction text cap in characters (0 = unlimited)")
	runCmd.Flags().Duration("timeout", 120*time.Second, "per-request model timeout")

	rootCmd.AddCommand(runCmd)
}
