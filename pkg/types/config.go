// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ErrConfig marks configuration errors that must abort the run before any
// file is processed.
var ErrConfig = errors.New("invalid configuration")

// DefaultExtractorModel is used when no extraction model is configured.
const DefaultExtractorModel = "deepseek-ai/DeepSeek-R1"

// NoAuthAPIKey is the accepted sentinel for endpoints that perform no
// authentication. It is still sent as a bearer token; such endpoints
// ignore it.
const NoAuthAPIKey = "none"

// ModelConfig holds the settings for one chat-completion endpoint.
type ModelConfig struct {
	// BaseURL is the OpenAI-compatible endpoint base
	// (e.g. "https://api.example.com/v1").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey authenticates requests. Use NoAuthAPIKey for endpoints
	// without authentication.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the model identifier sent with each request.
	Model string `json:"model" yaml:"model"`

	// MaxAttempts bounds retries for one logical call (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Validate checks that the endpoint is usable. The role argument names
// the stage ("classifier" or "extractor") in error messages.
func (c ModelConfig) Validate(role string) error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: %s base URL is required", ErrConfig, role)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s API key is required (use %q for unauthenticated endpoints)", ErrConfig, role, NoAuthAPIKey)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: %s model identifier is required", ErrConfig, role)
	}
	return nil
}

// PipelineConfig groups the settings for one batch run.
type PipelineConfig struct {
	// InputDir is the folder containing the PDF literature.
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// OutputDir receives per-file artifacts and the run summary.
	// Defaults to InputDir/extraction_results.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Classifier is the cheap battery-relatedness model.
	Classifier ModelConfig `json:"classifier" yaml:"classifier"`

	// Extractor is the expensive experimental-condition model.
	Extractor ModelConfig `json:"extractor" yaml:"extractor"`

	// MaxPages caps how many pages each PDF backend reads (default 2).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// ExcerptLimit caps the classification excerpt length in runes
	// (default 2000).
	ExcerptLimit int `json:"excerpt_limit" yaml:"excerpt_limit"`

	// MaxDocChars caps the document text sent for extraction in runes.
	// Zero means no cap.
	MaxDocChars int `json:"max_doc_chars" yaml:"max_doc_chars"`

	// Workers is the number of files processed concurrently (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// IndexDir, when set, enables the SQLite results index under that
	// directory.
	IndexDir string `json:"index_dir,omitempty" yaml:"index_dir,omitempty"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *PipelineConfig) ApplyDefaults() {
	if c.OutputDir == "" && c.InputDir != "" {
		c.OutputDir = filepath.Join(c.InputDir, "extraction_results")
	}
	if c.Extractor.Model == "" {
		c.Extractor.Model = DefaultExtractorModel
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 2
	}
	if c.ExcerptLimit <= 0 {
		c.ExcerptLimit = 2000
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Classifier.MaxAttempts <= 0 {
		c.Classifier.MaxAttempts = 3
	}
	if c.Extractor.MaxAttempts <= 0 {
		c.Extractor.MaxAttempts = 3
	}
}

// Validate reports the first fatal configuration problem, if any.
// All returned errors wrap ErrConfig.
func (c PipelineConfig) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("%w: input folder is required", ErrConfig)
	}
	if err := c.Classifier.Validate("classifier"); err != nil {
		return err
	}
	return c.Extractor.Validate("extractor")
}
