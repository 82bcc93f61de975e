// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

const binPdftotext = "pdftotext"

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunPiped(name string, args []string, stdout io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunPiped(name string, args []string, stdout io.Writer) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	return cmd.Run()
}

// PopplerExtractor shells out to the poppler pdftotext binary. It is the
// fallback backend: slower to spawn, but tolerant of files the native
// parser rejects.
type PopplerExtractor struct {
	exec executor
}

// NewPopplerExtractor creates the pdftotext-backed extractor.
func NewPopplerExtractor() *PopplerExtractor {
	return &PopplerExtractor{exec: &osExecutor{}}
}

// Name returns "pdftotext".
func (p *PopplerExtractor) Name() string { return binPdftotext }

// Available reports whether the pdftotext binary is on PATH.
func (p *PopplerExtractor) Available() bool {
	_, err := p.exec.LookPath(binPdftotext)
	return err == nil
}

// ExtractText runs pdftotext over the first maxPages pages, writing to
// stdout ("-" output target).
func (p *PopplerExtractor) ExtractText(path string, maxPages int) (string, error) {
	args := []string{"-q", "-enc", "UTF-8"}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, "-")

	var out bytes.Buffer
	if err := p.exec.RunPiped(binPdftotext, args, &out); err != nil {
		return "", fmt.Errorf("running %s on %s: %w", binPdftotext, path, err)
	}
	return out.String(), nil
}
