// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext acquires page text from PDF files through an ordered
// chain of extraction backends. The primary backend parses the PDF
// natively; when it fails the chain falls back to the poppler pdftotext
// binary. PDF corruption is not transient, so there are no retries at
// this layer.
package pdftext

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnreadable reports that every backend failed to produce text for a
// file. Callers treat it as non-fatal: the file is skipped and the batch
// continues.
var ErrUnreadable = errors.New("no backend could read the PDF")

// Extractor is one concrete PDF text backend.
type Extractor interface {
	// Name returns the backend identifier ("native" or "pdftotext").
	Name() string

	// Available reports whether the backend can run on this host.
	Available() bool

	// ExtractText returns the text of the first maxPages pages.
	// maxPages <= 0 means all pages.
	ExtractText(path string, maxPages int) (string, error)
}

// Chain tries extractors in order until one yields non-blank text.
type Chain struct {
	extractors []Extractor
}

// NewChain builds a chain over the given backends, tried in order.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

// DefaultChain returns the production chain: native parser first,
// pdftotext fallback.
func DefaultChain() *Chain {
	return NewChain(&NativeExtractor{}, NewPopplerExtractor())
}

// Acquire returns the page text for the PDF at path. Unavailable
// backends are skipped; a backend that errors or produces only blank
// text hands over to the next one. When every backend fails, Acquire
// returns "" and an error wrapping ErrUnreadable.
func (c *Chain) Acquire(path string, maxPages int) (string, error) {
	var lastErr error
	for _, e := range c.extractors {
		if !e.Available() {
			continue
		}
		text, err := e.ExtractText(path, maxPages)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", e.Name(), err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			lastErr = fmt.Errorf("%s: produced empty text", e.Name())
			continue
		}
		return text, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadable, path, lastErr)
	}
	return "", fmt.Errorf("%w: %s: no backend available", ErrUnreadable, path)
}
