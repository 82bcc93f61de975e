// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// NativeExtractor parses the PDF in-process with ledongthuc/pdf. It is
// the primary backend: no external binary, good coverage of well-formed
// text layers.
type NativeExtractor struct{}

// Name returns "native".
func (n *NativeExtractor) Name() string { return "native" }

// Available always reports true; the parser is compiled in.
func (n *NativeExtractor) Available() bool { return true }

// ExtractText reads up to maxPages pages of text from the PDF at path.
// The underlying parser panics on some malformed files; the panic is
// converted to an error so the chain can fall back.
func (n *NativeExtractor) ExtractText(path string, maxPages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parsing %s: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	pages := reader.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d of %s: %w", i, path, err)
		}
		b.WriteString(content)
	}

	return b.String(), nil
}
