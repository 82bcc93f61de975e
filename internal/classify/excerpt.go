// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"regexp"
	"strings"
)

// abstractMarkers start an abstract section; endMarkers begin the section
// that follows one. Matching is case-insensitive and anchored to the
// marker word so the same input always truncates identically.
var (
	abstractMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)graphical abstract\s*:?`),
		regexp.MustCompile(`(?i)abstract\s*:?`),
		regexp.MustCompile(`(?i)summary\s*:?`),
		regexp.MustCompile(`(?i)highlights\s*:?`),
	}
	endMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\n\s*introduction\s*:?`),
		regexp.MustCompile(`(?i)\n\s*keywords\s*:?`),
		regexp.MustCompile(`(?i)\n\s*experimental\s*:?`),
		regexp.MustCompile(`(?i)\n\s*1\.`),
		regexp.MustCompile(`(?i)\n\s*i\.`),
	}
)

// Excerpt returns the abstract portion of the document text, capped at
// limit runes. It looks for an abstract marker and cuts at the first
// section marker after it; when no abstract marker is present it falls
// back to the first limit/2 runes of the document.
func Excerpt(text string, limit int) string {
	if limit <= 0 {
		limit = 2000
	}

	start := -1
	for _, m := range abstractMarkers {
		if loc := m.FindStringIndex(text); loc != nil {
			start = loc[1]
			break
		}
	}

	if start == -1 {
		return truncate(strings.TrimSpace(text), limit/2)
	}

	rest := text[start:]
	end := len(rest)
	for _, m := range endMarkers {
		if loc := m.FindStringIndex(rest); loc != nil && loc[0] < end {
			end = loc[0]
		}
	}

	return truncate(strings.TrimSpace(rest[:end]), limit)
}

// truncate cuts s to at most limit runes without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
