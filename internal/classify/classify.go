// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify decides whether a document discusses battery life or
// capacity degradation. It sends a bounded abstract excerpt to the cheap
// classification model and parses the free-text answer against a small
// fixed vocabulary.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/battery-extract/internal/model"
	"github.com/pdiddy/battery-extract/pkg/types"
)

// systemMessage frames the classifier role.
const systemMessage = "You are an expert in identifying battery-related literature."

// promptTmpl is the fixed classification instruction. The excerpt is
// bounded by Excerpt before rendering, so token cost per file is stable.
var promptTmpl = template.Must(template.New("classify").Parse(`Determine whether the following text from a scientific paper abstract is related to battery life or capacity degradation.
If it is related to battery life or capacity degradation, answer "yes"; if not, answer "no".

Abstract content:
{{.Excerpt}}
`))

// Stage drives the classification model for one document at a time.
type Stage struct {
	client       model.Completer
	excerptLimit int
}

// NewStage builds a classifier stage. excerptLimit caps the excerpt
// length in runes; <= 0 selects the default (2000).
func NewStage(client model.Completer, excerptLimit int) *Stage {
	if excerptLimit <= 0 {
		excerptLimit = 2000
	}
	return &Stage{client: client, excerptLimit: excerptLimit}
}

// Classify returns the battery-relatedness verdict for the document text.
// The CallResult is returned alongside so the caller can record latency
// and token usage. A terminal model failure yields VerdictUnknown and a
// non-nil error; an unparseable answer yields VerdictUnknown with a nil
// error (recorded separately by the caller as parse-ambiguous).
func (s *Stage) Classify(ctx context.Context, text string) (types.Verdict, model.CallResult, error) {
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, struct{ Excerpt string }{Excerpt: Excerpt(text, s.excerptLimit)}); err != nil {
		return types.VerdictUnknown, model.CallResult{}, fmt.Errorf("rendering classification prompt: %w", err)
	}

	res, err := s.client.Complete(ctx, []model.Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: buf.String()},
	})
	if err != nil {
		return types.VerdictUnknown, res, fmt.Errorf("classification call: %w", err)
	}

	return ParseVerdict(res.Content), res, nil
}

// Vocabulary for verdict parsing. Phrases are matched by substring, bare
// yes/no on word boundaries so "note" or "yesterday" cannot match.
const negPhrase = "not battery-related"

var affPhrases = []string{"battery-related"}

// ParseVerdict interprets a free-text classifier answer. It normalizes
// case and whitespace, then checks the negative and affirmative marker
// lists. Exactly one side matching decides the verdict; both or neither
// is VerdictUnknown. A hidden "yes" is never inferred from the absence
// of "no".
func ParseVerdict(answer string) types.Verdict {
	norm := strings.Join(strings.Fields(strings.ToLower(answer)), " ")
	if norm == "" {
		return types.VerdictUnknown
	}

	negative := hasWord(norm, "no") || strings.Contains(norm, negPhrase)

	affirmative := hasWord(norm, "yes")
	if !affirmative && !strings.Contains(norm, negPhrase) {
		for _, p := range affPhrases {
			if strings.Contains(norm, p) {
				affirmative = true
				break
			}
		}
	}

	switch {
	case affirmative && !negative:
		return types.VerdictTrue
	case negative && !affirmative:
		return types.VerdictFalse
	default:
		return types.VerdictUnknown
	}
}

// hasWord reports whether w occurs in norm as a standalone token,
// ignoring trailing punctuation.
func hasWord(norm, w string) bool {
	for _, tok := range strings.Fields(norm) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return r == '.' || r == ',' || r == '!' || r == ':' || r == ';' || r == '"' || r == '\''
		})
		if tok == w {
			return true
		}
	}
	return false
}
