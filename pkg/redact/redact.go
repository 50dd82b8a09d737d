// Package redact masks personally identifiable information in call
// transcripts before anything derived from them is persisted or emitted
// to monitors.
//
// Matching is one-shot and deterministic: all pattern matches are
// collected, sorted by (start ascending, length descending), and a
// greedy left-to-right scan keeps the first match at or after the
// cursor, skipping overlaps. The result is a non-overlapping,
// leftmost-longest replacement with per-span audit metadata.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Span records one masked region of the original text.
type Span struct {
	// Type is the pattern name: email, phone, ssn, cc, password, code.
	Type string `json:"type"`
	// Start and End are byte offsets into the original text.
	Start int `json:"start"`
	End   int `json:"end"`
	// Original is the matched text.
	Original string `json:"original"`
}

// Result is the outcome of one redaction pass.
type Result struct {
	Redacted            string
	Original            string
	Redactions          []Span
	HasSensitiveContent bool
}

type pattern struct {
	name  string
	re    *regexp.Regexp
	token string
	// digitBoundary rejects matches adjacent to another digit, standing
	// in for the lookarounds RE2 does not support. Without it a 16-digit
	// card number would surrender its tail to the bare-code pattern.
	digitBoundary bool
}

// Pattern order is fixed; it breaks ties between equal-length matches at
// the same offset.
var patterns = []pattern{
	{
		name:  "email",
		re:    regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		token: "[REDACTED_EMAIL]",
	},
	{
		name:          "phone",
		re:            regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)|\d{3})[-.\s]?\d{3}[-.\s]?\d{4}`),
		token:         "[REDACTED_PHONE]",
		digitBoundary: true,
	},
	{
		name:  "ssn",
		re:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		token: "[REDACTED_SSN]",
	},
	{
		name:  "cc",
		re:    regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`),
		token: "[REDACTED_CC]",
	},
	{
		name:  "password",
		re:    regexp.MustCompile(`(?i)\b(?:my\s+password\s+is|the\s+password\s+is|password\s*[:=])\s*[^\s,.;]+`),
		token: "[REDACTED_PASSWORD]",
	},
	{
		name:          "code",
		re:            regexp.MustCompile(`\d{4,8}`),
		token:         "[REDACTED_CODE]",
		digitBoundary: true,
	},
}

type candidate struct {
	Span
	token string
	order int
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Redact masks all PII matches in text.
func Redact(text string) Result {
	if text == "" {
		return Result{Redacted: text, Original: text}
	}

	var all []candidate
	for order, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if p.digitBoundary {
				if start > 0 && isDigit(text[start-1]) {
					continue
				}
				if end < len(text) && isDigit(text[end]) {
					continue
				}
			}
			all = append(all, candidate{
				Span:  Span{Type: p.name, Start: start, End: end, Original: text[start:end]},
				token: p.token,
				order: order,
			})
		}
	}

	if len(all) == 0 {
		return Result{Redacted: text, Original: text}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		li, lj := all[i].End-all[i].Start, all[j].End-all[j].Start
		if li != lj {
			return li > lj
		}
		return all[i].order < all[j].order
	})

	var selected []candidate
	cursor := 0
	for _, c := range all {
		if c.Start < cursor {
			continue
		}
		selected = append(selected, c)
		cursor = c.End
	}

	var b strings.Builder
	spans := make([]Span, 0, len(selected))
	pos := 0
	for _, c := range selected {
		b.WriteString(text[pos:c.Start])
		b.WriteString(c.token)
		pos = c.End
		spans = append(spans, c.Span)
	}
	b.WriteString(text[pos:])

	return Result{
		Redacted:            b.String(),
		Original:            text,
		Redactions:          spans,
		HasSensitiveContent: true,
	}
}
