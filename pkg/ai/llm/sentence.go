package llm

import (
	"strings"
	"unicode"
)

// SentenceAssembler turns a stream of token deltas into complete
// sentences. Providers feed every delta through Write and flush the
// trailing remainder with Flush once the stream ends.
//
// A sentence boundary is terminal punctuation (. ! ?) followed by
// whitespace or end of input. Very short prefixes are held back so
// abbreviations like "Dr." don't fire a one-word sentence.
type SentenceAssembler struct {
	buf strings.Builder
}

// minSentenceRunes holds back fragments shorter than this after a
// terminator, to avoid speaking abbreviation stubs as sentences.
const minSentenceRunes = 4

// Write appends a delta and returns any sentences completed by it.
func (a *SentenceAssembler) Write(delta string) []string {
	a.buf.WriteString(delta)
	text := a.buf.String()

	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Consume a run of terminators ("?!", "...").
		j := i
		for j+1 < len(runes) && isTerminator(runes[j+1]) {
			j++
		}
		// Only split when the terminator is followed by whitespace; a
		// trailing terminator waits for the next delta or Flush.
		if j+1 >= len(runes) || !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : j+1]))
		if len([]rune(sentence)) < minSentenceRunes {
			i = j
			continue
		}
		out = append(out, sentence)
		start = j + 1
		i = j
	}

	a.buf.Reset()
	a.buf.WriteString(string(runes[start:]))
	return out
}

// Flush returns the unterminated remainder, if any, and resets the
// assembler.
func (a *SentenceAssembler) Flush() (string, bool) {
	rest := strings.TrimSpace(a.buf.String())
	a.buf.Reset()
	if rest == "" {
		return "", false
	}
	return rest, true
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
