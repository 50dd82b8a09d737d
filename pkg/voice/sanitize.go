package voice

import (
	"regexp"
	"strings"
)

// Language models decorate replies with stage directions and markdown
// that a speech synthesizer would read out loud. SanitizeForTTS strips
// them before the text reaches the synthesis path.

var stageDirectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\((?:laughs?|chuckles?|sighs?|pauses?|clears?\s+throat|coughs?|nervous(?:ly)?|whispers?|softly|loudly|excitedly|hesitant(?:ly)?|firmly|gently|sarcastically|smiles?|grins?|nods?|shakes?\s+head|gasps?|groans?|mumbles?|stutters?|trails?\s+off|thinking|beat)[^)]*\)`),
	regexp.MustCompile(`(?i)\[(?:laughs?|chuckles?|sighs?|pauses?|clears?\s+throat|coughs?|nervous(?:ly)?|whispers?|softly|loudly|beat)[^\]]*\]`),
	regexp.MustCompile(`(?i)(?:^|\s)(?:lol|haha|hehe|rofl|lmao)(?:\s|$)`),
}

var markdownPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*\*([^*]+)\*\*`),
	regexp.MustCompile(`__([^_]+)__`),
	regexp.MustCompile(`\*([^*\s][^*]*)\*`),
}

var (
	emojiPattern      = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{1F1E0}-\x{1F1FF}]`)
	multiSpacePattern = regexp.MustCompile(`\s{2,}`)
	spacePunctPattern = regexp.MustCompile(`\s+([.,!?;:])`)
)

// SanitizeForTTS removes stage directions, markdown emphasis, and emoji
// from reply text, then normalizes whitespace.
func SanitizeForTTS(text string) string {
	if text == "" {
		return text
	}
	for _, p := range stageDirectionPatterns {
		text = p.ReplaceAllString(text, " ")
	}
	for _, p := range markdownPatterns {
		text = p.ReplaceAllString(text, "$1")
	}
	text = emojiPattern.ReplaceAllString(text, "")
	text = multiSpacePattern.ReplaceAllString(text, " ")
	text = spacePunctPattern.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
