package voice

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
)

// backchannels are acknowledgment noises the caller makes while
// listening. They reset the silence clock but never become a turn.
var backchannels = map[string]struct{}{
	"uh":      {},
	"uh huh":  {},
	"uh-huh":  {},
	"um":      {},
	"mm":      {},
	"mm hmm":  {},
	"mm-hmm":  {},
	"mhm":     {},
	"hmm":     {},
	"ok":      {},
	"okay":    {},
	"yeah":    {},
	"yep":     {},
	"yes":     {},
	"right":   {},
	"sure":    {},
	"i see":   {},
	"got it":  {},
	"alright": {},
}

// DebouncerConfig tunes fragment coalescing.
type DebouncerConfig struct {
	// Window is how long after the last fragment the buffer flushes as
	// one utterance. Default 300ms.
	Window time.Duration
	// OnUtterance receives each coalesced utterance. Called from the
	// timer goroutine, or from the caller's goroutine on Flush.
	OnUtterance func(string)
	// OnActivity fires for every accepted or discarded fragment so the
	// silence clock can reset even for backchannels. Optional.
	OnActivity func()

	Logger *slog.Logger
}

// Debouncer coalesces committed transcript fragments into whole
// utterances. The recognizer commits on every short pause, so a single
// human sentence often arrives as several fragments a few hundred
// milliseconds apart.
type Debouncer struct {
	cfg DebouncerConfig

	mu      sync.Mutex
	buf     []string
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer. OnUtterance must be set.
func NewDebouncer(cfg DebouncerConfig) *Debouncer {
	if cfg.Window <= 0 {
		cfg.Window = 300 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Debouncer{cfg: cfg}
}

// Add feeds one committed fragment. Short fragments and backchannels
// count as activity but are discarded. Fragments that are mostly
// non-Latin script are dropped entirely; they are recognition noise
// from misdetected languages, not caller speech.
func (d *Debouncer) Add(fragment string) {
	text := strings.TrimSpace(fragment)
	if text == "" {
		return
	}

	if isMostlyNonLatin(text) {
		d.cfg.Logger.Warn("dropping non-latin transcript fragment", "len", len(text))
		return
	}

	if d.cfg.OnActivity != nil {
		d.cfg.OnActivity()
	}

	if len([]rune(text)) < 2 {
		return
	}
	if _, ok := backchannels[normalizeBackchannel(text)]; ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.buf = append(d.buf, text)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.cfg.Window, d.flushTimer)
}

func (d *Debouncer) flushTimer() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	utterance := d.takeLocked()
	d.mu.Unlock()

	if utterance != "" {
		d.cfg.OnUtterance(utterance)
	}
}

// Flush delivers any buffered fragments immediately. Used at teardown
// so trailing speech still becomes a turn.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	utterance := d.takeLocked()
	d.mu.Unlock()

	if utterance != "" {
		d.cfg.OnUtterance(utterance)
	}
}

// Stop cancels the timer and discards the buffer. No utterance fires
// after Stop returns, barring one already in flight.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.buf = nil
}

func (d *Debouncer) takeLocked() string {
	if len(d.buf) == 0 {
		return ""
	}
	utterance := strings.Join(d.buf, " ")
	d.buf = nil
	return utterance
}

func normalizeBackchannel(text string) string {
	lower := strings.ToLower(text)
	lower = strings.TrimRight(lower, ".,!?")
	return strings.TrimSpace(lower)
}

// isMostlyNonLatin reports whether more than half of the letters in
// text fall outside Latin script. Digits and punctuation do not count
// either way.
func isMostlyNonLatin(text string) bool {
	letters, nonLatin := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.Is(unicode.Latin, r) {
			nonLatin++
		}
	}
	return letters > 0 && nonLatin*2 > letters
}
