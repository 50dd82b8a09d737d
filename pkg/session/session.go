// Package session owns the per-call state: identity, the turn-taking
// state machine, the turn log, the generation counter used for
// cancellation, and the timing and byte metrics accumulated while the
// call runs. A Session is shared by the gateway's frame loop, the
// orchestrator, and the silence monitor, so every mutation goes through
// methods holding the session mutex. The generation counter is
// additionally atomic so audio paths can poll it without the lock.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/decoycall/decoycall/pkg/bus"
	"github.com/decoycall/decoycall/pkg/directory"
	"github.com/decoycall/decoycall/pkg/score"
)

// TurnRole identifies who spoke a turn.
type TurnRole string

const (
	RoleUser  TurnRole = "user"
	RoleAgent TurnRole = "agent"
)

// TurnRecord is one conversation turn. Immutable once appended.
type TurnRecord struct {
	Role         TurnRole
	Text         string
	RedactedText string
	TurnIndex    int
	Timestamp    time.Time
	TTSDuration  time.Duration
	BytesSent    int
}

// ErrorRecord captures a non-fatal failure during the call.
type ErrorRecord struct {
	Source    string // "stt", "tts", "llm", "gateway", "agent"
	Message   string
	Timestamp time.Time
}

// Session is one active call's state.
type Session struct {
	CallID    string
	CallSID   string
	StreamSID string

	// Profile is the scoring target snapshot, nil when the directory
	// had no employee for this call.
	Profile *score.EmployeeProfile
	// VoiceID overrides the synthesis voice when non-empty.
	VoiceID string

	bus *bus.Bus

	generation atomic.Int64

	mu               sync.Mutex
	state            AgentState
	nextTurnIndex    int
	turns            []TurnRecord
	errors           []ErrorRecord
	dtmf             []string
	marks            []string
	disconnectReason string
	endAfterReply    bool

	startedAt         time.Time
	endedAt           time.Time
	greetingSentAt    time.Time
	firstUserSpeechAt time.Time
	lastActivity      time.Time

	// Outbound audio accounting, used by barge-in cooldown and the
	// silence monitor's playback estimate.
	bytesSent           int
	lastAudioSentAt     time.Time
	playbackMarkAt      time.Time // when the bytes now playing started sending
	bytesAtPlaybackMark int

	chunksReceived int
	totalSynthesis time.Duration
	bargeIns       int

	recording directory.RecordingInfo
}

// New creates a session in the listening state.
func New(callID string, b *bus.Bus) *Session {
	now := time.Now()
	return &Session{
		CallID:       callID,
		bus:          b,
		state:        StateListening,
		startedAt:    now,
		lastActivity: now,
	}
}

// State returns the current agent state.
func (s *Session) State() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the state machine. Re-entering the current state is
// an idempotent no-op. Any move not in the legal graph is rejected with
// *ErrIllegalTransition. Effective transitions emit a state_transition
// event.
func (s *Session) Transition(to AgentState) error {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return nil
	}
	if legalNext[from] != to {
		s.mu.Unlock()
		return &ErrIllegalTransition{From: from, To: to}
	}
	s.state = to
	s.mu.Unlock()

	s.emit(bus.EventStateTransition, map[string]any{
		"from": from.String(),
		"to":   to.String(),
	})
	return nil
}

// Generation returns the live generation counter.
func (s *Session) Generation() int64 {
	return s.generation.Load()
}

// AdvanceGeneration invalidates any in-flight reply and returns the new
// generation.
func (s *Session) AdvanceGeneration() int64 {
	return s.generation.Add(1)
}

// AppendTurn records a turn with the next strictly-increasing index.
func (s *Session) AppendTurn(role TurnRole, text, redacted string, ttsDuration time.Duration, bytesSent int) TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := TurnRecord{
		Role:         role,
		Text:         text,
		RedactedText: redacted,
		TurnIndex:    s.nextTurnIndex,
		Timestamp:    time.Now(),
		TTSDuration:  ttsDuration,
		BytesSent:    bytesSent,
	}
	s.nextTurnIndex++
	s.turns = append(s.turns, turn)
	if role == RoleUser && s.firstUserSpeechAt.IsZero() {
		s.firstUserSpeechAt = turn.Timestamp
	}
	return turn
}

// Turns returns a copy of the turn log.
func (s *Session) Turns() []TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TurnRecord(nil), s.turns...)
}

// UserTurnCount reports how many user turns have been recorded.
func (s *Session) UserTurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// RecordError logs a non-fatal failure into the session.
func (s *Session) RecordError(source, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorRecord{Source: source, Message: message, Timestamp: time.Now()})
}

// RecordDTMF logs a received DTMF digit.
func (s *Session) RecordDTMF(digit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dtmf = append(s.dtmf, digit)
}

// RecordMarkAck logs a playback acknowledgment from the transport.
func (s *Session) RecordMarkAck(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = append(s.marks, name)
}

// NoteActivity resets the silence clock. Called on caller activity
// only: finalized utterances and barge-in.
func (s *Session) NoteActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the most recent caller activity time.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// NoteChunkReceived counts one inbound media frame.
func (s *Session) NoteChunkReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunksReceived++
}

// NoteAudioSent accounts outbound reply audio. resetPlayback marks the
// start of a fresh reply so playback estimates measure only the bytes
// now queued.
func (s *Session) NoteAudioSent(n int, resetPlayback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if resetPlayback || s.playbackMarkAt.IsZero() {
		s.playbackMarkAt = now
		s.bytesAtPlaybackMark = s.bytesSent
	}
	s.bytesSent += n
	s.lastAudioSentAt = now
}

// PlaybackEndsAt estimates when the audio sent since the current reply
// started will finish playing, at the telephony rate of 8000 bytes per
// second. Zero when no reply audio has been sent.
func (s *Session) PlaybackEndsAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playbackMarkAt.IsZero() {
		return time.Time{}
	}
	queued := s.bytesSent - s.bytesAtPlaybackMark
	return s.playbackMarkAt.Add(time.Duration(queued) * time.Second / 8000)
}

// LastAudioSentAt returns when reply audio last went out. Zero when
// nothing has been sent.
func (s *Session) LastAudioSentAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAudioSentAt
}

// BytesSent returns total outbound payload bytes.
func (s *Session) BytesSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesSent
}

// NoteBargeIn counts a barge-in occurrence.
func (s *Session) NoteBargeIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bargeIns++
}

// AddSynthesisTime accumulates TTS wall time for the metrics handoff.
func (s *Session) AddSynthesisTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSynthesis += d
}

// MarkGreetingSent stamps the greeting time once.
func (s *Session) MarkGreetingSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.greetingSentAt.IsZero() {
		s.greetingSentAt = time.Now()
	}
}

// RequestEnd marks the session for graceful termination after the
// current reply finishes playing.
func (s *Session) RequestEnd(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endAfterReply = true
	if s.disconnectReason == "" {
		s.disconnectReason = reason
	}
}

// EndRequested reports whether a graceful termination is pending.
func (s *Session) EndRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endAfterReply
}

// SetDisconnectReason records why the call ended, first writer wins.
func (s *Session) SetDisconnectReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnectReason == "" {
		s.disconnectReason = reason
	}
}

// SetRecording stores recording metadata for the summary handoff.
func (s *Session) SetRecording(info directory.RecordingInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = info
}

// emit publishes an event for this call. Safe with a nil bus (tests).
func (s *Session) emit(eventType string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(bus.Event{CallID: s.CallID, Type: eventType, Data: data})
}

// Emit publishes an arbitrary event for this call.
func (s *Session) Emit(eventType string, data map[string]any) {
	s.emit(eventType, data)
}

// Summary flattens the session for the end-of-call handoff. includeRaw
// controls whether raw turn text leaves the engine.
func (s *Session) Summary(status string, includeRaw bool) directory.CallSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.endedAt.IsZero() {
		s.endedAt = time.Now()
	}

	turns := make([]directory.TurnSummary, len(s.turns))
	for i, t := range s.turns {
		ts := directory.TurnSummary{
			Role:         string(t.Role),
			RedactedText: t.RedactedText,
			TurnIndex:    t.TurnIndex,
			Timestamp:    t.Timestamp,
			TTSDuration:  t.TTSDuration,
			BytesSent:    t.BytesSent,
		}
		if includeRaw {
			ts.Text = t.Text
		}
		turns[i] = ts
	}

	return directory.CallSummary{
		CallID:           s.CallID,
		CallSID:          s.CallSID,
		StreamSID:        s.StreamSID,
		Status:           status,
		DisconnectReason: s.disconnectReason,
		StartedAt:        s.startedAt,
		EndedAt:          s.endedAt,
		Turns:            turns,
		Metrics: directory.Metrics{
			AudioChunksReceived: s.chunksReceived,
			AudioBytesSent:      s.bytesSent,
			TotalSynthesis:      s.totalSynthesis,
			BargeIns:            s.bargeIns,
			Errors:              len(s.errors),
			DTMFDigits:          len(s.dtmf),
			MarksAcked:          len(s.marks),
		},
		Recording: s.recording,
	}
}
