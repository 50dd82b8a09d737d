// Package directory defines the read-side lookup and end-of-call
// persistence contract the engine depends on. The engine only ever
// resolves a call once at stream start and hands off a flat summary at
// teardown; it knows nothing about the storage schema behind this
// interface.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a call, employee, or script id does not
// resolve. Call sites branch on it rather than treating lookup misses
// as exceptional.
var ErrNotFound = errors.New("directory: not found")

// Call is the typed call record resolved from the start message's
// custom parameters.
type Call struct {
	ID         string
	CallSID    string
	EmployeeID string
	ScriptID   string
	Status     string
	// VoiceID optionally overrides the synthesis voice for this call.
	VoiceID string
}

// Employee is the target's directory entry.
type Employee struct {
	ID         string
	FullName   string
	Email      string
	Department string
	JobTitle   string
	BossID     string
}

// Script is the scenario configuration driving the attacker persona.
type Script struct {
	ID           string
	Name         string
	SystemPrompt string
	Greeting     string
}

// TurnSummary is one conversation turn in the end-of-call handoff.
// Raw text is present only when raw-transcript storage is enabled.
type TurnSummary struct {
	Role         string        `json:"role"`
	Text         string        `json:"text,omitempty"`
	RedactedText string        `json:"redacted_text"`
	TurnIndex    int           `json:"turn_index"`
	Timestamp    time.Time     `json:"timestamp"`
	TTSDuration  time.Duration `json:"tts_duration"`
	BytesSent    int           `json:"bytes_sent"`
}

// Metrics aggregates per-call counters for the handoff.
type Metrics struct {
	AudioChunksReceived int           `json:"audio_chunks_received"`
	AudioBytesSent      int           `json:"audio_bytes_sent"`
	TotalSynthesis      time.Duration `json:"total_synthesis"`
	BargeIns            int           `json:"barge_ins"`
	Errors              int           `json:"errors"`
	DTMFDigits          int           `json:"dtmf_digits"`
	MarksAcked          int           `json:"marks_acked"`
}

// RecordingInfo carries whatever recording metadata accumulated during
// the call; the engine does not interpret it.
type RecordingInfo struct {
	URL      string        `json:"url,omitempty"`
	SID      string        `json:"sid,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// CallSummary is the flat end-of-call handoff object.
type CallSummary struct {
	CallID           string        `json:"call_id"`
	CallSID          string        `json:"call_sid"`
	StreamSID        string        `json:"stream_sid"`
	Status           string        `json:"status"`
	DisconnectReason string        `json:"disconnect_reason"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at"`
	Turns            []TurnSummary `json:"turns"`
	Metrics          Metrics       `json:"metrics"`
	Recording        RecordingInfo `json:"recording"`
}

// Directory resolves call context at stream start and accepts the
// summary at teardown. Implementations must never block the live audio
// path; the engine calls them from outside the frame loop and tolerates
// failures.
type Directory interface {
	// ResolveCall looks up the call referenced by the stream's custom
	// parameters. Returns ErrNotFound when the id is unknown.
	ResolveCall(ctx context.Context, callID string) (Call, error)

	// Employee looks up the target employee for scoring. Returns
	// ErrNotFound when absent; the call then runs without a profile.
	Employee(ctx context.Context, employeeID string) (Employee, error)

	// Script looks up the scenario script for the call.
	Script(ctx context.Context, scriptID string) (Script, error)

	// SaveSummary persists the end-of-call handoff.
	SaveSummary(ctx context.Context, summary CallSummary) error
}
