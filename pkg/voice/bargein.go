// Package voice implements the real-time conversational behaviors that
// sit between the media gateway and the AI collaborators: barge-in
// detection, transcript debouncing, the silence monitor, and the agent
// orchestrator that turns one user utterance into streamed reply audio.
package voice

import (
	"time"

	"github.com/decoycall/decoycall/pkg/audio/ulaw"
)

// BargeInConfig tunes interruption detection.
type BargeInConfig struct {
	// Threshold is the frame RMS, in linear PCM sample units, above
	// which a frame counts as caller speech. Default 1000.
	Threshold float64
	// ConsecutiveFrames is how many above-threshold frames in a row
	// declare a barge-in. Single loud frames are treated as transient
	// noise. Default 5.
	ConsecutiveFrames int
	// Cooldown suppresses detection for this long after the last
	// outbound audio send, so the caller's echo of the agent cannot
	// self-interrupt. Default 500ms.
	Cooldown time.Duration
}

func (c *BargeInConfig) fillDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 1000
	}
	if c.ConsecutiveFrames <= 0 {
		c.ConsecutiveFrames = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 500 * time.Millisecond
	}
}

// BargeInDetector watches inbound µ-law frames for caller speech while
// the agent is talking. It only decides; the gateway owns the clear,
// the state transition, and the generation bump. Not safe for
// concurrent use; the gateway feeds it from the single frame loop.
type BargeInDetector struct {
	cfg   BargeInConfig
	count int
}

// NewBargeInDetector creates a detector, applying defaults for zero
// config fields.
func NewBargeInDetector(cfg BargeInConfig) *BargeInDetector {
	cfg.fillDefaults()
	return &BargeInDetector{cfg: cfg}
}

// Observe feeds one inbound frame. speaking is whether the agent state
// is currently speaking; sinceAudioSend is the time since the last
// outbound audio write. Returns true when a barge-in is declared; the
// consecutive counter resets on the trigger.
func (d *BargeInDetector) Observe(frame []byte, speaking bool, sinceAudioSend time.Duration) bool {
	if !speaking || sinceAudioSend < d.cfg.Cooldown {
		d.count = 0
		return false
	}
	if ulaw.RMS(frame) <= d.cfg.Threshold {
		d.count = 0
		return false
	}
	d.count++
	if d.count < d.cfg.ConsecutiveFrames {
		return false
	}
	d.count = 0
	return true
}

// Reset zeroes the consecutive counter, used when a new reply starts.
func (d *BargeInDetector) Reset() {
	d.count = 0
}
