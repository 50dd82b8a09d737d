package voice

import (
	"context"
	"log/slog"
	"time"
)

// SilenceConfig tunes the idle-caller watchdog.
type SilenceConfig struct {
	// Tick is the polling interval. Default 1s.
	Tick time.Duration
	// NudgeAfter is how long the line may stay quiet before the agent
	// prompts once. Default 1500ms.
	NudgeAfter time.Duration
	// GoodbyeAfter is how long before the agent gives up and says
	// goodbye. Default 20s.
	GoodbyeAfter time.Duration

	// LastActivity returns the most recent caller activity: an
	// utterance or a barge-in. The agent's own playback never feeds
	// this clock.
	LastActivity func() time.Time
	// PlaybackEndsAt returns when in-flight reply audio finishes
	// playing, or zero. Idle action defers until playback ends, and the
	// idle clock restarts where playback stopped, so the agent's own
	// long reply is never treated as caller silence.
	PlaybackEndsAt func() time.Time

	// OnNudge speaks one filler prompt. Fired at most once per quiet
	// episode.
	OnNudge func()
	// OnGoodbye speaks a farewell and starts teardown. The monitor
	// stops after firing it.
	OnGoodbye func()

	Logger *slog.Logger
}

func (c *SilenceConfig) fillDefaults() {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.NudgeAfter <= 0 {
		c.NudgeAfter = 1500 * time.Millisecond
	}
	if c.GoodbyeAfter <= 0 {
		c.GoodbyeAfter = 20 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SilenceMonitor watches for a caller who has gone quiet. It runs
// beside the turn loop and never touches the frame path.
type SilenceMonitor struct {
	cfg SilenceConfig

	nudged      bool
	nudgedAt    time.Time
	anchor      time.Time
	playbackEnd time.Time
}

// NewSilenceMonitor creates a monitor, applying defaults for zero
// config fields.
func NewSilenceMonitor(cfg SilenceConfig) *SilenceMonitor {
	cfg.fillDefaults()
	return &SilenceMonitor{cfg: cfg}
}

// Run polls until ctx ends or the goodbye fires. Call in its own
// goroutine.
func (m *SilenceMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if m.check(now) {
				return
			}
		}
	}
}

// check evaluates one tick. Returns true when the monitor is done.
func (m *SilenceMonitor) check(now time.Time) bool {
	if m.cfg.PlaybackEndsAt != nil {
		if ends := m.cfg.PlaybackEndsAt(); !ends.IsZero() {
			if ends.After(m.playbackEnd) {
				m.playbackEnd = ends
			}
			if now.Before(ends) {
				return false
			}
		}
	}

	last := m.cfg.LastActivity()

	// Caller speech since the last nudge opens a fresh quiet episode.
	if m.nudged && last.After(m.nudgedAt) {
		m.nudged = false
	}

	// The idle clock starts at the later of the caller's last speech
	// and the end of agent playback. It freezes for the episode once a
	// nudge goes out, so the nudge's own audio cannot postpone the
	// goodbye.
	if !m.nudged {
		m.anchor = last
		if m.playbackEnd.After(m.anchor) {
			m.anchor = m.playbackEnd
		}
	}

	idle := now.Sub(m.anchor)
	if idle >= m.cfg.GoodbyeAfter {
		m.cfg.Logger.Info("caller silent past goodbye threshold", "idle", idle)
		if m.cfg.OnGoodbye != nil {
			m.cfg.OnGoodbye()
		}
		return true
	}

	if !m.nudged && idle >= m.cfg.NudgeAfter {
		m.cfg.Logger.Info("caller silent past nudge threshold", "idle", idle)
		m.nudged = true
		m.nudgedAt = now
		if m.cfg.OnNudge != nil {
			m.cfg.OnNudge()
		}
	}
	return false
}
