package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/decoycall/decoycall/pkg/ai/llm"
	"github.com/decoycall/decoycall/pkg/ai/stt"
	"github.com/decoycall/decoycall/pkg/ai/tts"
	"github.com/decoycall/decoycall/pkg/bus"
	"github.com/decoycall/decoycall/pkg/directory"
	"github.com/decoycall/decoycall/pkg/memory"
	"github.com/decoycall/decoycall/pkg/score"
	"github.com/decoycall/decoycall/pkg/session"
	"github.com/decoycall/decoycall/pkg/voice"
)

// Config wires one gateway with its collaborators and tuning.
type Config struct {
	STT       stt.STT
	TTS       tts.TTS
	LLM       llm.LLM
	Directory directory.Directory
	Bus       *bus.Bus
	Sessions  *session.Manager

	// StoreRawTranscripts includes raw turn text in the saved summary.
	// Off by default; redacted text is always kept.
	StoreRawTranscripts bool

	BargeIn      voice.BargeInConfig
	Orchestrator voice.OrchestratorConfig

	// DebounceWindow is the transcript coalescing window. Default 300ms.
	DebounceWindow time.Duration
	// SilenceNudgeAfter and SilenceGoodbyeAfter are the idle-caller
	// thresholds. Defaults 1500ms and 20s.
	SilenceNudgeAfter   time.Duration
	SilenceGoodbyeAfter time.Duration
	// EchoGuard delays STT re-enable after a playback ack so the tail
	// of the agent's own voice is not recognized. Default 250ms.
	EchoGuard time.Duration
	// SilenceTick is the silence monitor's polling interval. Default 1s.
	SilenceTick time.Duration
	// MarkTimeout forces the speaking state back to listening when the
	// transport never acks a reply. Default 15s.
	MarkTimeout time.Duration
	// DrainTimeout bounds how long teardown waits for queued turn work
	// after the stream ends before cancelling it. Default 5s.
	DrainTimeout time.Duration

	// NudgeLines are spoken, round robin, when the caller goes quiet.
	NudgeLines []string
	// SilenceGoodbyeLine is spoken before hanging up on a silent caller.
	SilenceGoodbyeLine string

	Logger *slog.Logger
}

func (c *Config) fillDefaults() {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 300 * time.Millisecond
	}
	if c.SilenceNudgeAfter <= 0 {
		c.SilenceNudgeAfter = 1500 * time.Millisecond
	}
	if c.SilenceGoodbyeAfter <= 0 {
		c.SilenceGoodbyeAfter = 20 * time.Second
	}
	if c.EchoGuard <= 0 {
		c.EchoGuard = 250 * time.Millisecond
	}
	if c.SilenceTick <= 0 {
		c.SilenceTick = time.Second
	}
	if c.MarkTimeout <= 0 {
		c.MarkTimeout = 15 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	if len(c.NudgeLines) == 0 {
		c.NudgeLines = []string{
			"Hello? Are you still with me?",
			"Sorry, I can't hear anything on my end. Are you there?",
		}
	}
	if c.SilenceGoodbyeLine == "" {
		c.SilenceGoodbyeLine = "It seems like now isn't a good time. I'll try you again later. Goodbye!"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gateway accepts media-stream WebSocket connections and runs one call
// per connection.
type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader
}

// New creates a gateway, applying defaults for zero config fields.
func New(cfg Config) *Gateway {
	cfg.fillDefaults()
	return &Gateway{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the call to completion.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.cfg.Logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	g.runCall(r.Context(), conn)
}

// handshake consumes messages until the start frame arrives. Returns an
// error when the stream stops or disconnects first.
func (g *Gateway) handshake(conn *websocket.Conn) (*startMessage, error) {
	for {
		msg, err := readMessage(conn)
		if err != nil {
			return nil, err
		}
		switch msg.Event {
		case "connected":
			g.cfg.Logger.Info("media stream connected",
				"protocol", msg.Protocol, "version", msg.Version)
		case "start":
			if msg.Start == nil {
				return nil, errors.New("start frame without start body")
			}
			return msg.Start, nil
		case "stop":
			return nil, errors.New("stream stopped before start frame")
		}
	}
}

func readMessage(conn *websocket.Conn) (*streamMessage, error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Malformed frames are skipped, not fatal.
			continue
		}
		return &msg, nil
	}
}

func (g *Gateway) runCall(ctx context.Context, conn *websocket.Conn) {
	start, err := g.handshake(conn)
	if err != nil {
		g.cfg.Logger.Warn("handshake failed", "err", err)
		return
	}

	callID := start.CustomParams["call_id"]
	if callID == "" {
		g.cfg.Logger.Error("start frame carried no call_id, closing")
		return
	}
	logger := g.cfg.Logger.With("call_id", callID)

	call, err := g.cfg.Directory.ResolveCall(ctx, callID)
	if err != nil {
		logger.Error("call did not resolve, closing", "err", err)
		return
	}
	script, err := g.cfg.Directory.Script(ctx, call.ScriptID)
	if err != nil {
		logger.Error("script did not resolve, closing", "err", err)
		return
	}

	sess, err := g.cfg.Sessions.Create(callID)
	if err != nil {
		logger.Error("session rejected", "err", err)
		return
	}
	defer g.cfg.Sessions.Remove(callID)

	sess.CallSID = start.CallSID
	sess.StreamSID = start.StreamSID
	sess.VoiceID = call.VoiceID
	if emp, err := g.cfg.Directory.Employee(ctx, call.EmployeeID); err == nil {
		sess.Profile = &score.EmployeeProfile{
			FullName:   emp.FullName,
			Email:      emp.Email,
			Department: emp.Department,
			JobTitle:   emp.JobTitle,
		}
		if emp.BossID != "" {
			if boss, err := g.cfg.Directory.Employee(ctx, emp.BossID); err == nil {
				sess.Profile.BossName = boss.FullName
			}
		}
	} else if !errors.Is(err, directory.ErrNotFound) {
		logger.Warn("employee lookup failed, scoring disabled", "err", err)
	}

	logger.Info("stream started",
		"stream_sid", start.StreamSID, "call_sid", start.CallSID)

	c := newCall(g.cfg, logger, conn, sess, script)
	c.run(ctx)
}

// activeCall holds the per-call loops and collaborators.
type activeCall struct {
	cfg    Config
	logger *slog.Logger
	conn   *websocket.Conn
	sess   *session.Session
	script directory.Script

	send   *sender
	orch   *voice.Orchestrator
	deb    *voice.Debouncer
	detect *voice.BargeInDetector

	// work serializes turn-producing actions: utterances, nudges, and
	// farewells all speak through one goroutine.
	work chan func()

	// closing signals that no further work should be queued and the
	// frame loop should wind down.
	closing chan struct{}

	// ctx is the per-call context; queued turn work runs under it so a
	// hung collaborator call dies with the call.
	ctx context.Context

	echoMutedTil time.Time
	nudgeIdx     int
}

func newCall(cfg Config, logger *slog.Logger, conn *websocket.Conn, sess *session.Session, script directory.Script) *activeCall {
	c := &activeCall{
		cfg:     cfg,
		logger:  logger,
		conn:    conn,
		sess:    sess,
		script:  script,
		work:    make(chan func(), 16),
		closing: make(chan struct{}),
	}
	c.send = newSender(conn, sess.StreamSID, logger)
	c.detect = voice.NewBargeInDetector(cfg.BargeIn)

	mem := memory.New(script.SystemPrompt, 0)
	ocfg := cfg.Orchestrator
	ocfg.Logger = logger
	c.orch = voice.NewOrchestrator(ocfg, sess, mem, cfg.LLM, cfg.TTS, c.send)

	c.deb = voice.NewDebouncer(voice.DebouncerConfig{
		Window:      cfg.DebounceWindow,
		Logger:      logger,
		OnActivity:  sess.NoteActivity,
		OnUtterance: c.queueUtterance,
	})
	return c
}

func (c *activeCall) queueUtterance(utterance string) {
	c.queueWork(func(ctx context.Context) {
		c.orch.HandleUtterance(ctx, utterance)
	})
}

func (c *activeCall) queueWork(fn func(context.Context)) {
	select {
	case <-c.closing:
	case c.work <- func() { fn(c.ctx) }:
	}
}

func (c *activeCall) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx

	sttStream, err := c.cfg.STT.NewStream(ctx, stt.StreamConfig{
		SampleRate: 8000,
		Language:   "en",
	})
	if err != nil {
		c.logger.Error("stt stream open failed, closing call", "err", err)
		c.teardown(ctx, "stt_unavailable")
		return
	}

	// Transcript loop: recognition commits feed the debouncer.
	transcriptsDone := make(chan struct{})
	go func() {
		defer close(transcriptsDone)
		for t := range sttStream.Transcripts() {
			if t.Err != nil {
				c.logger.Error("stt stream failed", "err", t.Err)
				c.sess.RecordError("stt", t.Err.Error())
				return
			}
			c.deb.Add(t.Text)
		}
	}()

	// Turn worker: one utterance, nudge, or farewell at a time. On
	// closing it drains whatever is already queued, so a flushed
	// trailing utterance still becomes a turn.
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for {
			select {
			case fn := <-c.work:
				fn()
			case <-c.closing:
				for {
					select {
					case fn := <-c.work:
						fn()
					default:
						return
					}
				}
			}
		}
	}()

	// Silence monitor.
	mon := voice.NewSilenceMonitor(voice.SilenceConfig{
		Tick:           c.cfg.SilenceTick,
		NudgeAfter:     c.cfg.SilenceNudgeAfter,
		GoodbyeAfter:   c.cfg.SilenceGoodbyeAfter,
		LastActivity:   c.sess.LastActivity,
		PlaybackEndsAt: c.playbackEndsAt,
		OnNudge:        c.onSilenceNudge,
		OnGoodbye:      c.onSilenceGoodbye,
		Logger:         c.logger,
	})
	go mon.Run(ctx)

	// Greeting: the agent opens the call.
	if c.script.Greeting != "" {
		c.queueWork(func(ctx context.Context) {
			c.orch.SpeakLine(ctx, c.script.Greeting, true)
			c.sess.MarkGreetingSent()
		})
	}

	reason := c.frameLoop(sttStream)

	// Teardown order: flush recognition so trailing speech still
	// becomes a turn, let the worker drain, then persist. The drain is
	// bounded; a collaborator call hung past the grace period is
	// cancelled rather than holding the session open.
	_ = sttStream.CloseSend()
	<-transcriptsDone
	c.deb.Flush()
	close(c.closing)
	select {
	case <-workerDone:
	case <-time.After(c.cfg.DrainTimeout):
		c.logger.Warn("turn worker still busy after stream end, cancelling in-flight work")
		cancel()
		<-workerDone
	}
	c.deb.Stop()
	cancel()

	c.teardown(context.Background(), reason)
}

// frameLoop reads inbound frames until the stream ends. Returns the
// disconnect reason.
func (c *activeCall) frameLoop(sttStream stt.Stream) string {
	for {
		msg, err := readMessage(c.conn)
		if err != nil {
			c.logger.Info("stream disconnected", "err", err)
			return "caller_disconnected"
		}

		switch msg.Event {
		case "media":
			if msg.Media == nil {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil || len(frame) == 0 {
				continue
			}
			c.handleMedia(frame, sttStream)

		case "mark":
			if msg.Mark != nil {
				if done := c.handleMark(msg.Mark.Name); done {
					return "scenario_complete"
				}
			}

		case "dtmf":
			if msg.DTMF != nil {
				c.sess.RecordDTMF(msg.DTMF.Digit)
				c.sess.Emit(bus.EventDTMF, map[string]any{"digit": msg.DTMF.Digit})
			}

		case "stop":
			c.logger.Info("stream stopped by transport")
			return "caller_hangup"
		}
	}
}

func (c *activeCall) handleMedia(frame []byte, sttStream stt.Stream) {
	c.sess.NoteChunkReceived()

	now := time.Now()
	speaking := c.sess.State() == session.StateSpeaking
	sinceAudio := time.Hour // no audio sent yet
	if last := c.sess.LastAudioSentAt(); !last.IsZero() {
		sinceAudio = now.Sub(last)
	}

	if c.detect.Observe(frame, speaking, sinceAudio) {
		c.bargeIn()
		return
	}

	if c.sess.State() == session.StateListening && now.After(c.echoMutedTil) {
		if err := sttStream.Push(frame); err != nil {
			c.logger.Warn("stt push failed", "err", err)
			c.sess.RecordError("stt", err.Error())
		}
	}
}

// bargeIn handles the caller interrupting the agent: drop queued
// playback, invalidate the in-flight reply, and start listening.
func (c *activeCall) bargeIn() {
	c.logger.Info("barge-in detected")
	if err := c.send.SendClear(); err != nil {
		c.logger.Warn("clear send failed", "err", err)
	}
	gen := c.sess.AdvanceGeneration()
	if err := c.sess.Transition(session.StateListening); err != nil {
		c.logger.Warn("barge-in transition rejected", "err", err)
	}
	c.sess.NoteBargeIn()
	c.sess.NoteActivity()
	c.sess.Emit(bus.EventBargeIn, map[string]any{"generation": gen})
}

// handleMark processes a playback acknowledgment. Returns true when the
// call should now end gracefully.
func (c *activeCall) handleMark(name string) bool {
	c.logger.Debug("mark acknowledged", "name", name)
	c.sess.RecordMarkAck(name)
	// The ack is the agent's own playback finishing, not caller
	// activity; the silence clock is fed by the playback estimate
	// instead.
	c.echoMutedTil = time.Now().Add(c.cfg.EchoGuard)

	if c.sess.State() == session.StateSpeaking {
		if err := c.sess.Transition(session.StateListening); err != nil {
			c.logger.Warn("mark transition rejected", "err", err)
		}
	}
	return c.sess.EndRequested()
}

func (c *activeCall) playbackEndsAt() time.Time {
	if c.sess.State() != session.StateSpeaking {
		return time.Time{}
	}
	ends := c.sess.PlaybackEndsAt()
	// A transport that never acks would pin the state machine in
	// speaking forever; past the timeout the watchdog path in the
	// silence monitor may act again.
	if !ends.IsZero() && time.Since(ends) > c.cfg.MarkTimeout {
		c.logger.Warn("mark never acknowledged, forcing listening state")
		if err := c.sess.Transition(session.StateListening); err == nil {
			c.sess.NoteActivity()
		}
		return time.Time{}
	}
	return ends
}

func (c *activeCall) onSilenceNudge() {
	line := c.cfg.NudgeLines[c.nudgeIdx%len(c.cfg.NudgeLines)]
	c.nudgeIdx++
	c.sess.Emit(bus.EventSilenceNudge, map[string]any{"line": line})
	c.queueWork(func(ctx context.Context) {
		c.orch.SpeakLine(ctx, line, false)
	})
}

func (c *activeCall) onSilenceGoodbye() {
	c.sess.Emit(bus.EventSilenceGoodbye, nil)
	c.sess.RequestEnd("silence_timeout")
	c.queueWork(func(ctx context.Context) {
		c.orch.SpeakLine(ctx, c.cfg.SilenceGoodbyeLine, true)
	})
}

// teardown persists the summary and closes out monitoring.
func (c *activeCall) teardown(ctx context.Context, reason string) {
	c.sess.SetDisconnectReason(reason)
	c.send.Close()

	summary := c.sess.Summary("completed", c.cfg.StoreRawTranscripts)
	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.cfg.Directory.SaveSummary(saveCtx, summary); err != nil {
		c.logger.Error("summary save failed", "err", err)
	}

	c.sess.Emit(bus.EventCallComplete, map[string]any{
		"reason": summary.DisconnectReason,
		"turns":  len(summary.Turns),
	})
	if c.cfg.Bus != nil {
		c.cfg.Bus.CloseCall(c.sess.CallID)
	}
	c.logger.Info("call torn down",
		"reason", summary.DisconnectReason, "turns", len(summary.Turns))
}
