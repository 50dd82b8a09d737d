package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/decoycall/decoycall/pkg/ai/llm"
	"github.com/decoycall/decoycall/pkg/ai/tts"
	"github.com/decoycall/decoycall/pkg/bus"
	"github.com/decoycall/decoycall/pkg/memory"
	"github.com/decoycall/decoycall/pkg/redact"
	"github.com/decoycall/decoycall/pkg/score"
	"github.com/decoycall/decoycall/pkg/session"
)

// AudioSink is the orchestrator's view of the gateway's outbound side.
// Implementations serialize all writes onto the media connection.
type AudioSink interface {
	// SendAudio ships one µ-law chunk to the caller.
	SendAudio(chunk []byte) error
	// SendMark asks the transport to acknowledge when everything sent
	// before it has finished playing.
	SendMark(name string) error
}

// Instrumentation receives turn-level timing callbacks. Injected,
// never discovered; the default implementation does nothing.
type Instrumentation interface {
	TurnStarted(callID string, utteranceLen int)
	TurnFinished(callID string, elapsed time.Duration, cancelled bool)
}

type nopInstrumentation struct{}

func (nopInstrumentation) TurnStarted(string, int)                  {}
func (nopInstrumentation) TurnFinished(string, time.Duration, bool) {}

// OrchestratorConfig tunes reply generation.
type OrchestratorConfig struct {
	// MaxTurns is the user-turn count that forces an early goodbye.
	// Default 10.
	MaxTurns int
	// EndTag is the completion sentinel the model emits when the
	// scenario has run its course. Stripped before speaking. Default
	// "[END_CALL]".
	EndTag string
	// ApologyLine is spoken when the model fails for a turn.
	ApologyLine string
	// GoodbyeLine is spoken when MaxTurns is reached.
	GoodbyeLine string

	// Instrument observes turn timing. Defaults to a no-op.
	Instrument Instrumentation

	Logger *slog.Logger
}

func (c *OrchestratorConfig) fillDefaults() {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 10
	}
	if c.EndTag == "" {
		c.EndTag = "[END_CALL]"
	}
	if c.ApologyLine == "" {
		c.ApologyLine = "Sorry, I'm having a little trouble hearing you. Could you say that again?"
	}
	if c.GoodbyeLine == "" {
		c.GoodbyeLine = "I've taken up enough of your time. Thanks so much for your help. Goodbye!"
	}
	if c.Instrument == nil {
		c.Instrument = nopInstrumentation{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Orchestrator turns one finalized user utterance into a streamed
// spoken reply. One orchestrator serves one call.
type Orchestrator struct {
	cfg  OrchestratorConfig
	sess *session.Session
	mem  *memory.Conversation
	lm   llm.LLM
	tt   tts.TTS
	sink AudioSink

	markSeq int
}

// NewOrchestrator wires a per-call orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, sess *session.Session, mem *memory.Conversation, lm llm.LLM, tt tts.TTS, sink AudioSink) *Orchestrator {
	cfg.fillDefaults()
	cfg.Logger = cfg.Logger.With("call_id", sess.CallID)
	return &Orchestrator{cfg: cfg, sess: sess, mem: mem, lm: lm, tt: tt, sink: sink}
}

// HandleUtterance runs one full turn: record and score the user's
// words, generate the reply, and stream its audio to the caller. The
// reply is abandoned mid-stream the moment the session generation
// advances past the value captured here.
func (o *Orchestrator) HandleUtterance(ctx context.Context, utterance string) {
	if err := o.sess.Transition(session.StateProcessing); err != nil {
		o.cfg.Logger.Warn("utterance arrived in wrong state, dropping", "err", err)
		return
	}

	started := time.Now()
	cancelled := false
	o.cfg.Instrument.TurnStarted(o.sess.CallID, len(utterance))
	defer func() {
		o.cfg.Instrument.TurnFinished(o.sess.CallID, time.Since(started), cancelled)
	}()

	red := redact.Redact(utterance)
	o.sess.AppendTurn(session.RoleUser, utterance, red.Redacted, 0, 0)
	o.sess.Emit(bus.EventSTTCommit, map[string]any{"text": red.Redacted})
	o.mem.Append(llm.RoleUser, utterance)
	o.scoreUtterance(utterance)

	if o.sess.UserTurnCount() >= o.cfg.MaxTurns {
		o.cfg.Logger.Info("turn limit reached, saying goodbye")
		o.sess.RequestEnd("max_turns")
		cancelled = o.speakReply(ctx, []string{o.cfg.GoodbyeLine}, o.sess.Generation())
		return
	}

	myGeneration := o.sess.Generation()

	sentences, err := o.lm.ChatStream(ctx, o.mem.Messages())
	if err != nil {
		o.cfg.Logger.Error("reply generation failed", "err", err)
		o.sess.RecordError("llm", err.Error())
		cancelled = o.speakReply(ctx, []string{o.cfg.ApologyLine}, myGeneration)
		return
	}

	cancelled = o.streamReply(ctx, sentences, myGeneration)
}

func (o *Orchestrator) scoreUtterance(utterance string) {
	if o.sess.Profile == nil {
		return
	}
	for _, r := range score.Disclosures(utterance, *o.sess.Profile) {
		o.cfg.Logger.Info("disclosure detected",
			"tier", r.Tier.String(), "field", r.Field, "confidence", r.Confidence)
		o.sess.Emit(bus.EventScoring, map[string]any{
			"tier":       r.Tier.String(),
			"field":      r.Field,
			"confidence": r.Confidence,
		})
	}
}

// streamReply consumes the sentence stream, speaking each sentence as
// it lands. It reports whether the reply was abandoned because the
// generation advanced.
func (o *Orchestrator) streamReply(ctx context.Context, sentences <-chan string, myGeneration int64) bool {
	var spoken []string
	var synthesis time.Duration
	var sent int
	aborted := false

	for sentence := range sentences {
		if o.sess.Generation() != myGeneration {
			aborted = true
			break
		}

		if strings.Contains(sentence, o.cfg.EndTag) {
			sentence = strings.TrimSpace(strings.ReplaceAll(sentence, o.cfg.EndTag, ""))
			o.cfg.Logger.Info("completion tag received, ending after this reply")
			o.sess.RequestEnd("scenario_complete")
		}

		sentence = SanitizeForTTS(sentence)
		if sentence == "" {
			continue
		}

		d, n, err := o.speakSentence(ctx, sentence, myGeneration, len(spoken) == 0)
		synthesis += d
		sent += n
		if err != nil {
			if err == errStaleGeneration {
				aborted = true
				break
			}
			// Synthesis failed twice; the sentence is lost but the
			// reply continues.
			o.cfg.Logger.Warn("sentence dropped after synthesis retry", "err", err)
			o.sess.RecordError("tts", err.Error())
			continue
		}
		spoken = append(spoken, sentence)
	}

	if aborted {
		o.sess.Emit(bus.EventGenerationCancelled, map[string]any{
			"generation": myGeneration,
		})
		o.cfg.Logger.Info("reply cancelled mid-stream", "generation", myGeneration)
	}

	o.finishReply(spoken, synthesis, sent, aborted)
	return aborted
}

// speakReply speaks pre-composed lines through the same generation
// checked path as generated replies.
func (o *Orchestrator) speakReply(ctx context.Context, lines []string, myGeneration int64) bool {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return o.streamReply(ctx, ch, myGeneration)
}

// SpeakLine speaks one standalone agent line outside the
// utterance-driven flow: the greeting, silence nudges, and farewells.
// recordTurn controls whether the line enters the transcript and the
// conversation context.
func (o *Orchestrator) SpeakLine(ctx context.Context, line string, recordTurn bool) {
	if err := o.sess.Transition(session.StateProcessing); err != nil {
		o.cfg.Logger.Warn("cannot speak line in current state", "err", err)
		return
	}
	myGeneration := o.sess.Generation()

	line = SanitizeForTTS(line)
	d, n, err := o.speakSentence(ctx, line, myGeneration, true)
	if err != nil {
		if err != errStaleGeneration {
			o.cfg.Logger.Warn("standalone line dropped", "err", err)
			o.sess.RecordError("tts", err.Error())
		}
		o.finishReply(nil, d, n, err == errStaleGeneration)
		return
	}

	var spoken []string
	if recordTurn {
		spoken = []string{line}
	}
	o.finishReply(spoken, d, n, false)
}

// finishReply records the agent turn and closes out the speaking phase.
func (o *Orchestrator) finishReply(spoken []string, synthesis time.Duration, sent int, aborted bool) {
	if len(spoken) > 0 {
		reply := strings.Join(spoken, " ")
		red := redact.Redact(reply)
		o.mem.Append(llm.RoleAssistant, reply)
		o.sess.AppendTurn(session.RoleAgent, reply, red.Redacted, synthesis, sent)
		o.sess.AddSynthesisTime(synthesis)
		o.sess.Emit(bus.EventAgentReply, map[string]any{
			"text":      red.Redacted,
			"cancelled": aborted,
		})
	}

	if sent > 0 && !aborted {
		// The transport echoes this mark back once playback finishes;
		// the gateway flips the state to listening on that ack.
		o.markSeq++
		name := fmt.Sprintf("agent_turn_%d", o.markSeq)
		if err := o.sink.SendMark(name); err != nil {
			o.cfg.Logger.Warn("mark send failed", "err", err)
		}
		return
	}

	if aborted {
		// Barge-in already moved the state machine to listening.
		return
	}

	// Nothing was sent, so no mark ack will ever arrive. Walk the state
	// machine back to listening by hand.
	if o.sess.State() == session.StateProcessing {
		_ = o.sess.Transition(session.StateSpeaking)
	}
	_ = o.sess.Transition(session.StateListening)
}

var errStaleGeneration = fmt.Errorf("generation advanced")

// speakSentence synthesizes one sentence and forwards its audio,
// checking the generation before every send. firstOfReply resets the
// playback estimate clock.
func (o *Orchestrator) speakSentence(ctx context.Context, sentence string, myGeneration int64, firstOfReply bool) (time.Duration, int, error) {
	started := time.Now()
	req := tts.Request{Text: sentence, Voice: o.sess.VoiceID}

	chunks, err := o.tt.SynthesizeStream(ctx, req)
	if err != nil {
		o.cfg.Logger.Warn("streaming synthesis failed, retrying one-shot", "err", err)
		buf, ferr := o.tt.Synthesize(ctx, req)
		if ferr != nil {
			return time.Since(started), 0, ferr
		}
		n, serr := o.sendChunk(buf, myGeneration, firstOfReply)
		return time.Since(started), n, serr
	}

	sent := 0
	for chunk := range chunks {
		n, serr := o.sendChunk(chunk, myGeneration, firstOfReply && sent == 0)
		sent += n
		if serr != nil {
			return time.Since(started), sent, serr
		}
	}
	return time.Since(started), sent, nil
}

// sendChunk delivers one chunk unless the reply has gone stale.
func (o *Orchestrator) sendChunk(chunk []byte, myGeneration int64, firstOfReply bool) (int, error) {
	if len(chunk) == 0 {
		return 0, nil
	}
	if o.sess.Generation() != myGeneration {
		return 0, errStaleGeneration
	}
	if o.sess.State() == session.StateProcessing {
		// First audio byte of the reply is ready.
		if err := o.sess.Transition(session.StateSpeaking); err != nil {
			return 0, errStaleGeneration
		}
	}
	if err := o.sink.SendAudio(chunk); err != nil {
		return 0, err
	}
	o.sess.NoteAudioSent(len(chunk), firstOfReply)
	return len(chunk), nil
}
