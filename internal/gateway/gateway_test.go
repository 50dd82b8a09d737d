package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	"github.com/decoycall/decoycall/pkg/ai/llm"
	llmfake "github.com/decoycall/decoycall/pkg/ai/llm/fake"
	sttfake "github.com/decoycall/decoycall/pkg/ai/stt/fake"
	ttsfake "github.com/decoycall/decoycall/pkg/ai/tts/fake"
	"github.com/decoycall/decoycall/pkg/bus"
	"github.com/decoycall/decoycall/pkg/directory"
	"github.com/decoycall/decoycall/pkg/session"
	"github.com/decoycall/decoycall/pkg/voice"
)

type callFixture struct {
	dir      *directory.InMemory
	sttP     *sttfake.FakeSTT
	ttsP     *ttsfake.FakeTTS
	llmP     *llmfake.FakeLLM
	bus      *bus.Bus
	sessions *session.Manager
	server   *httptest.Server
	conn     *websocket.Conn
}

func newCallFixture(t *testing.T, mutate func(*Config)) *callFixture {
	t.Helper()
	f := &callFixture{
		dir:      directory.NewInMemory(),
		sttP:     sttfake.NewFakeSTT(0),
		ttsP:     ttsfake.NewFakeTTS(),
		llmP:     llmfake.NewFakeLLM("Interesting. Tell me more."),
		bus:      bus.New(nil),
		sessions: session.NewManager(nil),
	}
	f.dir.AddScript(directory.Script{
		ID:           "script-1",
		Name:         "it-helpdesk",
		SystemPrompt: "You are an IT helpdesk caller.",
		Greeting:     "Hi, this is Alex from IT support.",
	})
	f.dir.AddEmployee(directory.Employee{
		ID:       "emp-1",
		FullName: "Jordan Banks",
		Email:    "jordan.banks@example.com",
	})
	f.dir.AddCall(directory.Call{
		ID:         "call-1",
		CallSID:    "CA100",
		EmployeeID: "emp-1",
		ScriptID:   "script-1",
	})

	cfg := Config{
		STT:               f.sttP,
		TTS:               f.ttsP,
		LLM:               f.llmP,
		Directory:         f.dir,
		Bus:               f.bus,
		Sessions:          f.sessions,
		DebounceWindow:    10 * time.Millisecond,
		SilenceNudgeAfter: time.Hour, // quiet tests should stay quiet
		EchoGuard:         time.Nanosecond,
		BargeIn:           voice.BargeInConfig{Cooldown: time.Nanosecond},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f.server = httptest.NewServer(New(cfg))
	t.Cleanup(f.server.Close)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	f.conn = conn
	return f
}

func (f *callFixture) send(t *testing.T, msg streamMessage) {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (f *callFixture) handshake(t *testing.T, callID string) {
	t.Helper()
	f.send(t, streamMessage{Event: "connected", Protocol: "Call", Version: "1.0.0"})
	f.send(t, streamMessage{Event: "start", Start: &startMessage{
		StreamSID:    "MZ100",
		CallSID:      "CA100",
		CustomParams: map[string]string{"call_id": callID},
	}})
}

// readUntil reads server frames until one of the wanted event type
// arrives.
func (f *callFixture) readUntil(t *testing.T, event string) streamMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	f.conn.SetReadDeadline(deadline)
	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q frame: %v", event, err)
		}
		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Event == event {
			return msg
		}
	}
}

func (f *callFixture) sendMedia(t *testing.T, frame []byte) {
	t.Helper()
	f.send(t, streamMessage{Event: "media", Media: &mediaPayload{
		Payload: base64.StdEncoding.EncodeToString(frame),
	}})
}

func silentFrame() []byte {
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = 0xFF
	}
	return frame
}

func waitForSummaries(t *testing.T, dir *directory.InMemory) []directory.CallSummary {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := dir.Summaries(); len(s) > 0 {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no summary persisted")
	return nil
}

func TestFullCallFlow(t *testing.T) {
	is := is.New(t)
	f := newCallFixture(t, nil)
	f.handshake(t, "call-1")

	// Greeting plays first.
	media := f.readUntil(t, "media")
	audio, err := base64.StdEncoding.DecodeString(media.Media.Payload)
	is.NoErr(err)
	is.True(len(audio) > 0)
	mark := f.readUntil(t, "mark")
	is.Equal(mark.Mark.Name, "agent_turn_1")
	is.Equal(mark.StreamSID, "MZ100")

	// Ack playback so the agent starts listening.
	f.send(t, streamMessage{Event: "mark", Mark: &markMessage{Name: mark.Mark.Name}})

	// Caller speech: push a frame so STT has a live stream, then commit
	// a transcript through the fake.
	time.Sleep(20 * time.Millisecond) // past the echo guard
	f.sendMedia(t, silentFrame())
	waitFor(t, func() bool { return f.sttP.LastStream() != nil && f.sttP.LastStream().PushedChunks() > 0 })
	f.sttP.LastStream().Emit("hello, who is this")

	// The reply streams back with its own mark.
	reply := f.readUntil(t, "mark")
	is.Equal(reply.Mark.Name, "agent_turn_2")
	f.send(t, streamMessage{Event: "mark", Mark: &markMessage{Name: reply.Mark.Name}})

	// DTMF is recorded, then the caller hangs up.
	f.send(t, streamMessage{Event: "dtmf", DTMF: &dtmfMessage{Digit: "5"}})
	f.send(t, streamMessage{Event: "stop", Stop: &stopMessage{CallSID: "CA100"}})

	summaries := waitForSummaries(t, f.dir)
	is.Equal(len(summaries), 1)
	sum := summaries[0]
	is.Equal(sum.CallID, "call-1")
	is.Equal(sum.CallSID, "CA100")
	is.Equal(sum.StreamSID, "MZ100")
	is.Equal(sum.DisconnectReason, "caller_hangup")
	is.Equal(sum.Metrics.DTMFDigits, 1)
	is.Equal(sum.Metrics.MarksAcked, 2) // greeting and reply playback acks
	is.True(sum.Metrics.AudioBytesSent > 0)

	is.Equal(len(sum.Turns), 3)
	is.Equal(sum.Turns[0].Role, "agent") // the greeting
	is.Equal(sum.Turns[0].RedactedText, "Hi, this is Alex from IT support.")
	is.Equal(sum.Turns[1].Role, "user")
	is.Equal(sum.Turns[1].RedactedText, "hello, who is this")
	is.Equal(sum.Turns[1].Text, "") // raw text withheld by default
	is.Equal(sum.Turns[2].Role, "agent")

	// The session is gone once the call is torn down.
	waitFor(t, func() bool { return f.sessions.Len() == 0 })
}

func TestBargeInClearsPlayback(t *testing.T) {
	is := is.New(t)
	f := newCallFixture(t, nil)
	f.handshake(t, "call-1")

	// Wait for the greeting to start playing, then interrupt without
	// acking the mark: the agent is still speaking.
	f.readUntil(t, "mark")

	loud := make([]byte, 160) // µ-law 0x00 frames decode to full scale
	for i := 0; i < 5; i++ {
		f.sendMedia(t, loud)
	}

	clear := f.readUntil(t, "clear")
	is.Equal(clear.Event, "clear")

	f.send(t, streamMessage{Event: "stop", Stop: &stopMessage{}})
	summaries := waitForSummaries(t, f.dir)
	is.Equal(summaries[0].Metrics.BargeIns, 1)
}

func TestTrailingSpeechFlushedOnStop(t *testing.T) {
	is := is.New(t)
	f := newCallFixture(t, func(cfg *Config) {
		cfg.DebounceWindow = time.Hour // force the teardown flush path
	})
	f.handshake(t, "call-1")

	mark := f.readUntil(t, "mark")
	f.send(t, streamMessage{Event: "mark", Mark: &markMessage{Name: mark.Mark.Name}})

	time.Sleep(20 * time.Millisecond)
	f.sendMedia(t, silentFrame())
	waitFor(t, func() bool { return f.sttP.LastStream() != nil && f.sttP.LastStream().PushedChunks() > 0 })
	f.sttP.LastStream().Emit("wait, one last thing")
	time.Sleep(20 * time.Millisecond)

	f.send(t, streamMessage{Event: "stop", Stop: &stopMessage{}})

	summaries := waitForSummaries(t, f.dir)
	var userTurns []string
	for _, turn := range summaries[0].Turns {
		if turn.Role == "user" {
			userTurns = append(userTurns, turn.RedactedText)
		}
	}
	is.Equal(userTurns, []string{"wait, one last thing"})
}

func TestMissingCallIDClosesStream(t *testing.T) {
	f := newCallFixture(t, nil)
	f.send(t, streamMessage{Event: "connected"})
	f.send(t, streamMessage{Event: "start", Start: &startMessage{StreamSID: "MZ1"}})

	f.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := f.conn.ReadMessage(); err != nil {
			return // server closed on us, as expected
		}
	}
}

func TestUnknownCallClosesStream(t *testing.T) {
	is := is.New(t)
	f := newCallFixture(t, nil)
	f.handshake(t, "no-such-call")

	f.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := f.conn.ReadMessage(); err != nil {
			break
		}
	}
	is.Equal(len(f.dir.Summaries()), 0)
}

func TestStoreRawTranscripts(t *testing.T) {
	is := is.New(t)
	f := newCallFixture(t, func(cfg *Config) {
		cfg.StoreRawTranscripts = true
	})
	f.handshake(t, "call-1")

	mark := f.readUntil(t, "mark")
	f.send(t, streamMessage{Event: "mark", Mark: &markMessage{Name: mark.Mark.Name}})
	f.send(t, streamMessage{Event: "stop", Stop: &stopMessage{}})

	summaries := waitForSummaries(t, f.dir)
	is.Equal(summaries[0].Turns[0].Text, "Hi, this is Alex from IT support.")
}

func TestSilentCallerNudgedOnceThenFarewelled(t *testing.T) {
	is := is.New(t)
	f := newCallFixture(t, func(cfg *Config) {
		cfg.SilenceTick = 5 * time.Millisecond
		cfg.SilenceNudgeAfter = 40 * time.Millisecond
		cfg.SilenceGoodbyeAfter = 200 * time.Millisecond
	})
	f.handshake(t, "call-1")

	// The caller never speaks. Ack every mark the moment it arrives;
	// those acks must not keep the call alive.
	var marks []string
	f.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			break // the server hung up after the goodbye played
		}
		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Event == "mark" {
			marks = append(marks, msg.Mark.Name)
			f.send(t, streamMessage{Event: "mark", Mark: &markMessage{Name: msg.Mark.Name}})
		}
	}

	// Greeting, one nudge, then the farewell.
	is.Equal(marks, []string{"agent_turn_1", "agent_turn_2", "agent_turn_3"})

	summaries := waitForSummaries(t, f.dir)
	is.Equal(summaries[0].DisconnectReason, "silence_timeout")
	waitFor(t, func() bool { return f.sessions.Len() == 0 })
}

// stalledLLM blocks until its context is cancelled, standing in for a
// hung upstream model.
type stalledLLM struct{}

func (stalledLLM) ChatStream(ctx context.Context, _ []llm.Message) (<-chan string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledLLM) Chat(ctx context.Context, _ []llm.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestHungModelCannotStallTeardown(t *testing.T) {
	is := is.New(t)
	f := newCallFixture(t, func(cfg *Config) {
		cfg.LLM = stalledLLM{}
		cfg.DrainTimeout = 50 * time.Millisecond
	})
	f.handshake(t, "call-1")

	mark := f.readUntil(t, "mark")
	f.send(t, streamMessage{Event: "mark", Mark: &markMessage{Name: mark.Mark.Name}})

	time.Sleep(20 * time.Millisecond)
	f.sendMedia(t, silentFrame())
	waitFor(t, func() bool { return f.sttP.LastStream() != nil && f.sttP.LastStream().PushedChunks() > 0 })
	f.sttP.LastStream().Emit("hello, who is this")
	time.Sleep(30 * time.Millisecond) // let the turn reach the stalled model

	f.send(t, streamMessage{Event: "stop", Stop: &stopMessage{}})

	// Teardown must cut the hung turn loose, persist the summary, and
	// release the session.
	summaries := waitForSummaries(t, f.dir)
	is.Equal(summaries[0].DisconnectReason, "caller_hangup")
	is.True(summaries[0].Metrics.Errors > 0) // the abandoned model call is recorded
	waitFor(t, func() bool { return f.sessions.Len() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}
