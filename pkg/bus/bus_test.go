package bus

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestEmitDeliversToSubscribers(t *testing.T) {
	is := is.New(t)

	b := New(nil)
	sub := b.Subscribe("call-1")
	other := b.Subscribe("call-2")

	b.Emit(Event{CallID: "call-1", Type: EventBargeIn})

	select {
	case ev := <-sub.Events:
		is.Equal(ev.Type, EventBargeIn) // event delivered
		is.True(!ev.Timestamp.IsZero()) // timestamp stamped on emit
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case <-other.Events:
		t.Fatal("event leaked to another call's subscriber")
	default:
	}
}

func TestEmitNeverBlocksOnFullQueue(t *testing.T) {
	is := is.New(t)

	b := New(nil)
	sub := b.Subscribe("call-1")

	// Overfill the queue; the surplus must be dropped, not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberQueueSize+50; i++ {
			b.Emit(Event{CallID: "call-1", Type: EventSTTCommit})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber queue")
	}

	is.Equal(len(sub.ch), subscriberQueueSize) // queue holds exactly its capacity
}

func TestCloseCallSignalsSubscribers(t *testing.T) {
	is := is.New(t)

	b := New(nil)
	sub := b.Subscribe("call-1")
	b.CloseCall("call-1")

	_, ok := <-sub.Events
	is.True(!ok) // channel closes as the terminal signal

	// Emitting after close is a no-op.
	b.Emit(Event{CallID: "call-1", Type: EventCallComplete})
}

func TestUnsubscribeRemovesEntry(t *testing.T) {
	is := is.New(t)

	b := New(nil)
	sub := b.Subscribe("call-1")
	b.Unsubscribe("call-1", sub)

	_, ok := <-sub.Events
	is.True(!ok) // unsubscribed channel is closed

	b.mu.Lock()
	_, exists := b.subs["call-1"]
	b.mu.Unlock()
	is.True(!exists) // registry entry removed with the last subscriber
}

func TestEmitRacesSubscriberClose(t *testing.T) {
	b := New(nil)

	subs := make([]*Subscription, 512)
	for i := range subs {
		subs[i] = b.Subscribe("call-1")
	}

	// A monitor disconnecting while the call is still emitting must
	// never panic the emitter.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, sub := range subs {
			b.Unsubscribe("call-1", sub)
		}
	}()

	for i := 0; i < 10000; i++ {
		b.Emit(Event{CallID: "call-1", Type: EventSTTCommit})
	}
	<-done

	// CloseCall shares the same terminal path.
	sub := b.Subscribe("call-2")
	go b.CloseCall("call-2")
	for i := 0; i < 1000; i++ {
		b.Emit(Event{CallID: "call-2", Type: EventSTTCommit})
	}
	<-sub.Events
}

func TestSSEHandlerStreamsEvents(t *testing.T) {
	is := is.New(t)

	b := New(nil)
	mux := http.NewServeMux()
	mux.Handle("GET /monitor/stream/{call_id}", NewSSEHandler(b, nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/monitor/stream/call-9")
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.Header.Get("Content-Type"), "text/event-stream")

	// Give the handler a moment to subscribe before emitting.
	for i := 0; i < 100; i++ {
		b.mu.Lock()
		n := len(b.subs["call-9"])
		b.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.Emit(Event{CallID: "call-9", Type: EventAgentReply, Data: map[string]any{"text": "hello"}})
	b.CloseCall("call-9")

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimRight(line, "\n"))
	}

	body := strings.Join(lines, "\n")
	is.True(strings.Contains(body, "event: agent_reply")) // event record written
	is.True(strings.Contains(body, `"hello"`))            // payload serialized
	is.True(strings.Contains(body, "event: call_ended"))  // terminal record written
}
