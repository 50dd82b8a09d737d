package gateway

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// outboundKind selects what one queued write carries.
type outboundKind int

const (
	outboundMedia outboundKind = iota
	outboundMark
	outboundClear
)

type outbound struct {
	kind  outboundKind
	audio []byte
	name  string
}

// sender serializes every outbound write onto the WebSocket through a
// single goroutine. The gorilla connection does not tolerate concurrent
// writers, and the orchestrator, the barge-in path, and teardown all
// want to send.
type sender struct {
	conn      *websocket.Conn
	streamSID string
	logger    *slog.Logger

	ch chan outbound

	closeOnce sync.Once
	done      chan struct{}
	finished  chan struct{}
}

func newSender(conn *websocket.Conn, streamSID string, logger *slog.Logger) *sender {
	s := &sender{
		conn:      conn,
		streamSID: streamSID,
		logger:    logger,
		ch:        make(chan outbound, 64),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *sender) run() {
	defer close(s.finished)
	for {
		select {
		case <-s.done:
			return
		case out := <-s.ch:
			if err := s.write(out); err != nil {
				s.logger.Warn("outbound write failed", "err", err)
				s.closeOnce.Do(func() { close(s.done) })
				return
			}
		}
	}
}

func (s *sender) write(out outbound) error {
	var msg streamMessage
	switch out.kind {
	case outboundMedia:
		msg = streamMessage{
			Event:     "media",
			StreamSID: s.streamSID,
			Media: &mediaPayload{
				Payload: base64.StdEncoding.EncodeToString(out.audio),
			},
		}
	case outboundMark:
		msg = streamMessage{
			Event:     "mark",
			StreamSID: s.streamSID,
			Mark:      &markMessage{Name: out.name},
		}
	case outboundClear:
		msg = streamMessage{Event: "clear", StreamSID: s.streamSID}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *sender) enqueue(out outbound) error {
	select {
	case <-s.done:
		return websocket.ErrCloseSent
	case s.ch <- out:
		return nil
	}
}

// SendAudio ships one µ-law chunk to the caller.
func (s *sender) SendAudio(chunk []byte) error {
	return s.enqueue(outbound{kind: outboundMedia, audio: chunk})
}

// SendMark asks the transport to echo the mark back once everything
// sent before it has played.
func (s *sender) SendMark(name string) error {
	return s.enqueue(outbound{kind: outboundMark, name: name})
}

// SendClear tells the transport to drop its queued playback buffer.
// Used on barge-in so the agent falls silent immediately.
func (s *sender) SendClear() error {
	return s.enqueue(outbound{kind: outboundClear})
}

// Close stops the writer goroutine. Queued but unwritten frames are
// discarded.
func (s *sender) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.finished
}
