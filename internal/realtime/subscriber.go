package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	// readTimeout bounds subscriber silence. Pings (either websocket
	// control frames or {"type":"ping"} messages) reset it, so dead
	// connections are pruned independently of broadcast traffic.
	readTimeout = 90 * time.Second
)

// Conn is the subset of *websocket.Conn the hub needs; tests inject fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Subscriber is one ephemeral live connection. It carries no persisted
// identity and exists only for the duration of the connection.
type Subscriber struct {
	hub  *Hub
	conn Conn
	send chan []byte
}

// writePump drains the send buffer onto the connection. Any write failure
// prunes this subscriber; the hub and other subscribers are unaffected.
func (s *Subscriber) writePump() {
	for payload := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.hub.Unsubscribe(s)
			// Keep ranging: Unsubscribe closes the channel, which ends
			// the loop after pending messages are discarded.
		}
	}
}

// ReadLoop consumes inbound messages until the connection drops. The only
// client message with meaning is the keepalive ping, answered with a pong.
func (s *Subscriber) ReadLoop() {
	defer s.hub.Unsubscribe(s)

	s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		if evt.Type == EventPing {
			s.hub.Send(s, Event{Type: EventPong})
		}
	}
}
