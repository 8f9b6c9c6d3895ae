// Package realtime fans alert events out to live websocket subscribers.
// Delivery is best-effort and non-durable: there is no replay or backlog,
// and a broken subscriber never blocks or fails delivery to the rest.
package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/vigilai/vigil-core/internal/data"
	"github.com/vigilai/vigil-core/internal/metrics"
)

// Event is the wire envelope pushed to subscribers.
type Event struct {
	Type    string `json:"type"`
	AlertID string `json:"alert_id,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	EventNewAlert    = "new_alert"
	EventAlertUpdate = "alert_update"
	EventConnection  = "connection"
	EventPing        = "ping"
	EventPong        = "pong"
)

// Hub owns the live subscriber set. It is an explicit instance handed to
// the worker and the websocket endpoint, never a package global.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a connection and starts its write pump. The caller
// runs ReadLoop on the returned subscriber until the connection dies.
func (h *Hub) Subscribe(conn Conn) *Subscriber {
	s := &Subscriber{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(float64(n))
	log.Printf("[Hub] Subscriber connected. Total: %d", n)

	go s.writePump()
	return s
}

// Unsubscribe removes the subscriber and closes its connection. Safe to
// call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	h.removeLocked(s)
	h.mu.Unlock()
}

// Broadcast serializes evt once and queues it to every current subscriber.
// A subscriber whose buffer is saturated is pruned on the spot; delivery to
// the others continues uninterrupted.
func (h *Hub) Broadcast(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[Hub] Broadcast marshal error: %v", err)
		return
	}

	h.mu.Lock()
	for s := range h.subs {
		select {
		case s.send <- payload:
		default:
			log.Printf("[Hub] Subscriber send buffer full, pruning")
			metrics.BroadcastDroppedTotal.Inc()
			h.removeLocked(s)
		}
	}
	h.mu.Unlock()
}

// Send queues evt to a single subscriber with the same saturation policy
// as Broadcast.
func (h *Hub) Send(s *Subscriber, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[Hub] Send marshal error: %v", err)
		return
	}

	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		select {
		case s.send <- payload:
		default:
			metrics.BroadcastDroppedTotal.Inc()
			h.removeLocked(s)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) BroadcastNewAlert(a *data.Alert) {
	h.Broadcast(Event{Type: EventNewAlert, Data: a})
}

func (h *Hub) BroadcastAlertUpdate(alertID uuid.UUID, a *data.Alert) {
	h.Broadcast(Event{Type: EventAlertUpdate, AlertID: alertID.String(), Data: a})
}

// removeLocked must be called with h.mu held. Closing the send channel
// terminates the write pump; the membership check makes repeats no-ops.
func (h *Hub) removeLocked(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
	s.conn.Close()
	metrics.BroadcastSubscribers.Set(float64(len(h.subs)))
}
