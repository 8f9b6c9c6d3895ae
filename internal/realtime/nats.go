package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/vigilai/vigil-core/internal/data"
)

// NATSPublisher carries alert events from worker processes to the API
// servers, which relay them onto their local hubs. Best-effort like the
// hub itself: a lost event is not replayed.
type NATSPublisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewNATSPublisher(conn *nats.Conn, subject string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

func (p *NATSPublisher) publish(evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, payload)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

func (p *NATSPublisher) BroadcastNewAlert(a *data.Alert) {
	if err := p.publish(Event{Type: EventNewAlert, Data: a}); err != nil {
		log.Printf("[Realtime] New alert publish error: %v", err)
	}
}

func (p *NATSPublisher) BroadcastAlertUpdate(alertID uuid.UUID, a *data.Alert) {
	if err := p.publish(Event{Type: EventAlertUpdate, AlertID: alertID.String(), Data: a}); err != nil {
		log.Printf("[Realtime] Alert update publish error: %v", err)
	}
}

// NewNATSRelay forwards published alert events onto hub. Events are relayed
// verbatim so the websocket payload is identical whether the alert
// originated in this process or a worker.
func NewNATSRelay(conn *nats.Conn, subject string, hub *Hub) (*nats.Subscription, error) {
	return conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Printf("[Realtime] Relay decode error: %v", err)
			return
		}
		hub.Broadcast(evt)
	})
}
