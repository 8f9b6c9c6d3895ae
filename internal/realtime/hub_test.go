package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilai/vigil-core/internal/data"
)

// fakeConn is an in-memory Conn. Reads are fed through a channel; writes
// are recorded. Closing unblocks any pending read.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte
	closed  bool
	failAll bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, msg, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll || c.closed {
		return errors.New("broken pipe")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.written = append(c.written, cp)
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAll = true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *fakeConn) messages(t *testing.T, want int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		n := len(c.written)
		c.mu.Unlock()
		if n >= want {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub count never reached %d (got %d)", want, h.Count())
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for _, c := range conns {
		h.Subscribe(c)
	}

	alert := &data.Alert{ID: uuid.New(), Severity: "critical"}
	h.BroadcastNewAlert(alert)

	for _, c := range conns {
		msgs := c.messages(t, 1)
		require.Len(t, msgs, 1)

		var evt Event
		require.NoError(t, json.Unmarshal(msgs[0], &evt))
		assert.Equal(t, EventNewAlert, evt.Type)
	}
}

func TestDeadSubscriberDoesNotBlockOthers(t *testing.T) {
	h := NewHub()
	healthy1 := newFakeConn()
	dead := newFakeConn()
	healthy2 := newFakeConn()

	h.Subscribe(healthy1)
	deadSub := h.Subscribe(dead)
	h.Subscribe(healthy2)

	dead.fail()
	_ = deadSub

	alert := &data.Alert{ID: uuid.New()}
	h.BroadcastNewAlert(alert)

	assert.Len(t, healthy1.messages(t, 1), 1)
	assert.Len(t, healthy2.messages(t, 1), 1)

	// The failed write prunes the dead subscriber.
	waitForCount(t, h, 2)

	h.BroadcastAlertUpdate(alert.ID, alert)
	assert.Len(t, healthy1.messages(t, 2), 2)
	assert.Len(t, healthy2.messages(t, 2), 2)
}

func TestSaturatedSubscriberIsPruned(t *testing.T) {
	h := NewHub()

	slow := newFakeConn()
	slow.fail()
	sub := h.Subscribe(slow)

	// Flood well past the send buffer. Whether the subscriber dies on the
	// failed write or on buffer saturation, later broadcasts must not
	// panic on its closed channel.
	for i := 0; i < sendBuffer+8; i++ {
		h.Broadcast(Event{Type: EventNewAlert, Data: i})
	}

	waitForCount(t, h, 0)
	// Repeated unsubscribes stay safe.
	h.Unsubscribe(sub)
	h.Broadcast(Event{Type: EventNewAlert})
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(newFakeConn())
	require.Equal(t, 1, h.Count())

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Count())
}

func TestReadLoopAnswersPing(t *testing.T) {
	h := NewHub()
	conn := newFakeConn()
	sub := h.Subscribe(conn)

	done := make(chan struct{})
	go func() {
		sub.ReadLoop()
		close(done)
	}()

	conn.inbound <- []byte(`{"type":"ping"}`)

	msgs := conn.messages(t, 1)
	require.NotEmpty(t, msgs)
	var evt Event
	require.NoError(t, json.Unmarshal(msgs[0], &evt))
	assert.Equal(t, EventPong, evt.Type)

	// Garbage frames are ignored, not fatal.
	conn.inbound <- []byte(`not json`)

	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit on close")
	}
	assert.Equal(t, 0, h.Count())
}

func TestSendToUnknownSubscriberIsNoOp(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(newFakeConn())
	h.Unsubscribe(sub)

	// Must not panic on the closed send channel.
	h.Send(sub, Event{Type: EventConnection})
}
