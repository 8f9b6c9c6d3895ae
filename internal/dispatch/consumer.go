package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/vigilai/vigil-core/internal/metrics"
	"github.com/vigilai/vigil-core/internal/pipeline"
)

const (
	fetchBatch    = 8
	fetchWait     = 2 * time.Second
	claimNakDelay = 15 * time.Second
	errorNakDelay = 5 * time.Second
)

// Handler processes one dequeued asset.
type Handler func(ctx context.Context, assetID uuid.UUID) error

// Consumer pulls jobs from the work queue and fans them out to a bounded
// set of concurrent handlers.
type Consumer struct {
	sub      *nats.Subscription
	handler  Handler
	workers  int
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer binds a durable pull consumer to the stream. All worker
// processes share the durable name, so the stream load-balances jobs across
// them.
func NewConsumer(nc *nats.Conn, stream, subject string, workers int, handler Handler) (*Consumer, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	sub, err := js.PullSubscribe(subject, "media-workers",
		nats.BindStream(stream),
		nats.ManualAck(),
		nats.AckWait(2*time.Minute),
	)
	if err != nil {
		return nil, err
	}

	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		sub:      sub,
		handler:  handler,
		workers:  workers,
		stopChan: make(chan struct{}),
	}, nil
}

// Start launches the fetch loop. Blocks until Stop is called.
func (c *Consumer) Start() {
	log.Printf("[Dispatch] Consumer started with %d workers", c.workers)

	sem := make(chan struct{}, c.workers)
	for {
		select {
		case <-c.stopChan:
			c.wg.Wait()
			log.Println("[Dispatch] Consumer stopped")
			return
		default:
		}

		msgs, err := c.sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Printf("[Dispatch] Fetch error: %v", err)
			time.Sleep(errorNakDelay)
			continue
		}

		for _, msg := range msgs {
			sem <- struct{}{}
			c.wg.Add(1)
			go func(m *nats.Msg) {
				defer c.wg.Done()
				defer func() { <-sem }()
				c.dispatch(m)
			}(msg)
		}
	}
}

// Stop signals the fetch loop and waits for in-flight handlers to drain.
func (c *Consumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
}

func (c *Consumer) dispatch(msg *nats.Msg) {
	assetID, err := uuid.Parse(string(msg.Data))
	if err != nil {
		// Poison message: redelivery cannot fix a malformed body.
		log.Printf("[Dispatch] Dropping malformed job %q: %v", msg.Data, err)
		if err := msg.Term(); err != nil {
			log.Printf("[Dispatch] Term error: %v", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err = c.handler(ctx, assetID)
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			log.Printf("[Dispatch] Ack error for asset %s: %v", assetID, err)
		}
	case errors.Is(err, pipeline.ErrAlreadyClaimed):
		// Another worker holds the lease; come back after it has had time
		// to finish or expire.
		c.nak(msg, assetID, claimNakDelay)
	default:
		log.Printf("[Dispatch] Asset %s handler error: %v", assetID, err)
		c.nak(msg, assetID, errorNakDelay)
	}
}

func (c *Consumer) nak(msg *nats.Msg, assetID uuid.UUID, delay time.Duration) {
	metrics.QueueRedeliveriesTotal.Inc()
	if err := msg.NakWithDelay(delay); err != nil {
		log.Printf("[Dispatch] Nak error for asset %s: %v", assetID, err)
	}
}
