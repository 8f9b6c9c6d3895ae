// Package dispatch carries processing jobs from the ingest path to the
// worker fleet over a durable NATS JetStream work queue. Delivery is
// at-least-once; the pipeline is idempotent against redelivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Queue publishes media processing jobs. The message body is the asset ID;
// everything else is loaded from the database by the worker, so a stale
// queue message can never carry stale asset state.
type Queue struct {
	js      nats.JetStreamContext
	subject string
}

// NewQueue connects the publish side and ensures the backing stream exists
// with work-queue retention, so a message is removed once one consumer acks
// it.
func NewQueue(nc *nats.Conn, stream, subject string) (*Queue, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	return &Queue{js: js, subject: subject}, nil
}

// Enqueue publishes one job and waits for the stream's ack, so callers know
// the job is durable before they report the upload accepted.
func (q *Queue) Enqueue(ctx context.Context, assetID uuid.UUID) error {
	_, err := q.js.Publish(q.subject, []byte(assetID.String()), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("enqueue asset %s: %w", assetID, err)
	}
	return nil
}
