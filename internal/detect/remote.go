package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// ErrDetectorUnavailable marks an infrastructure-level detector failure
// (timeout, no responder). The worker treats it as transient.
var ErrDetectorUnavailable = errors.New("detector unavailable")

// detectRequest is the wire request to the inference service.
type detectRequest struct {
	FrameJPEG []byte  `json:"frame_jpeg"`
	Threshold float64 `json:"threshold"`
}

type detectResponse struct {
	Detections []RawDetection `json:"detections"`
	Error      string         `json:"error,omitempty"`
}

// NATSDetector calls the inference service over NATS request/reply.
// The caller bounds each call with a context deadline.
type NATSDetector struct {
	conn    *nats.Conn
	subject string
}

func NewNATSDetector(conn *nats.Conn, subject string) *NATSDetector {
	return &NATSDetector{conn: conn, subject: subject}
}

func (d *NATSDetector) Detect(ctx context.Context, frameJPEG []byte, threshold float64) ([]Result, error) {
	req, err := json.Marshal(detectRequest{FrameJPEG: frameJPEG, Threshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("marshal detect request: %w", err)
	}

	msg, err := d.conn.RequestWithContext(ctx, d.subject, req)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
		}
		return nil, fmt.Errorf("detect request: %w", err)
	}

	var resp detectResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detector: %s", resp.Error)
	}

	// The service applies its own threshold, but normalization re-checks it
	// so the adapter contract holds regardless of remote behavior.
	return Normalize(resp.Detections, threshold), nil
}
