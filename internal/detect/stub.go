package detect

import (
	"context"
	"sync"
)

// StubDetector is the scripted test double for the Detector capability.
// Frames are answered from a queue of raw detection batches; once the queue
// drains, remaining frames yield no detections.
type StubDetector struct {
	mu      sync.Mutex
	batches [][]RawDetection
	err     error
	Calls   int
}

func NewStubDetector(batches ...[]RawDetection) *StubDetector {
	return &StubDetector{batches: batches}
}

// Fail makes every subsequent Detect call return err.
func (d *StubDetector) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *StubDetector) Detect(_ context.Context, _ []byte, threshold float64) ([]Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Calls++
	if d.err != nil {
		return nil, d.err
	}

	var raw []RawDetection
	if len(d.batches) > 0 {
		raw = d.batches[0]
		d.batches = d.batches[1:]
	}
	return Normalize(raw, threshold), nil
}
