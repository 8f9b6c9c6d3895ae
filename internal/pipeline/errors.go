package pipeline

import (
	"errors"
	"fmt"
)

// ErrAlreadyClaimed is returned by Acquire while another worker holds a
// live lease on the asset.
var ErrAlreadyClaimed = errors.New("asset already claimed")

// transientError marks a failure worth retrying (blob fetch hiccup, decode
// or detector timeout). Exhausting retries strips the marker, converting it
// into a permanent failure.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as retryable. Transient(nil) is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// permanent unwraps the transient marker so the caller sees the root cause.
func permanent(attempts int, err error) error {
	var t *transientError
	if errors.As(err, &t) {
		err = t.err
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
}
