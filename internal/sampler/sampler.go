// Package sampler turns a media blob into a lazy, finite sequence of frames
// for the detection adapter. Video sources are decimated to a target sample
// rate; image sources yield a single frame.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vigilai/vigil-core/internal/data"
)

// ErrSourceUnreadable marks a source that could not be opened or decoded.
// It is distinct from an empty sequence so the worker can route the asset to
// failed instead of completed-with-zero-detections.
var ErrSourceUnreadable = errors.New("media source unreadable")

// Frame is one sampled frame, JPEG-encoded for the detector.
type Frame struct {
	Index int
	JPEG  []byte
}

// Sequence is a lazy, non-restartable frame iterator. Next returns io.EOF
// when the sequence is exhausted.
type Sequence interface {
	Next() (*Frame, error)
	Close() error
}

// Opener builds frame sequences from raw media bytes.
type Opener interface {
	Open(ctx context.Context, kind string, src io.Reader) (Sequence, error)
}

// Stride computes the decimation interval for a video source:
// every stride-th decodable frame is kept.
func Stride(sourceFPS float64, targetFPS int) int {
	if targetFPS <= 0 {
		targetFPS = 1
	}
	stride := int(sourceFPS) / targetFPS
	if stride < 1 {
		stride = 1
	}
	return stride
}

// MediaOpener is the production Opener covering both media kinds.
type MediaOpener struct {
	TargetFPS int
}

func (o *MediaOpener) Open(ctx context.Context, kind string, src io.Reader) (Sequence, error) {
	switch kind {
	case data.MediaKindImage:
		return openImage(src)
	case data.MediaKindVideo:
		return openVideo(ctx, src, o.TargetFPS)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrSourceUnreadable, kind)
	}
}
