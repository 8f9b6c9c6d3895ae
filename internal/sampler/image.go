package sampler

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Image format registrations. JPEG and PNG dominate uploads, the rest
	// cover camera exports that arrive in odd formats.
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageSequence yields exactly one frame at index 0.
type imageSequence struct {
	frame *Frame
	done  bool
}

func openImage(src io.Reader) (Sequence, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrSourceUnreadable, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("%w: re-encode image: %v", ErrSourceUnreadable, err)
	}

	return &imageSequence{frame: &Frame{Index: 0, JPEG: buf.Bytes()}}, nil
}

func (s *imageSequence) Next() (*Frame, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.frame, nil
}

func (s *imageSequence) Close() error { return nil }
