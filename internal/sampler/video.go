package sampler

import (
	"context"
	"fmt"
	"io"
	"os"

	"gocv.io/x/gocv"
)

// videoSequence decodes a video file and yields every stride-th frame as
// JPEG. OpenCV needs a seekable file, so the source stream is spooled to a
// temp file that lives as long as the sequence.
type videoSequence struct {
	ctx    context.Context
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	path   string
	stride int
	next   int // next frame index to read
}

func openVideo(ctx context.Context, src io.Reader, targetFPS int) (Sequence, error) {
	tmp, err := os.CreateTemp("", "vigil-media-*.bin")
	if err != nil {
		return nil, fmt.Errorf("spool video: %w", err)
	}
	path := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: spool video: %v", ErrSourceUnreadable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("spool video: %w", err)
	}

	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: open video: %v", ErrSourceUnreadable, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: video container not decodable", ErrSourceUnreadable)
	}

	return &videoSequence{
		ctx:    ctx,
		cap:    cap,
		mat:    gocv.NewMat(),
		path:   path,
		stride: Stride(cap.Get(gocv.VideoCaptureFPS), targetFPS),
	}, nil
}

func (s *videoSequence) Next() (*Frame, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}

		if ok := s.cap.Read(&s.mat); !ok {
			return nil, io.EOF
		}
		idx := s.next
		s.next++

		if s.mat.Empty() || idx%s.stride != 0 {
			continue
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.mat)
		if err != nil {
			// Undecodable frame mid-stream: skip, keep sampling.
			continue
		}
		jpegData := make([]byte, len(buf.GetBytes()))
		copy(jpegData, buf.GetBytes())
		buf.Close()

		return &Frame{Index: idx, JPEG: jpegData}, nil
	}
}

func (s *videoSequence) Close() error {
	s.mat.Close()
	err := s.cap.Close()
	os.Remove(s.path)
	return err
}
