package expr

import (
	"fmt"
	"io"

	"github.com/Devam42/Microfirst/pkg/storage"
)

// FrameStream reads one clip file sequentially in chunks that never
// cross a frame boundary. It tracks the read offset and the current
// frame index; the Player owns exactly one FrameStream per playback
// session.
type FrameStream struct {
	f         storage.File
	path      string
	frameSize int64
	offset    int64
	frame     int
}

// NewFrameStream wraps an open clip file with the geometry from its
// manifest.
func NewFrameStream(f storage.File, path string, m Manifest) *FrameStream {
	return &FrameStream{
		f:         f,
		path:      path,
		frameSize: m.FrameSize(),
	}
}

// Path returns the storage path of the underlying clip.
func (s *FrameStream) Path() string { return s.path }

// Size returns the total clip length in bytes.
func (s *FrameStream) Size() int64 { return s.f.Size() }

// Offset returns the current read position.
func (s *FrameStream) Offset() int64 { return s.offset }

// Frame returns the index of the frame the stream is positioned in.
func (s *FrameStream) Frame() int { return s.frame }

// ReadChunk fills p from the stream, clamped so a single call never
// crosses the current frame's end. The full clamped extent must
// arrive: a short read is an error, reported to the caller rather
// than papered over, because a partial scan-line group would shear
// every following frame.
func (s *FrameStream) ReadChunk(p []byte) (int, error) {
	boundary := (s.offset/s.frameSize + 1) * s.frameSize
	max := int64(len(p))
	if rem := boundary - s.offset; rem < max {
		max = rem
	}
	n, err := io.ReadFull(s.f, p[:max])
	s.offset += int64(n)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return n, fmt.Errorf("expr: short read at frame %d offset %d: %w", s.frame, s.offset, io.ErrUnexpectedEOF)
		}
		return n, fmt.Errorf("expr: read %s: %w", s.path, err)
	}
	return n, nil
}

// EndFrame marks the current frame complete, advancing the frame
// index.
func (s *FrameStream) EndFrame() { s.frame++ }

// Reset seeks back to the start of the clip for a loop restart and
// zeroes the frame index.
func (s *FrameStream) Reset() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("expr: rewind %s: %w", s.path, err)
	}
	s.offset = 0
	s.frame = 0
	return nil
}

// Close releases the underlying storage handle.
func (s *FrameStream) Close() error { return s.f.Close() }
