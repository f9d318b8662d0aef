// Package voice implements the device's half-duplex audio engines:
// bounded-duration microphone capture into a single pre-sized buffer,
// and streaming playback of a response byte stream to the speaker.
// Both sides go through the i2s bus arbitrator, so capture and
// playback can never touch the shared bus at the same time.
package voice

import (
	"errors"
	"fmt"
	"time"

	"github.com/Devam42/Microfirst/pkg/i2s"
	"github.com/Devam42/Microfirst/pkg/pcm"
)

// Capture tuning.
const (
	// Quantum is the slice of audio drained from the peripheral per
	// Pump call. One cooperative tick pulls at most one quantum.
	Quantum = 32 * time.Millisecond

	// QuantumWait bounds how long a Pump call waits for the peripheral
	// to deliver data before giving the loop back.
	QuantumWait = 50 * time.Millisecond

	// MinRecordingBytes is the floor below which a capture is too
	// short to be worth uploading no matter what the clock says.
	MinRecordingBytes = 512
)

// Capture errors.
var (
	// ErrTooShort marks a capture below the minimum duration or byte
	// count; its buffer has already been freed.
	ErrTooShort = errors.New("voice: capture too short")

	// ErrCaptureActive is returned by Begin while a capture buffer
	// already exists. At most one exists at a time.
	ErrCaptureActive = errors.New("voice: capture already active")

	// ErrNoCapture is returned by Pump/Finish with no active capture.
	ErrNoCapture = errors.New("voice: no active capture")
)

// Recording is a finished capture, ready for upload. The Data slice
// is the capture buffer itself; ownership moves to the caller, who
// drops it as soon as the upload is flushed.
type Recording struct {
	Data     []byte
	Duration time.Duration
}

// Capture records microphone audio into one pre-sized buffer.
//
// Begin allocates the buffer for the worst case up front; Pump then
// appends one narrowed quantum per cooperative tick. The raw 32-bit
// scratch buffer is allocated once at construction and reused by
// every quantum of every capture.
type Capture struct {
	bus     *i2s.Bus
	format  pcm.Format
	scratch []byte
	buf     []byte

	// Alloc is the capture-buffer allocator. Replaceable to simulate
	// allocation pressure; the default is a plain make.
	Alloc func(capacity int) ([]byte, error)
}

// NewCapture creates a capture engine recording in the given format.
func NewCapture(bus *i2s.Bus, format pcm.Format) *Capture {
	return &Capture{
		bus:     bus,
		format:  format,
		scratch: make([]byte, 2*format.BytesInDuration(Quantum)),
		Alloc: func(capacity int) ([]byte, error) {
			return make([]byte, 0, capacity), nil
		},
	}
}

// Active reports whether a capture buffer currently exists.
func (c *Capture) Active() bool { return c.buf != nil }

// Bytes returns the number of bytes captured so far.
func (c *Capture) Bytes() int { return len(c.buf) }

// MaxDuration returns the duration the active buffer can hold.
func (c *Capture) MaxDuration() time.Duration {
	return c.format.Duration(int64(cap(c.buf)))
}

// Begin allocates the capture buffer for the worst case (maxDur of
// 16-bit storage samples) and configures the bus for capture. On
// allocation failure nothing is held and the caller may retry with a
// smaller worst case.
func (c *Capture) Begin(maxDur time.Duration) error {
	if c.buf != nil {
		return ErrCaptureActive
	}
	buf, err := c.Alloc(int(c.format.BytesInDuration(maxDur)))
	if err != nil {
		return fmt.Errorf("voice: allocate capture buffer for %v: %w", maxDur, err)
	}
	if err := c.bus.Acquire(i2s.ModeCapture); err != nil {
		return err
	}
	c.buf = buf
	return nil
}

// Pump drains one quantum from the capture peripheral with a bounded
// wait, narrows the 32-bit slots to 16-bit storage samples, and
// appends them. It returns true while there is still room: false
// means the buffer filled, i.e. the maximum duration elapsed. The
// hold condition itself is the caller's to watch between ticks.
func (c *Capture) Pump() (stillCapturing bool, err error) {
	if c.buf == nil {
		return false, ErrNoCapture
	}
	room := cap(c.buf) - len(c.buf)
	if room <= 0 {
		return false, nil
	}
	raw := len(c.scratch)
	if max := room * 2; raw > max {
		raw = max
	}
	n, err := c.bus.Read(c.scratch[:raw], QuantumWait)
	if err != nil {
		return false, err
	}
	c.buf = pcm.Narrow32(c.buf, c.scratch[:n])
	return len(c.buf) < cap(c.buf), nil
}

// Finish ends the capture, releases the bus, and returns the
// recording. A capture under minDur (or under MinRecordingBytes) is
// classified too short: its buffer is freed immediately and
// ErrTooShort returned, protecting the upload pipeline from
// near-empty submissions.
func (c *Capture) Finish(minDur time.Duration) (Recording, error) {
	if c.buf == nil {
		return Recording{}, ErrNoCapture
	}
	if err := c.bus.Release(); err != nil {
		c.buf = nil
		return Recording{}, err
	}
	d := c.format.Duration(int64(len(c.buf)))
	if d < minDur || len(c.buf) < MinRecordingBytes {
		c.buf = nil
		return Recording{}, fmt.Errorf("%w: %v", ErrTooShort, d)
	}
	rec := Recording{Data: c.buf, Duration: d}
	c.buf = nil
	return rec, nil
}

// Abort drops the capture buffer and releases the bus. Safe to call
// with no active capture.
func (c *Capture) Abort() error {
	if c.buf == nil {
		return nil
	}
	c.buf = nil
	return c.bus.Release()
}
