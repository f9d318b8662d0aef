// Package dma provides a fixed-capacity blocking byte ring that
// models a peripheral DMA queue: writers block when the queue is full
// (flow control against real-time consumption) and readers drain with
// a bounded wait, the way a peripheral driver polls its DMA buffers.
//
// The ring never grows. Capacity is fixed at construction so memory
// use stays predictable regardless of producer behavior.
package dma

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Ring is a thread-safe fixed-capacity circular byte buffer.
//
// Write blocks while the ring is full. Read blocks while it is empty;
// ReadWait bounds that blocking with a timeout. Close semantics follow
// io.Pipe: CloseWrite lets readers drain to io.EOF, CloseWithError
// unblocks both sides immediately.
type Ring struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []byte
	head, tail int64
	closeWrite bool
	closeErr   error
}

// NewRing creates a ring with the given capacity in bytes.
func NewRing(size int) *Ring {
	r := &Ring{buf: make([]byte, size)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Cap returns the fixed capacity of the ring.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of bytes currently queued.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}

// Write queues all of p, blocking whenever the ring is full until a
// reader drains space. Returns io.ErrClosedPipe wrapped if the write
// side is closed.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return 0, fmt.Errorf("dma: write to closed ring: %w", r.closeErr)
	}
	if r.closeWrite {
		return 0, fmt.Errorf("dma: write to closed ring: %w", io.ErrClosedPipe)
	}

	wn := 0
	size := int64(len(r.buf))
	for len(p) > 0 {
		for r.tail-r.head == size {
			r.cond.Wait()
			if r.closeErr != nil {
				return wn, fmt.Errorf("dma: write to closed ring: %w", r.closeErr)
			}
			if r.closeWrite {
				return wn, fmt.Errorf("dma: write to closed ring: %w", io.ErrClosedPipe)
			}
		}
		avail := int(size - (r.tail - r.head))
		tail := int(r.tail % size)

		var n int
		if tail+avail <= len(r.buf) {
			n = copy(r.buf[tail:tail+avail], p)
		} else {
			n = copy(r.buf[tail:], p)
			n += copy(r.buf[:avail-n], p[n:])
		}

		r.tail += int64(n)
		p = p[n:]
		wn += n
		r.cond.Broadcast()
	}
	return wn, nil
}

// Read reads queued bytes into p, blocking until at least one byte is
// available. Returns io.EOF once the write side is closed and the
// ring has drained.
func (r *Ring) Read(p []byte) (int, error) {
	return r.read(p, nil)
}

// ReadWait reads queued bytes into p, blocking at most wait for data
// to arrive. A timeout returns (0, nil): for a peripheral poll an
// empty quantum is not an error.
func (r *Ring) ReadWait(p []byte, wait time.Duration) (int, error) {
	deadline := time.Now().Add(wait)
	return r.read(p, &deadline)
}

func (r *Ring) read(p []byte, deadline *time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closeErr != nil {
		return 0, fmt.Errorf("dma: read from closed ring: %w", r.closeErr)
	}

	var timer *time.Timer
	if deadline != nil {
		// Broadcast under the lock so a wakeup cannot slip between the
		// deadline check and cond.Wait.
		timer = time.AfterFunc(time.Until(*deadline), func() {
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		})
		defer timer.Stop()
	}

	for r.head == r.tail {
		if r.closeWrite {
			return 0, io.EOF
		}
		if deadline != nil && !time.Now().Before(*deadline) {
			return 0, nil
		}
		r.cond.Wait()
		if r.closeErr != nil {
			return 0, fmt.Errorf("dma: read from closed ring: %w", r.closeErr)
		}
	}

	avail := int(r.tail - r.head)
	head := int(r.head % int64(len(r.buf)))

	var n int
	if head+avail <= len(r.buf) {
		n = copy(p, r.buf[head:head+avail])
	} else {
		n = copy(p, r.buf[head:])
		n += copy(p[n:], r.buf[:avail-n])
	}

	r.head += int64(n)
	r.cond.Broadcast()
	return n, nil
}

// CloseWrite closes the write side. Readers drain remaining bytes and
// then see io.EOF.
func (r *Ring) CloseWrite() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeWrite {
		return nil
	}
	r.closeWrite = true
	r.cond.Broadcast()
	return nil
}

// CloseWithError closes both sides immediately. Pending and future
// operations return the given error (io.ErrClosedPipe if nil).
func (r *Ring) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return nil
	}
	r.closeErr = err
	r.closeWrite = true
	r.cond.Broadcast()
	return nil
}

// Close closes the ring. Equivalent to CloseWithError(nil).
func (r *Ring) Close() error {
	return r.CloseWithError(nil)
}

// Reset discards all queued bytes. The closed state is not affected.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.tail = 0
	r.cond.Broadcast()
}
