package i2s

import (
	"errors"
	"sync"
	"time"

	"github.com/Devam42/Microfirst/pkg/dma"
)

// DefaultDMABytes is the loopback's per-direction DMA queue capacity.
const DefaultDMABytes = 8 * 1024

// Loopback is an in-process Transceiver for the simulator and tests:
// two DMA rings stand in for the peripheral's queues. A mic feeder
// writes into the inbound ring from outside; a speaker drain consumes
// the outbound ring at whatever rate the simulation wants.
//
// Install and Uninstall are strict: installing over an installed
// configuration or uninstalling an empty bus is an error, so any
// partial-reconfiguration bug in an arbitrator shows up immediately.
type Loopback struct {
	mu         sync.Mutex
	cfg        Config
	installed  bool
	installs   int
	uninstalls int
	in         *dma.Ring
	out        *dma.Ring
}

var errBusTornDown = errors.New("i2s: bus torn down")

// NewLoopback creates an uninstalled loopback transceiver.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Install installs cfg and allocates fresh DMA rings for it.
func (l *Loopback) Install(cfg Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.installed {
		return errors.New("i2s: install over installed configuration")
	}
	l.cfg = cfg
	l.installed = true
	l.installs++
	l.in = dma.NewRing(DefaultDMABytes)
	l.out = dma.NewRing(DefaultDMABytes)
	return nil
}

// Uninstall tears the current configuration down, closing both rings
// so any in-flight feeder or drain unblocks.
func (l *Loopback) Uninstall() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.installed {
		return errors.New("i2s: uninstall with nothing installed")
	}
	l.installed = false
	l.uninstalls++
	l.in.CloseWithError(errBusTornDown)
	l.out.CloseWithError(errBusTornDown)
	l.in, l.out = nil, nil
	return nil
}

// Read drains captured bytes from the inbound ring with a bounded wait.
func (l *Loopback) Read(p []byte, wait time.Duration) (int, error) {
	l.mu.Lock()
	ring := l.in
	l.mu.Unlock()
	if ring == nil {
		return 0, errBusTornDown
	}
	return ring.ReadWait(p, wait)
}

// Write queues playback bytes on the outbound ring, blocking while it
// is full.
func (l *Loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	ring := l.out
	l.mu.Unlock()
	if ring == nil {
		return 0, errBusTornDown
	}
	return ring.Write(p)
}

// FeedMic injects raw capture bytes as if the microphone produced
// them. Blocks while the inbound DMA queue is full.
func (l *Loopback) FeedMic(p []byte) (int, error) {
	l.mu.Lock()
	ring := l.in
	l.mu.Unlock()
	if ring == nil {
		return 0, errBusTornDown
	}
	return ring.Write(p)
}

// DrainSpeaker consumes queued playback bytes, standing in for the
// amplifier clocking data out.
func (l *Loopback) DrainSpeaker(p []byte, wait time.Duration) (int, error) {
	l.mu.Lock()
	ring := l.out
	l.mu.Unlock()
	if ring == nil {
		return 0, errBusTornDown
	}
	return ring.ReadWait(p, wait)
}

// Config returns the installed configuration, if any.
func (l *Loopback) Config() (Config, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg, l.installed
}

// Counts returns how many installs and uninstalls have executed.
// Mode-switch tests assert teardown+setup really re-ran.
func (l *Loopback) Counts() (installs, uninstalls int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.installs, l.uninstalls
}

// Compile-time interface check.
var _ Transceiver = (*Loopback)(nil)
