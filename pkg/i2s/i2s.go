// Package i2s arbitrates the one serial audio bus the device has.
//
// The microphone and the speaker amplifier share the bus clock and
// word-select lines, and they disagree on bit depth and direction, so
// capture and playback are mutually exclusive. The arbitrator's
// single rule: before any peripheral-mode operation runs, the
// previous mode's configuration is fully torn down and the new mode's
// fully installed. Partial reuse across a mode switch is disallowed;
// switches cost latency but can never leave cross-mode state behind.
package i2s

import (
	"errors"
	"fmt"
	"time"
)

// Mode identifies the current owner of the bus.
type Mode int

const (
	// ModeIdle: no current owner. Idle is the absence of an installed
	// configuration, not a configuration of its own.
	ModeIdle Mode = iota
	// ModeCapture: the bus is configured for the microphone.
	ModeCapture
	// ModePlayback: the bus is configured for the speaker amplifier.
	ModePlayback
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeCapture:
		return "capture"
	case ModePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Pins is the physical pin assignment for one mode. The clock pins
// are shared between modes; the data pin is not.
type Pins struct {
	BCLK int
	WS   int
	Data int
}

// Config is one mode's complete bus configuration. Everything a mode
// needs is installed together and removed together.
type Config struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
	Pins          Pins
}

// Transceiver is the hardware collaborator behind the arbitrator; it
// moves bytes once a configuration is installed. Read waits at most
// the given duration for data (a timeout returns 0, nil). Write
// blocks without bound until the peripheral accepts all bytes; that
// blocking is the playback path's flow control.
type Transceiver interface {
	Install(cfg Config) error
	Uninstall() error
	Read(p []byte, wait time.Duration) (int, error)
	Write(p []byte) (int, error)
}

// Bus errors.
var (
	// ErrWrongMode is returned when a data operation does not match the
	// installed mode.
	ErrWrongMode = errors.New("i2s: bus not configured for this mode")

	// ErrUnknownMode is returned by Acquire for a mode with no
	// registered configuration.
	ErrUnknownMode = errors.New("i2s: unknown mode")
)

// Bus serializes mode ownership of the shared audio bus.
//
// Bus is not itself thread-safe: the device's single cooperative loop
// is the only writer, and mode reconfiguration is the sole
// synchronization mechanism.
type Bus struct {
	trx      Transceiver
	capture  Config
	playback Config
	mode     Mode
}

// NewBus creates a bus arbitrator over the given transceiver with one
// complete configuration per active mode.
func NewBus(trx Transceiver, capture, playback Config) *Bus {
	return &Bus{trx: trx, capture: capture, playback: playback}
}

// Mode returns the current owner of the bus.
func (b *Bus) Mode() Mode { return b.mode }

// Acquire switches the bus to the given mode: full teardown of the
// previous configuration, then full install of the new one. Acquiring
// the mode already held is idempotent in its final state but still
// re-executes teardown and setup.
func (b *Bus) Acquire(mode Mode) error {
	var cfg Config
	switch mode {
	case ModeCapture:
		cfg = b.capture
	case ModePlayback:
		cfg = b.playback
	case ModeIdle:
		return b.Release()
	default:
		return fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	if prev := b.mode; prev != ModeIdle {
		b.mode = ModeIdle
		if err := b.trx.Uninstall(); err != nil {
			return fmt.Errorf("i2s: teardown %v: %w", prev, err)
		}
	}
	if err := b.trx.Install(cfg); err != nil {
		return fmt.Errorf("i2s: install %v: %w", mode, err)
	}
	b.mode = mode
	return nil
}

// Release returns the bus to Idle, tearing down whatever mode is
// installed. Releasing an idle bus is a no-op.
func (b *Bus) Release() error {
	if b.mode == ModeIdle {
		return nil
	}
	prev := b.mode
	b.mode = ModeIdle
	if err := b.trx.Uninstall(); err != nil {
		return fmt.Errorf("i2s: teardown %v: %w", prev, err)
	}
	return nil
}

// Read drains captured bytes with a bounded wait. Valid only in
// ModeCapture.
func (b *Bus) Read(p []byte, wait time.Duration) (int, error) {
	if b.mode != ModeCapture {
		return 0, fmt.Errorf("%w: read in %v", ErrWrongMode, b.mode)
	}
	return b.trx.Read(p, wait)
}

// Write pushes playback bytes to the peripheral, blocking until all
// are accepted. Valid only in ModePlayback.
func (b *Bus) Write(p []byte) (int, error) {
	if b.mode != ModePlayback {
		return 0, fmt.Errorf("%w: write in %v", ErrWrongMode, b.mode)
	}
	return b.trx.Write(p)
}
