package voice

import (
	"errors"

	"github.com/Devam42/Microfirst/pkg/i2s"
)

// ErrNoStream is returned by Feed/EndStream with no open stream.
var ErrNoStream = errors.New("voice: no active playback stream")

// Playback streams response audio to the speaker as it arrives.
// Feed pushes into the blocking peripheral write, so a slow network
// paces the speaker and a slow speaker backpressures the network.
// There is no whole-response buffer anywhere.
type Playback struct {
	bus       *i2s.Bus
	streaming bool
	fed       int64
}

// NewPlayback creates a playback engine on the shared bus.
func NewPlayback(bus *i2s.Bus) *Playback {
	return &Playback{bus: bus}
}

// Streaming reports whether a stream is currently open.
func (p *Playback) Streaming() bool { return p.streaming }

// FedBytes returns the total bytes fed into the current stream.
func (p *Playback) FedBytes() int64 { return p.fed }

// BeginStream configures the bus for playback. Any prior bus mode is
// torn down first by the arbitrator.
func (p *Playback) BeginStream() error {
	if err := p.bus.Acquire(i2s.ModePlayback); err != nil {
		return err
	}
	p.streaming = true
	p.fed = 0
	return nil
}

// Feed writes one chunk to the speaker, blocking until the
// peripheral accepts it.
func (p *Playback) Feed(chunk []byte) (int, error) {
	if !p.streaming {
		return 0, ErrNoStream
	}
	n, err := p.bus.Write(chunk)
	p.fed += int64(n)
	return n, err
}

// EndStream closes the stream and releases the bus to idle.
func (p *Playback) EndStream() error {
	if !p.streaming {
		return ErrNoStream
	}
	p.streaming = false
	return p.bus.Release()
}
