// Package device runs the interaction loop: a single-threaded
// cooperative state machine tying the expression player, the audio
// engines, and the uplink round trip together. One Tick drives input
// polling, state transitions, capture pumping, timed frame advances,
// and the idle timeout, in that fixed order.
package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/Devam42/Microfirst/pkg/expr"
	"github.com/Devam42/Microfirst/pkg/uplink"
	"github.com/Devam42/Microfirst/pkg/voice"
)

// State is the interaction state. Expression playback is tracked
// orthogonally: it is stopped while capturing but may run under
// Uploading and PlayingResponse.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateUploading
	StatePlayingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateUploading:
		return "uploading"
	case StatePlayingResponse:
		return "playing-response"
	default:
		return "unknown"
	}
}

// TouchInput is the hold-gesture source, polled once per tick.
type TouchInput interface {
	Held() bool
}

// Options tune the interaction loop. Zero values pick the defaults.
type Options struct {
	// MaxRecord is the worst-case capture duration allocated up
	// front. Default 3s.
	MaxRecord time.Duration

	// MinRecord is the floor under which a capture is discarded as
	// too short. Default 500ms.
	MinRecord time.Duration

	// IdleTimeout starts an unrequested expression when nothing has
	// happened for this long. Default 30s.
	IdleTimeout time.Duration

	// ResponseChunk sizes the network-to-speaker copy buffer.
	// Default 4 KiB.
	ResponseChunk int

	Logger *slog.Logger
}

const (
	defaultMaxRecord     = 3 * time.Second
	defaultMinRecord     = 500 * time.Millisecond
	defaultIdleTimeout   = 30 * time.Second
	defaultResponseChunk = 4 * 1024
)

// Device is the interaction state machine.
type Device struct {
	log      *slog.Logger
	player   *expr.Player
	capture  *voice.Capture
	playback *voice.Playback
	client   *uplink.Client
	touch    TouchInput
	clips    []string

	state State

	maxRecord   time.Duration
	minRecord   time.Duration
	idleTimeout time.Duration

	exprPlaying  bool
	lastFrame    time.Time
	lastActivity time.Time
	sessionID    string

	respBuf []byte

	// now and pick are injection points for deterministic tests.
	now  func() time.Time
	pick func(n int) int
}

// New wires a device from its collaborators. clips is the scanned
// expression catalog; an empty catalog disables expression playback
// but the voice loop still runs.
func New(player *expr.Player, capture *voice.Capture, playback *voice.Playback,
	client *uplink.Client, touch TouchInput, clips []string, opts Options) *Device {

	if opts.MaxRecord <= 0 {
		opts.MaxRecord = defaultMaxRecord
	}
	if opts.MinRecord <= 0 {
		opts.MinRecord = defaultMinRecord
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.ResponseChunk <= 0 {
		opts.ResponseChunk = defaultResponseChunk
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Device{
		log:         opts.Logger,
		player:      player,
		capture:     capture,
		playback:    playback,
		client:      client,
		touch:       touch,
		clips:       clips,
		maxRecord:   opts.MaxRecord,
		minRecord:   opts.MinRecord,
		idleTimeout: opts.IdleTimeout,
		respBuf:     make([]byte, opts.ResponseChunk),
		now:         time.Now,
		pick:        rand.Intn,
	}
	d.lastActivity = d.now()
	return d
}

// State returns the current interaction state.
func (d *Device) State() State { return d.state }

// ExpressionPlaying reports whether an expression clip is active.
func (d *Device) ExpressionPlaying() bool { return d.exprPlaying }

// Tick runs one cooperative loop iteration. It only returns an error
// for conditions fatal to the loop itself; every interaction failure
// is absorbed into an expression-only fallback so the device stays
// responsive offline.
func (d *Device) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	held := d.touch.Held()

	switch d.state {
	case StateIdle:
		if held {
			d.beginCapture(ctx)
		}
	case StateCapturing:
		if !held {
			d.endCapture(ctx)
		}
	}

	if d.state == StateCapturing {
		more, err := d.capture.Pump()
		if err != nil {
			d.log.Error("capture pump failed", "session_id", d.sessionID, "error", err)
			d.capture.Abort()
			d.state = StateIdle
			d.startFallback(ctx)
		} else if !more {
			// Buffer full: max duration reached, same path as a
			// released hold.
			d.endCapture(ctx)
		}
	}

	d.advanceExpression()
	d.checkIdle(ctx)
	return nil
}

// beginCapture stops the expression and allocates the capture buffer,
// retrying once at half duration if the worst-case allocation fails.
func (d *Device) beginCapture(ctx context.Context) {
	d.sessionID = uuid.NewString()
	d.player.Stop()
	d.exprPlaying = false

	err := d.capture.Begin(d.maxRecord)
	if err != nil {
		d.log.Warn("capture allocation failed, retrying smaller",
			"session_id", d.sessionID, "error", err)
		err = d.capture.Begin(d.maxRecord / 2)
	}
	if err != nil {
		d.log.Error("capture unavailable", "session_id", d.sessionID, "error", err)
		d.startFallback(ctx)
		return
	}
	d.state = StateCapturing
	d.markActivity()
	d.log.Info("capture started", "session_id", d.sessionID, "max", d.maxRecord)
}

// endCapture finishes the hold and runs the upload round trip. Too
// short captures are discarded and the expression resumes; everything
// else goes through Uploading and, when the reply carries audio,
// PlayingResponse.
func (d *Device) endCapture(ctx context.Context) {
	rec, err := d.capture.Finish(d.minRecord)
	if err != nil {
		if errors.Is(err, voice.ErrTooShort) {
			d.log.Info("capture discarded", "session_id", d.sessionID, "error", err)
		} else {
			d.log.Error("capture finish failed", "session_id", d.sessionID, "error", err)
		}
		d.state = StateIdle
		d.startFallback(ctx)
		return
	}

	d.state = StateUploading
	d.log.Info("uploading capture",
		"session_id", d.sessionID,
		"bytes", len(rec.Data),
		"duration", rec.Duration)

	resp, err := d.client.Process(ctx, rec.Data)
	rec.Data = nil
	if err != nil {
		d.log.Error("upload failed", "session_id", d.sessionID, "error", err)
		d.state = StateIdle
		d.startFallback(ctx)
		return
	}
	defer resp.Close()

	// The display comes back before the reply audio starts.
	d.startFallback(ctx)
	d.log.Info("server replied",
		"session_id", d.sessionID,
		"success", resp.Success,
		"transcription", resp.Transcription,
		"text", resp.Text,
		"content_length", resp.ContentLength)

	if resp.ContentLength > 0 {
		d.state = StatePlayingResponse
		d.playResponse(resp)
	}
	d.state = StateIdle
	d.markActivity()
}

// playResponse copies reply audio to the speaker chunk by chunk,
// interleaving one expression frame advance whenever the frame
// interval has elapsed. The blocking speaker write paces the network
// reads.
func (d *Device) playResponse(resp *uplink.Response) {
	if err := d.playback.BeginStream(); err != nil {
		d.log.Error("playback begin failed", "session_id", d.sessionID, "error", err)
		return
	}
	defer func() {
		if err := d.playback.EndStream(); err != nil {
			d.log.Error("playback end failed", "session_id", d.sessionID, "error", err)
		}
	}()

	for {
		n, err := resp.Read(d.respBuf)
		if n > 0 {
			if _, werr := d.playback.Feed(d.respBuf[:n]); werr != nil {
				d.log.Error("speaker feed failed", "session_id", d.sessionID, "error", werr)
				return
			}
		}
		d.advanceExpression()
		if err == io.EOF {
			return
		}
		if err != nil {
			d.log.Warn("response stream ended early", "session_id", d.sessionID, "error", err)
			return
		}
	}
}

// advanceExpression renders one frame when the per-frame interval has
// elapsed. A finished non-loop clip or a render failure stops
// expression playback; the idle timer then restarts one later.
func (d *Device) advanceExpression() {
	if !d.exprPlaying {
		return
	}
	interval := d.player.FrameInterval()
	if d.now().Sub(d.lastFrame) < interval {
		return
	}
	d.lastFrame = d.lastFrame.Add(interval)
	finished, err := d.player.AdvanceFrame()
	if err != nil {
		d.log.Warn("expression stopped", "clip", d.player.ClipPath(), "error", err)
		d.exprPlaying = false
		d.markActivity()
		return
	}
	if finished {
		d.exprPlaying = false
		d.markActivity()
	}
}

// checkIdle starts an unrequested expression after the idle timeout.
func (d *Device) checkIdle(ctx context.Context) {
	if d.state != StateIdle || d.exprPlaying {
		return
	}
	if d.now().Sub(d.lastActivity) < d.idleTimeout {
		return
	}
	d.log.Debug("idle timeout, starting expression")
	d.startFallback(ctx)
	d.markActivity()
}

// startFallback loads and starts a random catalog clip so the display
// is never left blank. With an empty catalog it is a no-op.
func (d *Device) startFallback(ctx context.Context) {
	d.markActivity()
	if len(d.clips) == 0 {
		return
	}
	path := d.clips[d.pick(len(d.clips))]
	if err := d.player.Load(ctx, path); err != nil {
		d.log.Error("expression load failed", "clip", path, "error", err)
		d.exprPlaying = false
		return
	}
	d.exprPlaying = true
	d.lastFrame = d.now()
	d.log.Info("expression started", "clip", path)
}

func (d *Device) markActivity() {
	d.lastActivity = d.now()
}
