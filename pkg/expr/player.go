package expr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Devam42/Microfirst/pkg/storage"
)

// Playback errors.
var (
	// ErrNotLoaded is returned by AdvanceFrame when no clip is loaded.
	ErrNotLoaded = errors.New("expr: no clip loaded")

	// ErrGeometry is returned by Load when a clip's scan-line group
	// would not fit the pre-allocated chunk buffer.
	ErrGeometry = errors.New("expr: clip geometry exceeds chunk buffer")
)

// PlayState is the player lifecycle state.
type PlayState int

const (
	// Stopped: no clip loaded, no storage handle held.
	Stopped PlayState = iota
	// Ready: clip loaded, positioned, not yet advancing (or finished).
	Ready
	// Playing: at least one frame has been rendered this session.
	Playing
)

// String returns the string representation of the state.
func (s PlayState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Display is the pixel sink collaborator. Implementations render a
// group of consecutive scan lines at the given vertical offset
// immediately; the buffer is reused by the next read and must not be
// retained.
type Display interface {
	PushLines(y, lines int, pix []byte) error
}

// Options configures a Player's fixed memory budget.
type Options struct {
	// LinesPerChunk is the number of scan lines moved per read/render
	// step. Defaults to 20.
	LinesPerChunk int

	// MaxWidth bounds the clip width the chunk buffer is sized for.
	// Defaults to the display's native width.
	MaxWidth int
}

// Player plays expression clips frame by frame. It owns one reusable
// chunk buffer sized at construction (MaxWidth x LinesPerChunk x 2
// bytes) that carries every chunk of every frame of every clip; it is
// never resized at runtime.
type Player struct {
	store   storage.FileStore
	display Display

	linesPerChunk int
	chunk         []byte

	state    PlayState
	finished bool
	manifest Manifest
	stream   *FrameStream
}

// NewPlayer creates a player rendering to display from store.
func NewPlayer(store storage.FileStore, display Display, opts Options) *Player {
	if opts.LinesPerChunk <= 0 {
		opts.LinesPerChunk = 20
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultWidth
	}
	return &Player{
		store:         store,
		display:       display,
		linesPerChunk: opts.LinesPerChunk,
		chunk:         make([]byte, opts.MaxWidth*opts.LinesPerChunk*BytesPerPixel),
	}
}

// State returns the current play state.
func (p *Player) State() PlayState { return p.state }

// Manifest returns the active clip's manifest. Valid while a clip is
// loaded.
func (p *Player) Manifest() Manifest { return p.manifest }

// FrameInterval returns the active clip's frame pacing.
func (p *Player) FrameInterval() time.Duration { return p.manifest.FrameInterval() }

// CurrentFrame returns the index of the next frame to be rendered.
func (p *Player) CurrentFrame() int {
	if p.stream == nil {
		return 0
	}
	return p.stream.Frame()
}

// ClipPath returns the storage path of the loaded clip, or "".
func (p *Player) ClipPath() string {
	if p.stream == nil {
		return ""
	}
	return p.stream.Path()
}

// Load resolves the clip's manifest, opens its frame stream, and
// moves the player to Ready with the frame index at zero. On failure
// the player stays (or becomes) Stopped with no storage handle held.
func (p *Player) Load(ctx context.Context, path string) error {
	p.Stop()

	m, err := ResolveManifest(ctx, p.store, path)
	if err != nil {
		return err
	}
	if m.Width*p.linesPerChunk*BytesPerPixel > len(p.chunk) {
		return fmt.Errorf("%w: width %d", ErrGeometry, m.Width)
	}

	f, err := p.store.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("expr: open clip %s: %w", path, err)
	}

	p.manifest = m
	p.stream = NewFrameStream(f, path, m)
	p.state = Ready
	p.finished = false
	return nil
}

// AdvanceFrame renders the next frame, reading it as consecutive
// scan-line groups through the reusable chunk buffer with no
// read-ahead: each group is handed to the display before the next is
// read.
//
// End of clip is detected by two independent guards, whichever fires
// first: the frame index reaching the manifest's frame count (when
// declared) or the read offset reaching the file size. With Loop set
// the stream resets and the frame renders from offset zero within the
// same call; otherwise the call completing the last frame reports
// finished=true, and later calls keep reporting it without further
// reads until the next Load.
//
// A short read is fatal for the call: the player stops and the error
// is returned.
func (p *Player) AdvanceFrame() (finished bool, err error) {
	if p.stream == nil {
		return false, ErrNotLoaded
	}
	if p.finished {
		return true, nil
	}

	if p.atEnd() {
		if !p.manifest.Loop {
			p.finished = true
			p.state = Ready
			return true, nil
		}
		if err := p.stream.Reset(); err != nil {
			p.Stop()
			return false, err
		}
	}

	height := p.manifest.Height
	lineBytes := p.manifest.Width * BytesPerPixel
	for y := 0; y < height; y += p.linesPerChunk {
		lines := p.linesPerChunk
		if y+lines > height {
			lines = height - y
		}
		n, err := p.stream.ReadChunk(p.chunk[:lines*lineBytes])
		if err != nil {
			p.Stop()
			return false, err
		}
		if err := p.display.PushLines(y, lines, p.chunk[:n]); err != nil {
			// Stop drops the stream, so read the frame index first.
			frame := p.stream.Frame()
			p.Stop()
			return false, fmt.Errorf("expr: render frame %d: %w", frame, err)
		}
	}

	p.stream.EndFrame()
	p.state = Playing

	// A non-looping clip reports finished on the call that completes
	// its last frame; later calls repeat the answer without reads.
	if !p.manifest.Loop && p.atEnd() {
		p.finished = true
		p.state = Ready
		return true, nil
	}
	return false, nil
}

// atEnd reports end of clip by two independent guards, whichever
// fires first: the declared frame count (when known) and the file
// size. The guards can disagree when a sidecar misstates the count;
// the first to fire wins.
func (p *Player) atEnd() bool {
	if p.manifest.Frames > 0 && p.stream.Frame() >= p.manifest.Frames {
		return true
	}
	return p.stream.Offset() >= p.stream.Size()
}

// Stop releases the storage handle from any state. Safe to call when
// already stopped.
func (p *Player) Stop() {
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.state = Stopped
	p.finished = false
}
