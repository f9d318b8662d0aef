// Package expr implements expression clip playback: raw RGB565 frame
// streams read from removable storage in scan-line chunks and pushed
// to a display, paced by a sidecar manifest.
//
// A clip is a headerless binary file of concatenated little-endian
// 16-bit-per-pixel frames. Peak memory during playback is one
// scan-line group regardless of resolution: a frame is never held
// whole.
package expr

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Devam42/Microfirst/pkg/storage"
)

// BytesPerPixel is the RGB565 pixel width on the wire and on disk.
const BytesPerPixel = 2

// Defaults substituted when a clip has no sidecar manifest, matching
// the display panel's native portrait geometry.
const (
	DefaultWidth  = 240
	DefaultHeight = 320
	DefaultFPS    = 15
)

// Manifest holds per-clip playback parameters. It is derived once per
// clip and immutable afterwards.
type Manifest struct {
	Width  int
	Height int
	FPS    int
	Frames int // 0 = unknown
	Loop   bool
}

// DefaultManifest returns the parameters assumed for a clip with no
// sidecar: native geometry, default frame rate, looping.
func DefaultManifest() Manifest {
	return Manifest{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
		Loop:   true,
	}
}

// FrameSize returns the byte length of one frame.
func (m Manifest) FrameSize() int64 {
	return int64(m.Width) * int64(m.Height) * BytesPerPixel
}

// FrameInterval returns the wall-clock spacing between frames.
// The FPS invariant (always > 0) makes this safe.
func (m Manifest) FrameInterval() time.Duration {
	return time.Second / time.Duration(m.FPS)
}

// ParseManifest reads `key=value` sidecar text on top of the default
// parameters. Blank lines and lines starting with '#' are ignored,
// whitespace is trimmed, unknown keys are skipped, and the last
// duplicate key wins. A zero or negative fps or geometry value falls
// back to its default: fps must stay positive.
func ParseManifest(r io.Reader) (Manifest, error) {
	m := DefaultManifest()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "width":
			if n > 0 {
				m.Width = n
			}
		case "height":
			if n > 0 {
				m.Height = n
			}
		case "fps":
			if n > 0 {
				m.FPS = n
			}
		case "frames":
			if n >= 0 {
				m.Frames = n
			}
		case "loop":
			m.Loop = n != 0
		}
	}
	if err := sc.Err(); err != nil {
		return m, fmt.Errorf("expr: read manifest: %w", err)
	}
	return m, nil
}

// ResolveManifest resolves playback parameters for the named clip.
//
// Two sidecar naming conventions are tried in order: the clip name
// with its extension replaced by `_manifest.txt`, then a generic
// `manifest.txt` in the clip's directory. Absent both, defaults are
// used and the frame count is estimated from the clip's file size.
// A missing sidecar is not an error; a missing clip is.
func ResolveManifest(ctx context.Context, store storage.FileStore, clipPath string) (Manifest, error) {
	for _, p := range sidecarCandidates(clipPath) {
		rc, err := store.Read(ctx, p)
		if err != nil {
			continue
		}
		m, err := ParseManifest(rc)
		rc.Close()
		if err != nil {
			return m, err
		}
		return m, nil
	}

	m := DefaultManifest()
	f, err := store.Open(ctx, clipPath)
	if err != nil {
		return m, fmt.Errorf("expr: open clip %s: %w", clipPath, err)
	}
	defer f.Close()
	m.Frames = int(f.Size() / m.FrameSize())
	return m, nil
}

// sidecarCandidates returns the manifest paths to probe for a clip,
// in priority order.
func sidecarCandidates(clipPath string) []string {
	base := strings.TrimSuffix(clipPath, path.Ext(clipPath))
	return []string{
		base + "_manifest.txt",
		path.Join(path.Dir(clipPath), "manifest.txt"),
	}
}
