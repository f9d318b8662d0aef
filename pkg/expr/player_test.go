package expr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/Devam42/Microfirst/pkg/storage"
)

// recordingDisplay captures every PushLines call.
type recordingDisplay struct {
	pushes []pushRecord
	failAt int // fail on the nth push (1-based); 0 = never
}

type pushRecord struct {
	y, lines int
	bytes    int
	first    uint16 // first pixel value, for content checks
}

func (d *recordingDisplay) PushLines(y, lines int, pix []byte) error {
	if d.failAt > 0 && len(d.pushes)+1 == d.failAt {
		return errors.New("display gone")
	}
	rec := pushRecord{y: y, lines: lines, bytes: len(pix)}
	if len(pix) >= 2 {
		rec.first = binary.LittleEndian.Uint16(pix)
	}
	d.pushes = append(d.pushes, rec)
	return nil
}

// makeClip writes a clip of the given geometry where every pixel of
// frame i has value i, plus a sidecar manifest.
func makeClip(t *testing.T, s *storage.Local, path string, w, h, frames, fps int, loop bool, declared int) {
	t.Helper()
	data := make([]byte, 0, w*h*2*frames)
	for i := 0; i < frames; i++ {
		for p := 0; p < w*h; p++ {
			data = binary.LittleEndian.AppendUint16(data, uint16(i))
		}
	}
	putFile(t, s, path, data)

	manifest := []byte(fmt.Sprintf("width=%d\nheight=%d\nfps=%d\nframes=%d\nloop=%s\n",
		w, h, fps, declared, boolKey(loop)))
	putFile(t, s, manifestPath(path), manifest)
}

func manifestPath(clip string) string {
	return clip[:len(clip)-len(".bin")] + "_manifest.txt"
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func TestPlayer_ChunkingExact(t *testing.T) {
	s := newClipStore(t)
	// 8x8 frame, 2 lines per chunk: exactly 4 reads/pushes per frame,
	// zero partial chunks.
	makeClip(t, s, "expr/a/a.bin", 8, 8, 2, 10, true, 2)

	disp := &recordingDisplay{}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 2, MaxWidth: 8})
	if err := p.Load(context.Background(), "expr/a/a.bin"); err != nil {
		t.Fatal(err)
	}
	if p.State() != Ready {
		t.Fatalf("state after Load = %v; want Ready", p.State())
	}

	if _, err := p.AdvanceFrame(); err != nil {
		t.Fatal(err)
	}
	if len(disp.pushes) != 4 {
		t.Fatalf("pushes per frame = %d; want 4", len(disp.pushes))
	}
	for i, rec := range disp.pushes {
		if rec.y != i*2 || rec.lines != 2 || rec.bytes != 8*2*2 {
			t.Errorf("push %d = %+v; want y=%d lines=2 bytes=32", i, rec, i*2)
		}
		if rec.first != 0 {
			t.Errorf("push %d pixel = %d; want frame 0 content", i, rec.first)
		}
	}
	if p.State() != Playing {
		t.Errorf("state after advance = %v; want Playing", p.State())
	}
}

func TestPlayer_TrailingShortChunk(t *testing.T) {
	s := newClipStore(t)
	// Height 10 with 4-line chunks: two full groups and one 2-line
	// trailing group.
	makeClip(t, s, "expr/b/b.bin", 4, 10, 1, 10, true, 1)

	disp := &recordingDisplay{}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 4, MaxWidth: 4})
	if err := p.Load(context.Background(), "expr/b/b.bin"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AdvanceFrame(); err != nil {
		t.Fatal(err)
	}
	wantLines := []int{4, 4, 2}
	if len(disp.pushes) != len(wantLines) {
		t.Fatalf("pushes = %d; want %d", len(disp.pushes), len(wantLines))
	}
	for i, want := range wantLines {
		if disp.pushes[i].lines != want {
			t.Errorf("push %d lines = %d; want %d", i, disp.pushes[i].lines, want)
		}
	}
}

func TestPlayer_LoopRestartsAtZero(t *testing.T) {
	s := newClipStore(t)
	makeClip(t, s, "expr/c/c.bin", 4, 4, 2, 10, true, 2)

	disp := &recordingDisplay{}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 4, MaxWidth: 4})
	if err := p.Load(context.Background(), "expr/c/c.bin"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if fin, err := p.AdvanceFrame(); err != nil || fin {
			t.Fatalf("frame %d: (fin=%v, err=%v)", i, fin, err)
		}
	}
	// Third advance must loop: frame index back to 0, content from
	// offset 0 (pixel value 0).
	disp.pushes = nil
	fin, err := p.AdvanceFrame()
	if err != nil || fin {
		t.Fatalf("loop advance = (fin=%v, err=%v); want (false, nil)", fin, err)
	}
	if disp.pushes[0].first != 0 {
		t.Errorf("looped frame pixel = %d; want 0 (restart at offset 0)", disp.pushes[0].first)
	}
	if got := p.CurrentFrame(); got != 1 {
		t.Errorf("frame index after loop = %d; want 1", got)
	}
}

func TestPlayer_NonLoopFinishes(t *testing.T) {
	s := newClipStore(t)
	makeClip(t, s, "expr/d/d.bin", 4, 4, 2, 10, false, 2)

	disp := &recordingDisplay{}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 4, MaxWidth: 4})
	if err := p.Load(context.Background(), "expr/d/d.bin"); err != nil {
		t.Fatal(err)
	}

	if fin, err := p.AdvanceFrame(); err != nil || fin {
		t.Fatalf("frame 0 = (fin=%v, err=%v); want (false, nil)", fin, err)
	}
	// The call completing the last frame reports finished.
	fin, err := p.AdvanceFrame()
	if err != nil || !fin {
		t.Fatalf("last frame = (fin=%v, err=%v); want (true, nil)", fin, err)
	}

	// Subsequent calls: finished again, with no further reads.
	before := len(disp.pushes)
	for i := 0; i < 3; i++ {
		fin, err := p.AdvanceFrame()
		if err != nil || !fin {
			t.Fatalf("post-finish advance = (fin=%v, err=%v); want (true, nil)", fin, err)
		}
	}
	if len(disp.pushes) != before {
		t.Errorf("pushes after finish grew from %d to %d; want no reads", before, len(disp.pushes))
	}

	// Load starts a fresh session.
	if err := p.Load(context.Background(), "expr/d/d.bin"); err != nil {
		t.Fatal(err)
	}
	if fin, err := p.AdvanceFrame(); err != nil || fin {
		t.Fatalf("advance after reload = (fin=%v, err=%v); want (false, nil)", fin, err)
	}
}

func TestPlayer_TruncatedClipStops(t *testing.T) {
	s := newClipStore(t)
	// One and a half frames: the second frame's read comes up short.
	data := make([]byte, 4*4*2+16)
	putFile(t, s, "expr/e/e.bin", data)
	putFile(t, s, "expr/e/e_manifest.txt", []byte("width=4\nheight=4\nfps=10\nframes=2\nloop=0\n"))

	disp := &recordingDisplay{}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 4, MaxWidth: 4})
	if err := p.Load(context.Background(), "expr/e/e.bin"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AdvanceFrame(); err != nil {
		t.Fatal(err)
	}
	_, err := p.AdvanceFrame()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short read error = %v; want io.ErrUnexpectedEOF", err)
	}
	if p.State() != Stopped {
		t.Errorf("state after short read = %v; want Stopped", p.State())
	}
}

func TestPlayer_UndeclaredframeCountEndsAtEOF(t *testing.T) {
	s := newClipStore(t)
	// frames=0 declared: only the file-size guard can end the clip.
	makeClip(t, s, "expr/f/f.bin", 4, 4, 3, 10, false, 0)

	disp := &recordingDisplay{}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 4, MaxWidth: 4})
	if err := p.Load(context.Background(), "expr/f/f.bin"); err != nil {
		t.Fatal(err)
	}
	var finishedAt int
	for i := 1; i <= 4; i++ {
		fin, err := p.AdvanceFrame()
		if err != nil {
			t.Fatal(err)
		}
		if fin {
			finishedAt = i
			break
		}
	}
	if finishedAt != 3 {
		t.Errorf("finished at call %d; want 3 (EOF guard)", finishedAt)
	}
}

func TestPlayer_DeclaredCountTruncatesLongFile(t *testing.T) {
	s := newClipStore(t)
	// Three frames on disk, two declared, loop=false: counter guard
	// fires first.
	makeClip(t, s, "expr/g/g.bin", 4, 4, 3, 10, false, 2)

	disp := &recordingDisplay{}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 4, MaxWidth: 4})
	if err := p.Load(context.Background(), "expr/g/g.bin"); err != nil {
		t.Fatal(err)
	}
	if fin, _ := p.AdvanceFrame(); fin {
		t.Fatal("finished after first frame")
	}
	fin, err := p.AdvanceFrame()
	if err != nil || !fin {
		t.Fatalf("second frame = (fin=%v, err=%v); want (true, nil)", fin, err)
	}
}

func TestPlayer_LoadMissingStaysStopped(t *testing.T) {
	s := newClipStore(t)
	p := NewPlayer(s, &recordingDisplay{}, Options{})
	err := p.Load(context.Background(), "expr/none.bin")
	if err == nil {
		t.Fatal("Load missing clip succeeded")
	}
	if p.State() != Stopped {
		t.Errorf("state = %v; want Stopped", p.State())
	}
	if _, err := p.AdvanceFrame(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("AdvanceFrame = %v; want ErrNotLoaded", err)
	}
}

func TestPlayer_GeometryRejected(t *testing.T) {
	s := newClipStore(t)
	makeClip(t, s, "expr/h/h.bin", 64, 4, 1, 10, true, 1)

	p := NewPlayer(s, &recordingDisplay{}, Options{LinesPerChunk: 4, MaxWidth: 8})
	err := p.Load(context.Background(), "expr/h/h.bin")
	if !errors.Is(err, ErrGeometry) {
		t.Fatalf("Load oversized clip = %v; want ErrGeometry", err)
	}
}

func TestPlayer_DisplayErrorStops(t *testing.T) {
	s := newClipStore(t)
	makeClip(t, s, "expr/i/i.bin", 4, 4, 1, 10, true, 1)

	disp := &recordingDisplay{failAt: 1}
	p := NewPlayer(s, disp, Options{LinesPerChunk: 4, MaxWidth: 4})
	if err := p.Load(context.Background(), "expr/i/i.bin"); err != nil {
		t.Fatal(err)
	}
	_, err := p.AdvanceFrame()
	if err == nil {
		t.Fatal("AdvanceFrame with failing display succeeded")
	}
	// The error names the failing frame even though the stream has
	// already been released.
	if !strings.Contains(err.Error(), "render frame 0") {
		t.Errorf("error = %v; want it to name frame 0", err)
	}
	if p.State() != Stopped {
		t.Errorf("state = %v; want Stopped", p.State())
	}
	// Stopped means released: a further advance reports not loaded
	// rather than touching the dropped stream.
	if _, err := p.AdvanceFrame(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("AdvanceFrame after stop err = %v; want ErrNotLoaded", err)
	}
}
