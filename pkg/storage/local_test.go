package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func writeFile(t *testing.T, s FileStore, path, data string) {
	t.Helper()
	ctx := context.Background()
	w, err := s.Write(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLocal_WriteAndRead(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	writeFile(t, s, "expressions/happy/happy.bin", "raw pixels")

	r, err := s.Read(ctx, "expressions/happy/happy.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "raw pixels" {
		t.Errorf("Read = %q; want %q", data, "raw pixels")
	}
}

func TestLocal_OpenSeekAndSize(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	writeFile(t, s, "clip.bin", "0123456789")

	f, err := s.Open(ctx, "clip.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if f.Size() != 10 {
		t.Errorf("Size = %d; want 10", f.Size())
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "0123" {
		t.Errorf("first read = %q; want %q", buf, "0123")
	}

	// Loop restart: back to offset zero.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "0123" {
		t.Errorf("read after Seek(0) = %q; want %q", buf, "0123")
	}
}

func TestLocal_OpenMissing(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.Open(context.Background(), "nope.bin")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open missing = %v; want os.ErrNotExist", err)
	}
}

func TestLocal_ExistsAndDelete(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	writeFile(t, s, "a.txt", "x")

	ok, err := s.Exists(ctx, "a.txt")
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v); want (true, nil)", ok, err)
	}
	if err := s.Delete(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "a.txt")
	if err != nil || ok {
		t.Fatalf("Exists after delete = (%v, %v); want (false, nil)", ok, err)
	}
	// Idempotent.
	if err := s.Delete(ctx, "a.txt"); err != nil {
		t.Errorf("second Delete = %v; want nil", err)
	}
}

func TestLocal_List(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	writeFile(t, s, "expressions/happy/happy.bin", "a")
	writeFile(t, s, "expressions/happy/manifest.txt", "b")
	writeFile(t, s, "expressions/sad/sad.bin", "c")
	writeFile(t, s, "other/file.txt", "d")

	got, err := s.List(ctx, "expressions")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"expressions/happy/happy.bin",
		"expressions/happy/manifest.txt",
		"expressions/sad/sad.bin",
	}
	if len(got) != len(want) {
		t.Fatalf("List = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestLocal_ListMissingPrefix(t *testing.T) {
	s := newTestLocal(t)
	got, err := s.List(context.Background(), "expressions")
	if err != nil {
		t.Fatalf("List on blank store = %v; want nil error", err)
	}
	if len(got) != 0 {
		t.Errorf("List on blank store = %v; want empty", got)
	}
}
