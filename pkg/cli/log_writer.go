package cli

import (
	"strings"
	"sync"
)

// LogWriter implements io.Writer and keeps the most recent lines for
// the console log pane. Safe for concurrent writers.
type LogWriter struct {
	mu    sync.Mutex
	lines []string
	limit int
}

// NewLogWriter creates a writer retaining at most limit lines.
func NewLogWriter(limit int) *LogWriter {
	return &LogWriter{limit: limit}
}

// Write splits multi-line input and appends each line, dropping the
// oldest lines past the limit.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		w.lines = append(w.lines, line)
	}
	if n := len(w.lines) - w.limit; n > 0 {
		w.lines = append(w.lines[:0], w.lines[n:]...)
	}
	return len(p), nil
}

// Lines returns a copy of the buffered lines.
func (w *LogWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}
