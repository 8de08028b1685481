package logging

import (
	"bytes"
	"strings"
	"sync"
)

// ConsoleWriter mirrors a guest console into the debug log, one entry per
// line. Carriage returns and trailing blanks are dropped.
type ConsoleWriter struct {
	mu     sync.Mutex
	source string
	buf    bytes.Buffer
}

// NewConsoleWriter returns a writer that tags each line with source.
func NewConsoleWriter(source string) *ConsoleWriter {
	return &ConsoleWriter{source: source}
}

func (w *ConsoleWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Close flushes any partial line.
func (w *ConsoleWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
	return nil
}

func (w *ConsoleWriter) emit(line string) {
	line = strings.TrimRight(strings.ReplaceAll(line, "\r", ""), " \t\n")
	if line == "" {
		return
	}
	Debug(line, "source", w.source)
}
