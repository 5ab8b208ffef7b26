package interpreter

import (
	"bytes"
	"io"
	"sync"
	"unicode/utf8"
)

// DefaultMaxOutputBytes caps each captured stream of a single run.
const DefaultMaxOutputBytes = 64 << 10

// boundedBuffer keeps the first limit bytes written to it and silently
// drops the rest. Writes never fail so interpreted code is not disturbed
// by the cap.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// String returns the captured text without a partial trailing rune.
func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.buf.Bytes()
	if b.truncated {
		for len(data) > 0 {
			r, size := utf8.DecodeLastRune(data)
			if r != utf8.RuneError || size > 1 {
				break
			}
			data = data[:len(data)-1]
		}
	}
	return string(data)
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// switchWriter forwards to whatever target is installed. The interpreter
// holds on to its Stdout and Stderr for life, so each run swaps in fresh
// buffers and detaches them afterwards. Goroutines started by a snippet
// that outlive their run write into nothing until the next run attaches.
type switchWriter struct {
	mu     sync.Mutex
	target io.Writer
}

func (w *switchWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.target == nil {
		return len(p), nil
	}
	return w.target.Write(p)
}

func (w *switchWriter) set(target io.Writer) {
	w.mu.Lock()
	w.target = target
	w.mu.Unlock()
}
