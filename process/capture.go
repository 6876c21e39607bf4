package process

import (
	"bytes"
	"io"
	"sync"
)

// DefaultMaxOutputBytes bounds captured output per stream.
const DefaultMaxOutputBytes = 16 << 20

// stderrTailBytes is how much trailing stderr an Error carries.
const stderrTailBytes = 4 << 10

// capture accumulates output up to limit. The first write past the limit
// calls onOverflow once; later bytes are discarded. Writes never fail so
// the child is not blocked on a broken pipe while it is being terminated.
type capture struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	limit      int64
	overflowed bool
	onOverflow func()
}

func newCapture(limit int64, onOverflow func()) *capture {
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	return &capture{limit: limit, onOverflow: onOverflow}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overflowed {
		return len(p), nil
	}
	room := c.limit - int64(c.buf.Len())
	if int64(len(p)) <= room {
		c.buf.Write(p)
		return len(p), nil
	}
	c.buf.Write(p[:room])
	c.overflowed = true
	if c.onOverflow != nil {
		c.onOverflow()
	}
	return len(p), nil
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *capture) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflowed
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// teeWriter forwards to w and swallows its errors, so a closed terminal
// never stops capture.
type teeWriter struct {
	w io.Writer
}

func (t teeWriter) Write(p []byte) (int, error) {
	_, _ = t.w.Write(p)
	return len(p), nil
}

func outputWriter(c *capture, tee io.Writer) io.Writer {
	if tee == nil {
		return c
	}
	return io.MultiWriter(c, teeWriter{w: tee})
}
