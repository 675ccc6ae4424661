// Package symxlog provides a per-artifact scoped log capture, grounded on
// the teacher's ScopedLogCapture pattern (pkg/rebuild/rebuild/log.go):
// each source's processing run gets its own buffer spliced into the
// shared logger's output, so a failure's log lines can be attached to its
// *_FAILED state for observability without a separate tracing system.
package symxlog

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"
)

// Capture is a scoped log sink for one artifact's processing run. Writes
// go both to the capture buffer (retrievable via String) and through to
// the parent logger, prefixed with the artifact key, so a live tail still
// shows everything while a failed run's lines can be replayed from the
// buffer alone.
type Capture struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	key    string
	parent io.Writer
}

// NewCapture starts a capture scoped to key, tee-ing into parent (may be
// nil to capture only).
func NewCapture(key string, parent io.Writer) *Capture {
	return &Capture{key: key, parent: parent}
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(p)
	if c.parent != nil {
		fmt.Fprintf(c.parent, "[%s] %s", c.key, p)
	}
	return len(p), nil
}

// Logger returns a *log.Logger writing into this capture.
func (c *Capture) Logger() *log.Logger {
	return log.New(c, "", log.LstdFlags)
}

// String returns everything written to this capture so far, for
// attaching to a *_FAILED state's observability record.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
