package executor

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// TruncationNotice ends output that exceeded the per-run limit.
const TruncationNotice = "... output truncated at %d bytes"

// OutputBuffer accumulates one output channel of a single run. Writes past
// the limit are dropped and the buffer is marked truncated; Captured then
// ends with a truncation notice.
type OutputBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	remaining int
	truncated bool
}

// NewOutputBuffer returns a buffer that keeps at most limit bytes.
// A limit <= 0 means unlimited.
func NewOutputBuffer(limit int) *OutputBuffer {
	if limit <= 0 {
		limit = -1
	}
	return &OutputBuffer{limit: limit, remaining: limit}
}

func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remaining < 0 {
		return b.buf.Write(p)
	}
	n := len(p)
	if n > b.remaining {
		p = p[:b.remaining]
		b.truncated = true
	}
	w, _ := b.buf.Write(p)
	b.remaining -= w
	return n, nil
}

// WriteString appends s.
func (b *OutputBuffer) WriteString(s string) {
	_, _ = b.Write([]byte(s))
}

// String returns everything kept so far.
func (b *OutputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Captured returns the kept output, followed by a notice line when writes
// were dropped, so a cut-off result never reads as complete.
func (b *OutputBuffer) Captured() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.buf.String()
	if !b.truncated {
		return out
	}
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out + fmt.Sprintf(TruncationNotice+"\n", b.limit)
}
