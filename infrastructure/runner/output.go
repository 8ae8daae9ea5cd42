package runner

import "bytes"

// DefaultMaxOutput is the default number of bytes kept per stream (1MB).
const DefaultMaxOutput = 1 << 20

// tailBuffer keeps the last limit bytes written to it. Package managers
// print their real error at the end, so the tail is what a caller needs.
// It implements io.Writer for exec.Cmd's Stdout/Stderr.
type tailBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	return &tailBuffer{limit: limit}
}

// Write never fails and always reports len(p) to avoid short-write errors.
func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.limit {
		b.truncated = b.truncated || len(p) > b.limit || b.buf.Len() > 0
		b.buf.Reset()
		b.buf.Write(p[len(p)-b.limit:])
		return n, nil
	}
	b.buf.Write(p)
	// Compact once the buffer holds twice the limit, so writes stay amortized O(1).
	if b.buf.Len() > 2*b.limit {
		b.truncated = true
		tail := append([]byte(nil), b.buf.Bytes()[b.buf.Len()-b.limit:]...)
		b.buf.Reset()
		b.buf.Write(tail)
	}
	return n, nil
}

// String returns at most limit trailing bytes.
func (b *tailBuffer) String() string {
	if b.buf.Len() > b.limit {
		return string(b.buf.Bytes()[b.buf.Len()-b.limit:])
	}
	return b.buf.String()
}

// Truncated reports whether any output was discarded.
func (b *tailBuffer) Truncated() bool {
	return b.truncated || b.buf.Len() > b.limit
}
