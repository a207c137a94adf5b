package sandbox

import (
	"bytes"
	"sync"
)

const truncationNote = "\n[output truncated]\n"

// collector captures snippet output up to a byte limit.
type collector struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	maxBytes  int
	truncated bool
}

func newCollector(maxBytes int) *collector {
	return &collector{maxBytes: maxBytes}
}

func (c *collector) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remainingSpace := c.maxBytes - c.buffer.Len()
	if remainingSpace <= 0 {
		c.truncated = true
		return len(p), nil
	}

	toWrite := p
	if len(toWrite) > remainingSpace {
		toWrite = toWrite[:remainingSpace]
		c.truncated = true
	}

	written, err := c.buffer.Write(toWrite)
	if err != nil {
		return written, err
	}

	return len(p), nil
}

func (c *collector) WriteString(s string) {
	_, _ = c.Write([]byte(s))
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return c.buffer.String() + truncationNote
	}
	return c.buffer.String()
}

func (c *collector) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
