// Package checksum computes a digest of everything written through it.
package checksum

import (
	"hash"
	"io"
)

// Writer forwards to an io.Writer and, when a hash is set, hashes exactly the
// bytes the inner writer accepted.
type Writer struct {
	w io.Writer
	h hash.Hash
}

var _ io.Writer = (*Writer)(nil)

// NewWriter wraps w. A nil h disables hashing.
func NewWriter(w io.Writer, h hash.Hash) *Writer {
	return &Writer{w: w, h: h}
}

func (c *Writer) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if c.h != nil && n > 0 {
		c.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the digest so far and resets the hasher. It returns nil when
// hashing is disabled.
func (c *Writer) Sum() []byte {
	if c.h == nil {
		return nil
	}
	sum := c.h.Sum(nil)
	c.h.Reset()
	return sum
}
