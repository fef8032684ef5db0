// Package cursor contains a position tracking little-endian reader over
// an in-memory buffer
package cursor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned when a read or seek would leave the window
// of the cursor
var ErrOutOfBounds = errors.New("out of bounds")

// Cursor reads from a byte buffer. Positions are always absolute offsets
// into the underlying buffer, even for windowed cursors, so relative
// offsets stored in the data can be resolved without translation.
//
// A Cursor is not safe for concurrent use. Create one per decode call,
// the underlying buffer is never written to.
type Cursor struct {
	buf    []byte
	pos    int
	lo, hi int
}

// New creates a cursor spanning the whole buffer, positioned at 0
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf, hi: len(buf)}
}

// Window returns a new cursor restricted to [start, start+size) of the
// same buffer, positioned at start
func (c *Cursor) Window(start, size int) (*Cursor, error) {
	if start < c.lo || size < 0 || start+size > c.hi || start+size < start {
		return nil, fmt.Errorf("window %d+%d outside %d..%d: %w", start, size, c.lo, c.hi, ErrOutOfBounds)
	}

	return &Cursor{buf: c.buf, pos: start, lo: start, hi: start + size}, nil
}

// Pos returns the current absolute position
func (c *Cursor) Pos() int { return c.pos }

// Start returns the lower bound of the window
func (c *Cursor) Start() int { return c.lo }

// End returns the upper bound (exclusive) of the window
func (c *Cursor) End() int { return c.hi }

// Remaining returns the number of bytes left until the end of the window
func (c *Cursor) Remaining() int { return c.hi - c.pos }

// Contains reports whether [pos, pos+n) is inside the window
func (c *Cursor) Contains(pos, n int) bool {
	return n >= 0 && pos >= c.lo && pos+n <= c.hi && pos+n >= pos
}

// Seek moves to an absolute position inside the window. Seeking to the
// end of the window is allowed.
func (c *Cursor) Seek(pos int) error {
	if pos < c.lo || pos > c.hi {
		return fmt.Errorf("seek to %d outside %d..%d: %w", pos, c.lo, c.hi, ErrOutOfBounds)
	}
	c.pos = pos
	return nil
}

// Skip advances the position by n bytes
func (c *Cursor) Skip(n int) error {
	return c.Seek(c.pos + n)
}

// At runs fn with the cursor positioned at pos and restores the previous
// position afterwards, regardless of how fn returns
func (c *Cursor) At(pos int, fn func(*Cursor) error) (err error) {
	prev := c.pos
	defer func() { c.pos = prev }()

	if err = c.Seek(pos); err != nil {
		return err
	}
	return fn(c)
}

func (c *Cursor) take(n int) ([]byte, error) {
	if !c.Contains(c.pos, n) {
		return nil, fmt.Errorf("reading %d bytes at %d (window end %d): %w", n, c.pos, c.hi, ErrOutOfBounds)
	}

	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadBytes reads n bytes into a newly allocated slice
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Uint8 reads one byte
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Int8 reads one signed byte
func (c *Cursor) Int8() (int8, error) {
	v, err := c.Uint8()
	return int8(v), err //#nosec:G115 // reinterpretation intended
}

// Uint16 reads a little-endian uint16
func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.take(2) //nolint:mnd
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Int16 reads a little-endian int16
func (c *Cursor) Int16() (int16, error) {
	v, err := c.Uint16()
	return int16(v), err //#nosec:G115 // reinterpretation intended
}

// Uint32 reads a little-endian uint32
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.take(4) //nolint:mnd
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Int32 reads a little-endian int32
func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err //#nosec:G115 // reinterpretation intended
}

// Uint64 reads a little-endian uint64
func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.take(8) //nolint:mnd
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int64 reads a little-endian int64
func (c *Cursor) Int64() (int64, error) {
	v, err := c.Uint64()
	return int64(v), err //#nosec:G115 // reinterpretation intended
}

// Float32 reads a little-endian IEEE 754 single
func (c *Cursor) Float32() (float32, error) {
	v, err := c.Uint32()
	return math.Float32frombits(v), err
}

// Float64 reads a little-endian IEEE 754 double
func (c *Cursor) Float64() (float64, error) {
	v, err := c.Uint64()
	return math.Float64frombits(v), err
}

// Tag reads a four character block / chunk tag
func (c *Cursor) Tag() (string, error) {
	b, err := c.take(4) //nolint:mnd
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Offset reads a uint32 holding an offset relative to its own position
// and returns the absolute position it points to. A stored zero yields
// ok=false.
func (c *Cursor) Offset() (pos int, ok bool, err error) {
	field := c.pos

	rel, err := c.Uint32()
	if err != nil || rel == 0 {
		return 0, false, err
	}
	return field + int(rel), true, nil
}

// CString reads a NUL terminated string starting at pos without moving
// the cursor. Strings are resolved against the whole buffer as they are
// not required to live in the block referencing them.
func (c *Cursor) CString(pos int) (string, error) {
	if pos < 0 || pos >= len(c.buf) {
		return "", fmt.Errorf("string at %d: %w", pos, ErrOutOfBounds)
	}

	end := bytes.IndexByte(c.buf[pos:], 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated string at %d: %w", pos, ErrOutOfBounds)
	}
	return string(c.buf[pos : pos+end]), nil
}

// StringAt reads a relative string offset at the current position and
// resolves it. A zero offset yields an empty string.
func (c *Cursor) StringAt() (string, error) {
	pos, ok, err := c.Offset()
	if err != nil || !ok {
		return "", err
	}
	return c.CString(pos)
}

// Tail returns the bytes from the current position up to the end of the
// window without copying and moves to the end
func (c *Cursor) Tail() []byte {
	b := c.buf[c.pos:c.hi]
	c.pos = c.hi
	return b
}
