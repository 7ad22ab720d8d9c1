// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package detectionhistory

import "github.com/pkg/errors"

// ErrEndOfInput is returned by Cursor reads that cannot supply the requested
// number of bytes. During a section pass it marks the end of that section,
// not a failure.
var ErrEndOfInput = errors.New("end of input")

// Cursor is a forward-only reader over an in-memory DetectionHistory buffer.
// There is no seek, rewind or unread: bytes consumed by a lookahead stay
// consumed. Several decoding rules depend on exactly that behavior, so the
// cursor must never grow a way back.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps a raw artifact buffer.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Read returns the next n bytes and advances the cursor. If fewer than n
// bytes remain it returns ErrEndOfInput and does not advance.
func (c *Cursor) Read(n int) ([]byte, error) {
	if c.pos+n > len(c.buf) {
		return nil, ErrEndOfInput
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadByte returns the next single byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, ErrEndOfInput
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// Skip advances the cursor n bytes without interpreting them. If the buffer
// ends early the cursor moves to the end and ErrEndOfInput is returned.
func (c *Cursor) Skip(n int) error {
	if c.pos+n > len(c.buf) {
		c.pos = len(c.buf)
		return ErrEndOfInput
	}
	c.pos += n
	return nil
}

// Position returns the absolute offset from the start of the buffer. The
// ThreatStatusID rule fires on a fixed absolute offset, so decoding needs
// this at every chunk.
func (c *Cursor) Position() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}
