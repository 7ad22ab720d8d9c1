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

import (
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// ErrUndefinedByte is returned when a value contains one of the five byte
// values that have no character assigned in windows-1252.
var ErrUndefinedByte = errors.New("byte not defined in windows-1252")

// filetimeEpoch is the FILETIME zero point, 1601-01-01 00:00:00 UTC. Tick
// counts are 100 nanosecond intervals since this instant.
var filetimeEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	ticksPerSecond  = 10000000
	timestampLayout = "01-02-2006 15:04:05"
)

// cautionBytes mark positions in a tracking value where the next byte decides
// between continuation and termination.
var cautionBytes = map[byte]bool{0x00: true, 0x32: true, 0x24: true, 0x04: true, 0x06: true}

// byteSwapUint reverses the byte sequence and accumulates it base 256, which
// amounts to reading the sequence as a little-endian unsigned integer.
// Sequences longer than 8 bytes keep the low 8 bytes. Empty input yields 0.
func byteSwapUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// byteSwapHex reverses the byte sequence and returns its lowercase hex
// encoding.
func byteSwapHex(b []byte) string {
	return hex.EncodeToString(reverseBytes(b))
}

func reverseBytes(b []byte) []byte {
	r := make([]byte, len(b))
	for i, c := range b {
		r[len(b)-1-i] = c
	}
	return r
}

// decodeText decodes windows-1252 bytes into a string. The five code points
// left undefined by the code page (0x81, 0x8D, 0x8F, 0x90, 0x9D) fail with
// ErrUndefinedByte; all other bytes map via the charmap table. NUL bytes
// decode to NUL characters and are stripped later by the caller.
func decodeText(b []byte) (string, error) {
	var sb strings.Builder
	for i, c := range b {
		switch c {
		case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
			return "", errors.Wrapf(ErrUndefinedByte, "0x%02x at index %d", c, i)
		}
		sb.WriteRune(charmap.Windows1252.DecodeByte(c))
	}
	return sb.String(), nil
}

// countWordChars counts characters that match \w: Unicode letters, Unicode
// digits and the underscore. Printable-run confirmation is defined in terms
// of this count.
func countWordChars(s string) int {
	n := 0
	for _, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// stripNulls removes all NUL characters. Field names and values are stored
// as wide text with interleaved NULs, so every finalized field passes
// through here.
func stripNulls(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// first returns at most the n leading characters of s. Some field dispatch
// rules only inspect the first characters of a name or value.
func first(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// decodeTimestamp reads a FILETIME field: 4 fixed bytes are skipped, then 8
// bytes hold the little-endian tick count. The result is rendered
// month-day-year, e.g. "01-02-2006 15:04:05". A tick count of 0 renders as
// the epoch itself, 01-01-1601 00:00:00.
func decodeTimestamp(cur *Cursor) (string, error) {
	if err := cur.Skip(4); err != nil {
		return "", errors.Wrap(err, "timestamp truncated")
	}
	raw, err := cur.Read(8)
	if err != nil {
		return "", errors.Wrap(err, "timestamp truncated")
	}
	ticks := byteSwapUint(raw)
	sec := int64(ticks / ticksPerSecond)
	nsec := int64(ticks%ticksPerSecond) * 100
	t := time.Unix(filetimeEpoch.Unix()+sec, nsec).UTC()
	return t.Format(timestampLayout), nil
}

// decodeIdentifier reads the 16 byte GUID that Windows writes in its mixed
// endian layout: five groups of 4, 2, 2, 2 and 6 bytes, of which the first
// three are stored little-endian. The result is the canonical lowercase
// dash-joined form.
func decodeIdentifier(cur *Cursor) (string, error) {
	sizes := []int{4, 2, 2, 2, 6}
	raw := make([]byte, 0, 16)
	for i, size := range sizes {
		group, err := cur.Read(size)
		if err != nil {
			return "", errors.Wrap(err, "identifier truncated")
		}
		if i < 3 {
			group = reverseBytes(group)
		}
		raw = append(raw, group...)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// scanTrackingValue extracts the raw value of a ThreatTracking field. The
// scan first locates a run of three zero bytes; a run broken by a non-zero
// byte restarts with a fresh read. The three bytes after the run are taken
// unconditionally as the start of the value. From there the value grows byte
// by byte: a caution byte makes the scan peek at the following byte, where a
// zero terminates the value and anything else becomes the current byte. The
// peeked bytes are consumed either way. Running out of input anywhere in
// this scan fails the artifact.
func scanTrackingValue(cur *Cursor) ([]byte, error) {
	zeros := 0
	for zeros < 3 {
		b, err := cur.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "tracking value truncated")
		}
		if b == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
	}

	head, err := cur.Read(3)
	if err != nil {
		return nil, errors.Wrap(err, "tracking value truncated")
	}
	value := append([]byte{}, head...)

	b, err := cur.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "tracking value truncated")
	}
	for {
		for cautionBytes[b] {
			next, err := cur.ReadByte()
			if err != nil {
				return nil, errors.Wrap(err, "tracking value truncated")
			}
			if next == 0x00 {
				return value, nil
			}
			b = next
		}
		value = append(value, b)
		b, err = cur.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "tracking value truncated")
		}
	}
}
