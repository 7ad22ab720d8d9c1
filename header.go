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
	"bytes"

	"github.com/pkg/errors"
)

// ErrInvalidHeader is returned for buffers that do not start with the
// DetectionHistory magic bytes, or that end before header and identifier are
// complete.
var ErrInvalidHeader = errors.New("invalid DetectionHistory header")

// headerMagic are the fixed first 6 bytes of every DetectionHistory file.
var headerMagic = []byte{0x08, 0x00, 0x00, 0x00, 0x08, 0x00}

// Fixed header layout in front of the first section:
//
//	offset size
//	0      6    magic 08 00 00 00 08 00
//	6      18   unparsed
//	24     16   GUID, groups of 4/2/2/2/6 bytes, first three little-endian
//	40     8    unparsed
//	48          MagicVersion section
const (
	headerPadding  = 18
	postGUIDSkip   = 8
	sectionsOffset = 48
)

// validateHeader checks the magic bytes and decodes the artifact GUID. On
// return the cursor sits at the start of the first section. The GUID is
// mandatory for every record, so truncation inside the header fails the
// artifact instead of ending a section.
func validateHeader(cur *Cursor) (string, error) {
	magic, err := cur.Read(len(headerMagic))
	if err != nil {
		return "", errors.Wrap(ErrInvalidHeader, "too short for magic bytes")
	}
	if !bytes.Equal(magic, headerMagic) {
		return "", errors.Wrapf(ErrInvalidHeader, "got % x, want % x", magic, headerMagic)
	}
	if err := cur.Skip(headerPadding); err != nil {
		return "", errors.Wrap(ErrInvalidHeader, "truncated before identifier")
	}
	guid, err := decodeIdentifier(cur)
	if err != nil {
		return "", errors.Wrap(ErrInvalidHeader, err.Error())
	}
	if err := cur.Skip(postGUIDSkip); err != nil {
		return "", errors.Wrap(ErrInvalidHeader, "truncated after identifier")
	}
	return guid, nil
}
