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
	"log"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// parseMode tracks what the decoder is currently accumulating.
type parseMode int

const (
	modeNone parseMode = iota
	modeKey
	modeValue
	modeNullRun
)

// Reverse engineered format constants. These encode observed behavior of the
// DetectionHistory writer, not documented structure, and are the first place
// to look when a new Defender build stops decoding.
var (
	// chunkZero delimits names and values in the General and Trailer
	// sections.
	chunkZero = []byte{0x00, 0x00}
	// chunkColon delimits names in the MagicVersion section.
	chunkColon = []byte{0x3A, 0x00}
	// wideFileMarker is the text "file" in the wide character spacing of the
	// MagicVersion section. Its field ends that section.
	wideFileMarker = []byte{0x66, 0x00, 0x69, 0x00, 0x6C, 0x00, 0x65}
	// generalEndFalsePositives are noise sequences that look like the
	// General section terminator but are not. Kept as a literal allow-list.
	generalEndFalsePositives = [][]byte{
		{0x15, 0x00, 0x00, 0x00},
		{0x00, 0x15, 0x00, 0x00},
	}
	// trailerFields are assigned positionally, the byte stream never names
	// them.
	trailerFields = []string{"User", "SpawningProcessName", "SecurityGroup"}
)

const (
	// threatStatusOffset is the absolute offset whose 2-byte chunk holds the
	// ThreatStatusID. The field has no name delimiter in the stream.
	threatStatusOffset = 242
	// magicVersionEndSkip separates the MagicVersion section from the value
	// of its final file field.
	magicVersionEndSkip = 16
	// generalEndSkip follows a confirmed General section terminator.
	generalEndSkip = 4
	// trailerMarkerSkip follows a line feed marker in the Trailer section.
	trailerMarkerSkip = 10
)

// decoder runs the three section passes of one artifact over a shared
// cursor. Mode, the previously completed mode and the active field survive
// section boundaries: the MagicVersion section regularly ends in the middle
// of the file field, whose value the General pass then continues to collect.
type decoder struct {
	cur *Cursor
	rec *Record

	mode  parseMode
	done  parseMode // kind of the part that completed last
	field string    // active field name, set when a name finalizes

	nameBuf  []byte
	valueBuf []byte

	trailerIdx int
}

func newDecoder(cur *Cursor, rec *Record) *decoder {
	return &decoder{cur: cur, rec: rec, mode: modeKey, done: modeNone, trailerIdx: -1}
}

// isLineFeed reports whether a chunk is one of the two line feed marker
// byte orders.
func isLineFeed(chunk []byte) bool {
	return bytes.Equal(chunk, []byte{0x0A, 0x00}) || bytes.Equal(chunk, []byte{0x00, 0x0A})
}

// confirmRun applies the two step printable run check used to leave a null
// run: a chunk with at least one word character pulls 2 more bytes, and at
// least two word characters across the 4 bytes confirm the run. The
// lookahead bytes stay consumed when confirmation fails.
func (d *decoder) confirmRun(chunk []byte) (bool, []byte, error) {
	text, err := decodeText(chunk)
	if err != nil {
		return false, nil, err
	}
	if countWordChars(text) < 1 {
		return false, nil, nil
	}
	more, err := d.cur.Read(2)
	if err != nil {
		return false, nil, err
	}
	run := make([]byte, 0, 4)
	run = append(run, chunk...)
	run = append(run, more...)
	text, err = decodeText(run)
	if err != nil {
		return false, nil, err
	}
	if countWordChars(text) >= 2 {
		return true, run, nil
	}
	return false, nil, nil
}

// checkThreatStatus records the positionally anchored ThreatStatusID when
// the chunk that was just read ends at the fixed offset.
func (d *decoder) checkThreatStatus(chunk []byte) {
	if d.cur.Position() == threatStatusOffset {
		d.rec.Set("ThreatStatusID", byteSwapUint(chunk))
	}
}

// finishName commits the accumulated bytes as a field name in the
// MagicVersion section: decode, strip NULs, register with an empty value.
func (d *decoder) finishName() error {
	text, err := decodeText(d.nameBuf)
	if err != nil {
		return err
	}
	d.nameBuf = nil
	name := stripNulls(text)
	d.rec.Set(name, "")
	d.field = name
	return nil
}

// finishValue commits the accumulated bytes as the value of the active
// field in the MagicVersion section.
func (d *decoder) finishValue() error {
	text, err := decodeText(d.valueBuf)
	if err != nil {
		return err
	}
	d.valueBuf = nil
	d.rec.Set(d.field, stripNulls(text))
	d.field = ""
	return nil
}

// magicVersion decodes the first section, which starts at offset 48 in KEY
// mode. Names end at a colon marker instead of a null run. The section
// normally ends when the wide text "file" shows up in the name buffer; the
// file value itself follows a 16 byte gap and is collected by the General
// pass.
func (d *decoder) magicVersion() error {
	for {
		chunk, err := d.cur.Read(2)
		if err != nil {
			log.Printf("magic version section: input ends at offset %d", d.cur.Position())
			return nil
		}

		switch d.mode {
		case modeKey:
			if bytes.Equal(chunk, chunkColon) {
				if err := d.finishName(); err != nil {
					return err
				}
				d.mode = modeValue
				continue
			}
			d.nameBuf = append(d.nameBuf, chunk...)
			if bytes.Contains(d.nameBuf, wideFileMarker) {
				log.Printf("magic version section ends at offset %d", d.cur.Position())
				if err := d.finishName(); err != nil {
					return err
				}
				d.mode = modeValue
				_ = d.cur.Skip(magicVersionEndSkip)
				return nil
			}

		case modeValue:
			if bytes.Equal(chunk, chunkZero) {
				second, err := d.cur.Read(2)
				if err != nil {
					log.Printf("magic version section: input ends at offset %d", d.cur.Position())
					return nil
				}
				if bytes.Equal(second, chunkZero) {
					if err := d.finishValue(); err != nil {
						return err
					}
					d.mode = modeNullRun
				}
				// a non-zero second chunk is consumed and dropped
				continue
			}
			d.valueBuf = append(d.valueBuf, chunk...)

		case modeNullRun:
			d.checkThreatStatus(chunk)
			started, run, err := d.confirmRun(chunk)
			if err == ErrEndOfInput {
				log.Printf("magic version section: input ends at offset %d", d.cur.Position())
				return nil
			}
			if err != nil {
				return err
			}
			if started {
				d.nameBuf = append(d.nameBuf, run...)
				d.mode = modeKey
			}
		}
	}
}

// endName finalizes the pending field name in the General section and
// dispatches on it. Time fields read their FILETIME value right away and
// the ThreatTracking fields pull theirs out of the surrounding null run;
// anything else registers empty and waits for its value. Names repeating
// the magic version header are stray and dropped.
func (d *decoder) endName() error {
	text, err := decodeText(d.nameBuf)
	if err != nil {
		return err
	}
	d.nameBuf = nil
	name := stripNulls(text)
	d.field = ""

	switch {
	case strings.Contains(first(name, 6), "Magic."):
		log.Printf("discarding stray magic version field %q", name)
		d.done = modeValue
	case strings.Contains(name, "Time"):
		ts, err := decodeTimestamp(d.cur)
		if err != nil {
			return err
		}
		d.rec.Set(name, ts)
		d.done = modeValue
	case strings.Contains(name, "ThreatTrackingThreatId"), strings.Contains(name, "ThreatTrackingSize"):
		raw, err := scanTrackingValue(d.cur)
		if err != nil {
			return err
		}
		d.rec.Set(name, byteSwapUint(raw))
		d.done = modeValue
	case strings.Contains(name, "ThreatTrackingSigSeq"):
		raw, err := scanTrackingValue(d.cur)
		if err != nil {
			return err
		}
		d.rec.Set(name, "0x0000"+byteSwapHex(raw))
		d.done = modeValue
	default:
		d.rec.Set(name, "")
		d.field = name
		d.done = modeKey
	}
	d.mode = modeNullRun
	return nil
}

// endValue finalizes the pending value in the General section. A value that
// starts like a field name means the null run before it hid a field
// boundary: the text becomes the next field name, the active field keeps an
// empty value, and tracking names found this way read their value
// immediately.
func (d *decoder) endValue() error {
	text, err := decodeText(d.valueBuf)
	if err != nil {
		return err
	}
	d.valueBuf = nil
	value := stripNulls(text)

	head := first(value, 6)
	if strings.Contains(head, "Threat") || strings.Contains(head, "regkey") {
		log.Printf("value %q of field %q looks like a field name, re-keying", value, d.field)
		d.rec.Set(d.field, "")
		d.rec.Set(value, "")
		d.field = value
		d.done = modeKey
		if strings.Contains(d.field, "ThreatTrackingThreatId") || strings.Contains(d.field, "ThreatTrackingSize") {
			raw, err := scanTrackingValue(d.cur)
			if err != nil {
				return err
			}
			d.rec.Set(d.field, byteSwapUint(raw))
			d.field = ""
			d.done = modeValue
		}
	} else {
		d.rec.Set(d.field, value)
		d.field = ""
		d.done = modeValue
	}
	d.mode = modeNullRun
	return nil
}

// general decodes the middle section, which carries most fields. Zero
// chunks finalize the pending name or value, null runs in between are
// scanned for the next printable run, and a line feed marker starts the
// section terminator unless the following bytes identify it as a false
// positive.
func (d *decoder) general() error {
	for {
		chunk, err := d.cur.Read(2)
		if err != nil {
			log.Printf("general section: input ends at offset %d", d.cur.Position())
			return nil
		}

		if d.mode == modeNullRun {
			d.checkThreatStatus(chunk)
			started, run, err := d.confirmRun(chunk)
			if err == ErrEndOfInput {
				log.Printf("general section: input ends at offset %d", d.cur.Position())
				return nil
			}
			if err != nil {
				return err
			}
			switch {
			case started && d.done == modeKey:
				d.valueBuf = append(d.valueBuf, run...)
				d.mode = modeValue
			case started:
				d.nameBuf = append(d.nameBuf, run...)
				d.mode = modeKey
			case isLineFeed(chunk):
				if err := d.cur.Skip(2); err != nil {
					return nil
				}
				four, err := d.cur.Read(4)
				if err != nil {
					return nil
				}
				if bytes.Equal(four, generalEndFalsePositives[0]) ||
					bytes.Equal(four, generalEndFalsePositives[1]) {
					continue
				}
				log.Printf("general section ends at offset %d", d.cur.Position())
				_ = d.cur.Skip(generalEndSkip)
				return nil
			}
			continue
		}

		// KEY and VALUE modes share the zero chunk terminator.
		if bytes.Equal(chunk, chunkZero) {
			if d.mode == modeKey {
				if err := d.endName(); err != nil {
					return err
				}
			} else {
				if err := d.endValue(); err != nil {
					return err
				}
			}
			continue
		}
		if d.mode == modeKey {
			d.nameBuf = append(d.nameBuf, chunk...)
		} else {
			d.valueBuf = append(d.valueBuf, chunk...)
		}
	}
}

// trailer decodes the last section. Fields here carry no names in the file,
// so confirmed runs map positionally onto trailerFields. This is the one
// place where an undecodable byte pair is survivable: the scan logs it and
// keeps going.
func (d *decoder) trailer() error {
	for {
		chunk, err := d.cur.Read(2)
		if err != nil {
			log.Printf("trailer section: input ends at offset %d", d.cur.Position())
			return nil
		}

		switch d.mode {
		case modeNullRun:
			if isLineFeed(chunk) {
				if err := d.cur.Skip(trailerMarkerSkip); err != nil {
					return nil
				}
				continue
			}
			started, run, err := d.confirmRun(chunk)
			if err == ErrEndOfInput {
				log.Printf("trailer section: input ends at offset %d", d.cur.Position())
				return nil
			}
			if err != nil {
				log.Printf("undecodable byte pair near offset %d, skipping: %v", d.cur.Position(), err)
				continue
			}
			if !started {
				continue
			}
			d.trailerIdx++
			if d.trailerIdx >= len(trailerFields) {
				return errors.Errorf("more than %d fields in trailer section", len(trailerFields))
			}
			d.field = trailerFields[d.trailerIdx]
			d.valueBuf = append(d.valueBuf[:0], run...)
			d.mode = modeValue

		case modeValue:
			if bytes.Equal(chunk, chunkZero) {
				text, err := decodeText(d.valueBuf)
				if err != nil {
					return err
				}
				d.valueBuf = nil
				d.rec.Set(d.field, stripNulls(text))
				d.mode = modeNullRun
				continue
			}
			d.valueBuf = append(d.valueBuf, chunk...)

		default:
			// a pass that ended mid name leaves KEY mode behind; such
			// chunks carry nothing here and are dropped
		}
	}
}

// flush stores a value that was still accumulating when the input ended.
// Embedded NULs stay in place because the value never finalized.
func (d *decoder) flush() error {
	if d.mode != modeValue || d.field == "" {
		return nil
	}
	text, err := decodeText(d.valueBuf)
	if err != nil {
		return err
	}
	d.rec.Set(d.field, text)
	return nil
}

// Decode decodes one DetectionHistory artifact from memory. The returned
// record holds the GUID first and all other fields in file order. An error
// rejects the artifact as a whole; there is no partial result.
func Decode(data []byte) (*Record, error) {
	cur := NewCursor(data)
	rec := NewRecord()

	guid, err := validateHeader(cur)
	if err != nil {
		return nil, err
	}
	rec.Set("GUID", guid)

	d := newDecoder(cur, rec)
	if err := d.magicVersion(); err != nil {
		return nil, err
	}
	if err := d.general(); err != nil {
		return nil, err
	}
	if err := d.trailer(); err != nil {
		return nil, err
	}
	if err := d.flush(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeFile reads path from fs and decodes it.
func DecodeFile(fs afero.Fs, path string) (*Record, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	return Decode(data)
}
