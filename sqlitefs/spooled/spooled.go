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

// Package spooled buffers written data in memory and rolls over to a
// temporary file once the data exceeds a size limit.
package spooled

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
)

// TemporaryFile collects writes in memory until maxMemory bytes are
// reached, any further writes go to a temporary file on disk. The first
// Read rewinds to the start, so a TemporaryFile written once can be
// read back once.
type TemporaryFile struct {
	maxMemory int64
	written   int64
	buffer    *bytes.Buffer
	file      *os.File
	reading   bool
}

// New creates a TemporaryFile with the given memory limit. The second
// return value removes the rollover file and must always be called.
func New(maxMemory int64) (*TemporaryFile, func() error) {
	t := &TemporaryFile{buffer: &bytes.Buffer{}, maxMemory: maxMemory}
	return t, t.Close
}

func (t *TemporaryFile) Write(p []byte) (n int, err error) {
	if t.file != nil {
		return t.file.Write(p)
	}

	t.written += int64(len(p))
	if t.written > t.maxMemory {
		if err := t.rollover(); err != nil {
			return 0, err
		}
		return t.file.Write(p)
	}

	return t.buffer.Write(p)
}

func (t *TemporaryFile) Read(p []byte) (n int, err error) {
	if t.file == nil {
		return t.buffer.Read(p)
	}

	if !t.reading {
		t.reading = true
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
	}
	return t.file.Read(p)
}

// Size returns the number of buffered bytes.
func (t *TemporaryFile) Size() (int64, error) {
	if t.file != nil {
		info, err := t.file.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	return int64(t.buffer.Len()), nil
}

// Close discards the buffered data.
func (t *TemporaryFile) Close() error {
	t.buffer.Reset()
	if t.file == nil {
		return nil
	}
	if err := t.file.Close(); err != nil {
		return err
	}
	return os.Remove(t.file.Name())
}

func (t *TemporaryFile) rollover() error {
	file, err := ioutil.TempFile("", "spooled")
	if err != nil {
		return fmt.Errorf("could not create rollover file: %w", err)
	}
	t.file = file
	if _, err := io.Copy(t.file, t.buffer); err != nil {
		return fmt.Errorf("could not fill rollover file: %w", err)
	}
	t.buffer.Reset()
	return nil
}
