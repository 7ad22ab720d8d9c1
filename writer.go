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
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const jsonExt = ".json"

// Writer serializes decoded records as indented JSON files below one output
// directory. It is safe for concurrent use by batch workers. Artifacts from
// different directories can share a base name, so a taken name gets a
// numbered suffix (name_0.json, name_1.json, ...) instead of being
// overwritten.
type Writer struct {
	fs  afero.Fs
	dir string

	fileMutex sync.Mutex
}

// NewWriter returns a Writer for dir, creating the directory if needed.
func NewWriter(fs afero.Fs, dir string) (*Writer, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create output directory %s", dir)
	}
	return &Writer{fs: fs, dir: dir}, nil
}

// Insert writes the record of one artifact as <Name>.json.
func (w *Writer) Insert(artifact Artifact, rec *Record) error {
	_, err := w.Write(artifact, rec)
	return err
}

// Write stores the record of one artifact and returns the path written.
func (w *Writer) Write(artifact Artifact, rec *Record) (string, error) {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return "", errors.Wrapf(err, "could not serialize %s", artifact.Name)
	}

	w.fileMutex.Lock()
	defer w.fileMutex.Unlock()

	outPath := filepath.Join(w.dir, artifact.Name+jsonExt)
	base := outPath[:len(outPath)-len(jsonExt)]
	exists, err := afero.Exists(w.fs, outPath)
	if err != nil {
		return "", err
	}
	for i := 0; exists; i++ {
		outPath = fmt.Sprintf("%s_%d%s", base, i, jsonExt)
		exists, err = afero.Exists(w.fs, outPath)
		if err != nil {
			return "", err
		}
	}

	if err := afero.WriteFile(w.fs, outPath, data, 0644); err != nil {
		return "", errors.Wrapf(err, "could not write %s", outPath)
	}
	return outPath, nil
}
