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
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Artifact is one DetectionHistory file to decode. Name is the base name of
// the file and doubles as the display and output name.
type Artifact struct {
	Path string
	Name string
}

// guidNamePattern is the naming convention of DetectionHistory files, a GUID
// at the start of the file name.
var guidNamePattern = regexp.MustCompile(`^[0-9a-fA-F]{8}(-[0-9a-fA-F]{4}){3}-[0-9a-fA-F]{12}`)

// NewArtifact builds an Artifact for path.
func NewArtifact(path string) Artifact {
	return Artifact{Path: path, Name: filepath.Base(path)}
}

// Discover lists the DetectionHistory artifacts under input. A file input
// yields exactly that file. A directory input requires recursive and walks
// the tree for files without an extension whose name starts with a GUID;
// greedy drops the GUID requirement and accepts every extensionless file.
func Discover(fs afero.Fs, input string, recursive, greedy bool) ([]Artifact, error) {
	info, err := fs.Stat(input)
	if err != nil {
		return nil, errors.Wrapf(err, "%s is not a valid file or directory", input)
	}

	if !info.IsDir() {
		return []Artifact{NewArtifact(filepath.Clean(input))}, nil
	}
	if !recursive {
		return nil, errors.Errorf("%s is a directory, use the recursive flag to parse a directory", input)
	}

	var artifacts []Artifact
	err = afero.Walk(fs, input, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.Contains(info.Name(), ".") {
			return nil
		}
		if !greedy && !guidNamePattern.MatchString(info.Name()) {
			return nil
		}
		artifacts = append(artifacts, NewArtifact(path))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not search %s", input)
	}
	return artifacts, nil
}
