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
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

type memorySink struct {
	mu   sync.Mutex
	recs map[string]*Record
}

func (s *memorySink) Insert(artifact Artifact, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recs == nil {
		s.recs = map[string]*Record{}
	}
	s.recs[artifact.Name] = rec
	return nil
}

type failingSink struct{}

func (failingSink) Insert(Artifact, *Record) error {
	return errors.New("sink full")
}

func testArtifactBytes() []byte {
	return bytes.Join([][]byte{
		testHeader(testGUIDBytes),
		wide("Magic.Version"), {0x3A, 0x00},
		wide("1.2"), {0x00, 0x00, 0x00, 0x00},
	}, nil)
}

func TestProcessor_Process(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, path := range []string{"/in/a", "/in/b"} {
		if err := afero.WriteFile(fs, path, testArtifactBytes(), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := afero.WriteFile(fs, "/in/c", []byte{0xFF, 0xFF}, 0644); err != nil {
		t.Fatal(err)
	}

	artifacts := []Artifact{
		NewArtifact("/in/a"),
		NewArtifact("/in/c"),
		NewArtifact("/in/b"),
	}

	sink := &memorySink{}
	p := &Processor{FS: fs, Workers: 2}
	summary := p.Process(artifacts, sink)

	if summary.Parsed != 2 || summary.Failed != 1 || summary.Total != 3 {
		t.Errorf("Process() summary = %+v, want 2 parsed, 1 failed, 3 total", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "/in/c") {
		t.Errorf("Process() errors = %v, want one error for /in/c", summary.Errors)
	}

	for _, name := range []string{"a", "b"} {
		rec, ok := sink.recs[name]
		if !ok {
			t.Fatalf("Process() record %s missing", name)
		}
		if got := rec.GetString("GUID"); got != testGUID {
			t.Errorf("Process() record %s GUID = %v, want %v", name, got, testGUID)
		}
	}
	if _, ok := sink.recs["c"]; ok {
		t.Error("Process() stored a record for the broken artifact")
	}
}

func TestProcessor_ProcessDefaultWorkers(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in/a", testArtifactBytes(), 0644); err != nil {
		t.Fatal(err)
	}

	sink := &memorySink{}
	p := &Processor{FS: fs}
	summary := p.Process([]Artifact{NewArtifact("/in/a")}, sink)

	if summary.Parsed != 1 || summary.Failed != 0 || summary.Total != 1 {
		t.Errorf("Process() summary = %+v, want 1 parsed, 0 failed, 1 total", summary)
	}
}

func TestProcessor_ProcessSinkError(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in/a", testArtifactBytes(), 0644); err != nil {
		t.Fatal(err)
	}

	p := &Processor{FS: fs, Workers: 1}
	summary := p.Process([]Artifact{NewArtifact("/in/a")}, failingSink{})

	if summary.Parsed != 0 || summary.Failed != 1 {
		t.Errorf("Process() summary = %+v, want 0 parsed, 1 failed", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "sink full") {
		t.Errorf("Process() errors = %v, want the sink error", summary.Errors)
	}
}
