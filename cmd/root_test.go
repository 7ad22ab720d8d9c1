// Copyright (c) 2019 Siemens AG
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

package cmd

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/detectionhistory"
)

// testArtifact is a minimal DetectionHistory file, magic header and GUID
// only.
func testArtifact() []byte {
	b := []byte{0x08, 0x00, 0x00, 0x00, 0x08, 0x00}
	b = append(b, make([]byte, 18)...)
	b = append(b,
		0xd8, 0x29, 0x6a, 0x8a,
		0x84, 0xbb,
		0xdd, 0x42,
		0xb4, 0xae,
		0x37, 0xa6, 0xf0, 0xc1, 0xd2, 0x2f,
	)
	return append(b, make([]byte, 8)...)
}

func TestParseCommand(t *testing.T) {
	dir, err := ioutil.TempDir("", "detectionhistory")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, testGUID)
	if err := ioutil.WriteFile(input, testArtifact(), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")

	command := Parse()
	args := []string{"--output", outDir, input}
	if err := command.Flags().Parse(args); err != nil {
		t.Fatal(err)
	}

	var runErr error
	out := stdout(func() { runErr = command.RunE(command, args) })
	if runErr != nil {
		t.Fatalf("RunE() error = %v", runErr)
	}
	if !strings.Contains(string(out), "1 of 1") {
		t.Errorf("RunE() output = %q, want a summary for one file", out)
	}

	data, err := ioutil.ReadFile(filepath.Join(outDir, testGUID+".json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(data, "GUID").String(); got != testGUID {
		t.Errorf("RunE() GUID = %v, want %v", got, testGUID)
	}
}

func TestImportCommand(t *testing.T) {
	dir, err := ioutil.TempDir("", "detectionhistory")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, testGUID)
	if err := ioutil.WriteFile(input, testArtifact(), 0644); err != nil {
		t.Fatal(err)
	}
	storePath := filepath.Join(dir, "case.db")

	command := Import()
	args := []string{input, storePath}
	if err := command.Flags().Parse(args); err != nil {
		t.Fatal(err)
	}

	var runErr error
	out := stdout(func() { runErr = command.RunE(command, args) })
	if runErr != nil {
		t.Fatalf("RunE() error = %v", runErr)
	}
	if !strings.Contains(string(out), "1 of 1") {
		t.Errorf("RunE() output = %q, want a summary for one file", out)
	}

	store, err := detectionhistory.Open(storePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	detections, err := store.Select([]map[string]string{{"type": "detection"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(detections) != 1 {
		t.Fatalf("RunE() stored %d detections, want 1", len(detections))
	}
	if got := gjson.GetBytes(detections[0], "GUID").String(); got != testGUID {
		t.Errorf("RunE() GUID = %v, want %v", got, testGUID)
	}

	runs, err := store.Select([]map[string]string{{"type": "run"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("RunE() stored %d runs, want 1", len(runs))
	}
	if got := gjson.GetBytes(runs[0], "tool").String(); got != "detectionhistory" {
		t.Errorf("RunE() run tool = %v, want detectionhistory", got)
	}
	if got := gjson.GetBytes(runs[0], "parsed").Int(); got != 1 {
		t.Errorf("RunE() run parsed = %v, want 1", got)
	}
}

func TestCreateCommand(t *testing.T) {
	dir, err := ioutil.TempDir("", "detectionhistory")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	storePath := filepath.Join(dir, "case.db")

	create := Create()
	if err := create.Flags().Parse([]string{storePath}); err != nil {
		t.Fatal(err)
	}
	if err := create.RunE(create, []string{storePath}); err != nil {
		t.Fatalf("RunE() error = %v", err)
	}

	validate := Validate()
	if err := validate.Flags().Parse([]string{storePath}); err != nil {
		t.Fatal(err)
	}
	if err := validate.RunE(validate, []string{storePath}); err != nil {
		t.Errorf("RunE() error = %v", err)
	}
}
