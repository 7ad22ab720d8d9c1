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
	"log"

	"github.com/google/uuid"
)

// JSONRecord is a single entry in the database.
type JSONRecord []byte

// MarshalJSON returns the stored JSON unchanged.
func (r JSONRecord) MarshalJSON() ([]byte, error) {
	return r, nil
}

type Element map[string]interface{}

// Run documents one invocation of the parser against a set of
// DetectionHistory files.
type Run struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Tool    string        `json:"tool"`
	Version string        `json:"version,omitempty"`
	Input   string        `json:"input"`
	Output  string        `json:"output,omitempty"`
	Parsed  int           `json:"parsed"`
	Failed  int           `json:"failed"`
	Total   int           `json:"total"`
	Elapsed string        `json:"elapsed,omitempty"`
	Errors  []interface{} `json:"errors,omitempty"`
}

// NewRun creates a new run element.
func NewRun(tool string) *Run {
	return &Run{ID: "run--" + uuid.New().String(), Type: "run", Tool: tool}
}

// AddError adds an error string to a Run and returns this Run.
func (r *Run) AddError(err string) *Run {
	log.Print(err)
	r.Errors = append(r.Errors, err)
	return r
}
