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
	"fmt"
	"io/ioutil"
	"log"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Sink consumes the decoded record of one artifact. Implementations must be
// safe for concurrent use, the batch workers share one sink.
type Sink interface {
	Insert(artifact Artifact, rec *Record) error
}

// Summary sums up one batch run.
type Summary struct {
	Parsed  int
	Failed  int
	Total   int
	Elapsed time.Duration
	Errors  []string
}

// Report prints the closing summary line. It prints even when logging is
// silenced.
func (s Summary) Report(output string) {
	fmt.Printf("%d of %d DetectionHistory files were successfully parsed, with output written to %q in %s.\n",
		s.Parsed, s.Total, output, s.Elapsed.Round(time.Millisecond))
}

// Silence drops all non critical log output for this process. Found file
// announcements, per artifact errors and the final summary keep printing.
func Silence() {
	log.SetOutput(ioutil.Discard)
}

const defaultWorkers = 4

// Processor decodes batches of artifacts with a pool of workers. Decoding
// one artifact shares no state with any other, so the workers coordinate
// only through the job channel and the shared sink.
type Processor struct {
	FS      afero.Fs
	Workers int
}

// Process decodes all artifacts and hands each record to sink. A failed
// artifact is reported and counted, the batch always continues with the
// next file.
func (p *Processor) Process(artifacts []Artifact, sink Sink) Summary {
	start := time.Now()

	workers := p.Workers
	if workers < 1 {
		workers = defaultWorkers
	}

	var mu sync.Mutex
	failed := 0
	var errs []string

	jobs := make(chan Artifact)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for artifact := range jobs {
				if err := p.processArtifact(artifact, sink); err != nil {
					fmt.Printf("ERROR: %v in %s. Moving on to next file...\n", err, artifact.Path)
					mu.Lock()
					failed++
					errs = append(errs, fmt.Sprintf("%v in %s", err, artifact.Path))
					mu.Unlock()
				}
			}
		}()
	}

	announce := len(artifacts) > 1
	for _, artifact := range artifacts {
		if announce {
			fmt.Printf("Found DetectionHistory file %q.\n", artifact.Name)
		}
		jobs <- artifact
	}
	close(jobs)
	wg.Wait()

	return Summary{
		Parsed:  len(artifacts) - failed,
		Failed:  failed,
		Total:   len(artifacts),
		Elapsed: time.Since(start),
		Errors:  errs,
	}
}

func (p *Processor) processArtifact(artifact Artifact, sink Sink) error {
	rec, err := DecodeFile(p.FS, artifact.Path)
	if err != nil {
		return err
	}
	return sink.Insert(artifact, rec)
}
