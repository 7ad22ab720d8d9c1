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
	"sync"
)

// fieldMap tracks the union of JSON fields seen per element type. The
// changed flag marks types whose views need to be recreated on Close.
type fieldMap struct {
	sync.RWMutex
	changed bool
	types   map[string]map[string]bool
}

func newFieldMap() *fieldMap {
	return &fieldMap{
		changed: false,
		types:   map[string]map[string]bool{},
	}
}

func (fm *fieldMap) all() map[string]map[string]bool {
	fm.Lock()
	defer fm.Unlock()
	return fm.types
}

func (fm *fieldMap) addAll(name string, fields map[string]interface{}) {
	fm.Lock()
	if _, ok := fm.types[name]; !ok {
		fm.types[name] = map[string]bool{}
	}
	for field := range fields {
		if _, ok := fm.types[name][field]; !ok {
			fm.types[name][field] = true
			fm.changed = true
		}
	}
	fm.Unlock()
}

// seed records fields of an existing view without marking the type changed.
func (fm *fieldMap) seed(name string, fields []string) {
	fm.Lock()
	if _, ok := fm.types[name]; !ok {
		fm.types[name] = map[string]bool{}
	}
	for _, field := range fields {
		fm.types[name][field] = true
	}
	fm.Unlock()
}
