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
	"reflect"
	"testing"
)

func TestRecord_Set(t *testing.T) {
	rec := NewRecord()
	rec.Set("ThreatName", "Trojan:Win32/Test")
	rec.Set("ThreatStatusID", uint64(3))
	rec.Set("ThreatName", "Trojan:Win32/Other")

	if rec.Len() != 2 {
		t.Errorf("Record.Len() = %v, want 2", rec.Len())
	}
	if got := rec.GetString("ThreatName"); got != "Trojan:Win32/Other" {
		t.Errorf("Record.GetString() = %v, want Trojan:Win32/Other", got)
	}
	if got := rec.Names(); !reflect.DeepEqual(got, []string{"ThreatName", "ThreatStatusID"}) {
		t.Errorf("Record.Names() = %v, want overwrite to keep position", got)
	}
}

func TestRecord_Get(t *testing.T) {
	rec := NewRecord()
	rec.Set("ThreatTrackingSize", uint64(9728))

	got, ok := rec.Get("ThreatTrackingSize")
	if !ok || got != uint64(9728) {
		t.Errorf("Record.Get() = %v, %v, want 9728, true", got, ok)
	}
	if _, ok := rec.Get("missing"); ok {
		t.Error("Record.Get() found a missing field")
	}
	if got := rec.GetString("ThreatTrackingSize"); got != "" {
		t.Errorf("Record.GetString() = %v, want empty string for non string value", got)
	}
}

func TestRecord_MarshalJSON(t *testing.T) {
	rec := NewRecord()
	rec.Set("GUID", "8a6a29d8-bb84-42dd-b4ae-37a6f0c1d22f")
	rec.Set("ThreatName", "Trojan:Win32/Test")
	rec.Set("ThreatTrackingThreatId", uint64(2147519003))

	want := `{"GUID":"8a6a29d8-bb84-42dd-b4ae-37a6f0c1d22f",` +
		`"ThreatName":"Trojan:Win32/Test",` +
		`"ThreatTrackingThreatId":2147519003}`

	got, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Errorf("Record.MarshalJSON() = %v, want %v", string(got), want)
	}

	// insertion order survives, alphabetical order does not apply
	rec2 := NewRecord()
	rec2.Set("b", "2")
	rec2.Set("a", "1")
	got2, err := json.Marshal(rec2)
	if err != nil {
		t.Fatal(err)
	}
	if string(got2) != `{"b":"2","a":"1"}` {
		t.Errorf("Record.MarshalJSON() = %v, want insertion order", string(got2))
	}
}
