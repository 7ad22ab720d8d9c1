package detectionhistory

import "testing"

func Test_validateSchema(t *testing.T) {
	valid := JSONRecord(`{
		"id": "detection--920d7c41-0fef-4cf8-bce2-ead120f6b506",
		"type": "detection",
		"name": "` + testGUID + `",
		"GUID": "` + testGUID + `",
		"ThreatName": "Trojan",
		"ThreatTrackingSigSeq": "0x0000e0845a"
	}`)
	missingGUID := JSONRecord(`{
		"id": "detection--920d7c41-0fef-4cf8-bce2-ead120f6b506",
		"type": "detection",
		"name": "x"
	}`)
	badSigSeq := JSONRecord(`{
		"id": "detection--920d7c41-0fef-4cf8-bce2-ead120f6b506",
		"type": "detection",
		"name": "x",
		"GUID": "` + testGUID + `",
		"ThreatTrackingSigSeq": "e0845a"
	}`)
	validRun := JSONRecord(`{
		"id": "run--920d7c41-0fef-4cf8-bce2-ead120f6b506",
		"type": "run",
		"tool": "detectionhistory"
	}`)
	runWithoutTool := JSONRecord(`{
		"id": "run--920d7c41-0fef-4cf8-bce2-ead120f6b506",
		"type": "run"
	}`)

	type args struct {
		element JSONRecord
	}
	tests := []struct {
		name      string
		args      args
		wantFlaws int
		wantErr   bool
	}{
		{"valid detection", args{valid}, 0, false},
		{"missing GUID", args{missingGUID}, 1, false},
		{"bad signature sequence", args{badSigSeq}, 1, false},
		{"valid run", args{validRun}, 0, false},
		{"run without tool", args{runWithoutTool}, 1, false},
		{"unknown type", args{JSONRecord(`{"type": "note", "text": "x"}`)}, 0, false},
		{"no type", args{JSONRecord(`{"text": "x"}`)}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupSchemaValidation()
			gotFlaws, err := validateSchema(tt.args.element)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchema() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if len(gotFlaws) != tt.wantFlaws {
				t.Errorf("validateSchema() = %v, want %v flaws", gotFlaws, tt.wantFlaws)
			}
		})
	}
}
