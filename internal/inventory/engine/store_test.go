package engine

import "testing"

func TestFormatInternalCode(t *testing.T) {
	tests := []struct {
		station string
		kind    string
		seq     uint64
		want    string
	}{
		{"ST01", "asset", 1, "ST01-A-000001"},
		{"ST01", "lot", 42, "ST01-L-000042"},
		{"HQ", "asset", 999999, "HQ-A-999999"},
		{"HQ", "asset", 1000000, "HQ-A-1000000"}, // 6桁を超えても衝突しない
	}
	for _, tt := range tests {
		if got := FormatInternalCode(tt.station, tt.kind, tt.seq); got != tt.want {
			t.Errorf("FormatInternalCode(%q, %q, %d) = %q, want %q", tt.station, tt.kind, tt.seq, got, tt.want)
		}
	}
}
