package loans

import (
	"database/sql"
	"testing"
)

func assetLine(lent, returned, lost uint) Line {
	return Line{AssetID: sql.NullInt64{Int64: 1, Valid: true}, Lent: lent, Returned: returned, Lost: lost}
}

func lotLine(lent, returned, lost uint) Line {
	return Line{LotID: sql.NullInt64{Int64: 1, Valid: true}, Lent: lent, Returned: returned, Lost: lost}
}

func TestRecomputeStatus(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
		want  string
	}{
		{"no motion", []Line{lotLine(5, 0, 0), assetLine(1, 0, 0)}, StatusPending},
		{"partial return", []Line{lotLine(5, 2, 0), assetLine(1, 0, 0)}, StatusPartiallyReturned},
		{"loss-only partial stays pending", []Line{lotLine(5, 0, 1)}, StatusPending},
		{"loss then return", []Line{lotLine(5, 1, 1)}, StatusPartiallyReturned},
		{"all returned", []Line{lotLine(5, 5, 0), assetLine(1, 1, 0)}, StatusCompleted},
		{"mixed return and loss", []Line{lotLine(5, 3, 2), assetLine(1, 0, 1)}, StatusCompleted},
		{"one line outstanding", []Line{lotLine(5, 5, 0), lotLine(3, 0, 0)}, StatusPartiallyReturned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recomputeStatus(tt.lines); got != tt.want {
				t.Errorf("recomputeStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateSettlement(t *testing.T) {
	tests := []struct {
		name    string
		line    Line
		ret     uint
		loss    uint
		wantErr bool
	}{
		{"zero settlement", lotLine(5, 0, 0), 0, 0, true},
		{"exceeds outstanding", lotLine(5, 3, 0), 2, 1, true},
		{"exact outstanding", lotLine(5, 3, 0), 1, 1, false},
		{"partial", lotLine(5, 0, 0), 2, 0, false},
		{"asset one unit return", assetLine(1, 0, 0), 1, 0, false},
		{"asset one unit loss", assetLine(1, 0, 0), 0, 1, false},
		{"asset both set", assetLine(1, 0, 0), 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSettlement(tt.line, tt.ret, tt.loss)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSettlement() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettled(t *testing.T) {
	if settled(lotLine(5, 2, 0)) {
		t.Error("line with outstanding quantity reported settled")
	}
	if !settled(lotLine(5, 3, 2)) {
		t.Error("fully consumed line not reported settled")
	}
	if !settled(assetLine(1, 0, 1)) {
		t.Error("lost asset line not reported settled")
	}
}
