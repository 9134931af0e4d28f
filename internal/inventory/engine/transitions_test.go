package engine

import "testing"

func TestCanApply(t *testing.T) {
	tests := []struct {
		op      Op
		current string
		want    bool
	}{
		{OpLend, StateAvailable, true},
		{OpLend, StateOnLoan, false},
		{OpLend, StateInRepair, false},
		{OpLend, StateDisposed, false},

		{OpReturn, StateOnLoan, true},
		{OpReturn, StateAvailable, false},

		{OpTransfer, StateAvailable, true},
		{OpTransfer, StateOnLoan, false},
		{OpTransfer, StateAnnulled, false},

		{OpAnnul, StateAvailable, true},
		{OpAnnul, StateOnLoan, false},
		{OpAnnul, StateLost, false},

		{OpDispose, StateAvailable, true},
		{OpDispose, StatePendingReview, true},
		{OpDispose, StateOnLoan, false},
		{OpDispose, StateDisposed, false},

		{OpReportLost, StateAvailable, true},
		{OpReportLost, StateOnLoan, true},
		{OpReportLost, StateLost, false},

		{OpAdjust, StateAvailable, true},
		{OpAdjust, StateOnLoan, false},

		{OpConsume, StateAvailable, true},
		{OpConsume, StateAnnulled, false},

		{OpClaim, StateAvailable, true},
		{OpClaim, StatePendingReview, true},
		{OpClaim, StateOnLoan, false},
		{OpClaim, StateInRepair, false},

		{OpRelease, StateInRepair, true},
		{OpRelease, StateAvailable, false},

		{OpFlagReview, StateInRepair, true},
		{OpFlagReview, StateAvailable, false},
	}
	for _, tt := range tests {
		if got := CanApply(tt.op, tt.current); got != tt.want {
			t.Errorf("CanApply(%s, %s) = %v, want %v", tt.op, tt.current, got, tt.want)
		}
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	terminals := []string{StateAnnulled, StateDisposed, StateLost}
	ops := []Op{OpTransfer, OpLend, OpReturn, OpAnnul, OpDispose, OpReportLost, OpAdjust, OpConsume, OpClaim, OpRelease, OpFlagReview}
	for _, st := range terminals {
		if !IsTerminal(st) {
			t.Errorf("IsTerminal(%s) = false", st)
		}
		for _, op := range ops {
			if CanApply(op, st) {
				t.Errorf("CanApply(%s, %s) = true on terminal state", op, st)
			}
		}
	}
	if IsTerminal(StateAvailable) {
		t.Error("available must not be terminal")
	}
}
