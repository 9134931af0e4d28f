package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if got := CodeOf(ErrInvalid("x")); got != ErrCodeInvalidArgument {
		t.Errorf("CodeOf(ErrInvalid) = %s", got)
	}
	if got := CodeOf(fmt.Errorf("wrapped: %w", ErrConflict("x"))); got != ErrCodeConflict {
		t.Errorf("CodeOf(wrapped conflict) = %s", got)
	}
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("CodeOf(plain error) = %s", got)
	}
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalid("bad input"), 400},
		{ErrNotFound("gone"), 404},
		{ErrInvalidState(OpLend, StateDisposed), 409},
		{ErrConflict("lock timeout"), 409},
		{ErrConfig("missing state"), 500},
		{ErrInternal("boom"), 500},
		{errors.New("plain"), 500},
	}
	for _, tt := range tests {
		if got := ToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("ToHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInvalidStateMessageCarriesCurrentState(t *testing.T) {
	err := ErrInvalidState(OpLend, StateInRepair)
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("expected DomainError")
	}
	if de.Code != ErrCodeInvalidState {
		t.Errorf("code = %s", de.Code)
	}
	want := `operation lend not allowed in state "in_repair"`
	if de.Message != want {
		t.Errorf("message = %q, want %q", de.Message, want)
	}
}
