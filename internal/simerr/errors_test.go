package simerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := New(KindUnknownParameter, "parameter %d", 42)

	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatal("expected error to match ErrUnknownParameter")
	}
	if errors.Is(err, ErrUnknownTreatment) {
		t.Fatal("expected error not to match ErrUnknownTreatment")
	}
	if err.Error() != "UNKNOWN_PARAMETER: parameter 42" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestKindOfWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("loading case: %w", New(KindInvalidCaseData, "bad range"))

	if kind := KindOf(wrapped); kind != KindInvalidCaseData {
		t.Fatalf("expected %s, got %s", KindInvalidCaseData, kind)
	}
	if !errors.Is(wrapped, ErrInvalidCaseData) {
		t.Fatal("expected wrapped error to match ErrInvalidCaseData")
	}
	if kind := KindOf(errors.New("plain")); kind != "" {
		t.Errorf("expected empty kind for plain error, got %s", kind)
	}
}

func TestKindCode(t *testing.T) {
	if code := KindSessionStateConflict.Code(); code != "session_state_conflict" {
		t.Errorf("expected session_state_conflict, got %s", code)
	}
}
