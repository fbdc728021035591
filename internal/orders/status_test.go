package orders

import (
	"testing"
	"time"
)

func TestValid(t *testing.T) {
	for _, s := range []Status{StatusNotOrdered, StatusOrdered, StatusArrived, StatusCompleted} {
		if !Valid(s) {
			t.Errorf("Valid(%q) = false", s)
		}
	}
	for _, s := range []Status{"", "shipped", "PAID", "Arrived"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true", s)
		}
	}
}

func TestFoldReproducesCurrentStatus(t *testing.T) {
	at := func(min int) time.Time { return time.Date(2026, 3, 1, 10, min, 0, 0, time.UTC) }
	history := []StatusChange{
		{PreviousStatus: StatusNotOrdered, NewStatus: StatusOrdered, ChangedAt: at(0)},
		{PreviousStatus: StatusOrdered, NewStatus: StatusArrived, ChangedAt: at(5)},
		{PreviousStatus: StatusArrived, NewStatus: StatusCompleted, ChangedAt: at(9)},
	}
	if got := Fold(StatusNotOrdered, history); got != StatusCompleted {
		t.Fatalf("Fold = %q, want %q", got, StatusCompleted)
	}
	// every prefix of the history folds to the status its last row recorded
	for i := range history {
		want := history[i].NewStatus
		if got := Fold(StatusNotOrdered, history[:i+1]); got != want {
			t.Errorf("Fold(history[:%d]) = %q, want %q", i+1, got, want)
		}
	}
	if got := Fold(StatusNotOrdered, nil); got != StatusNotOrdered {
		t.Errorf("Fold(empty) = %q, want initial", got)
	}
}
