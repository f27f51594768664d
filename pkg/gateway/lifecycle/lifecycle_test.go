package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle_Draining(t *testing.T) {
	var l Lifecycle
	if l.IsDraining() {
		t.Fatalf("zero value is draining")
	}
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.StartDraining(first)
	l.StartDraining(first.Add(time.Minute))

	since, ok := l.DrainingSince()
	if !ok || !since.Equal(first) {
		t.Fatalf("DrainingSince() = %v, %v; want %v, true", since, ok, first)
	}

	var nilL *Lifecycle
	if nilL.IsDraining() {
		t.Fatalf("nil lifecycle is draining")
	}
}
