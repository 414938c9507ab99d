package engine

import (
	"testing"

	"TradePilot/internal/domain/models"
)

func TestWindowEvictsOldest(t *testing.T) {
	w := NewRecordWindow(3)
	for i := 1; i <= 5; i++ {
		w.Push(models.MarketRecord{Last: float64(i)})
	}
	if w.Len() != 3 {
		t.Fatalf("len = %d, want 3", w.Len())
	}
	snap := w.Snapshot()
	want := []float64{3, 4, 5}
	for i, rec := range snap {
		if rec.Last != want[i] {
			t.Fatalf("snapshot[%d].Last = %v, want %v", i, rec.Last, want[i])
		}
	}
}

func TestWindowSnapshotIsCopy(t *testing.T) {
	w := NewRecordWindow(4)
	w.Push(models.MarketRecord{Last: 1})
	snap := w.Snapshot()
	snap[0].Last = 99
	if got := w.Snapshot()[0].Last; got != 1 {
		t.Fatalf("mutating a snapshot leaked into the window: %v", got)
	}
}

func TestWindowPartialFill(t *testing.T) {
	w := NewRecordWindow(10)
	w.Push(models.MarketRecord{Last: 7})
	w.Push(models.MarketRecord{Last: 8})
	snap := w.Snapshot()
	if len(snap) != 2 || snap[0].Last != 7 || snap[1].Last != 8 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
