package engine

import (
	"sync"

	"TradePilot/internal/domain/models"
)

// RecordWindow keeps the most recent market records for feature
// computation. Exactly one goroutine pushes; Snapshot may be called
// from any goroutine and returns a copy the caller owns.
type RecordWindow struct {
	mu   sync.Mutex
	buf  []models.MarketRecord
	head int
	n    int
}

func NewRecordWindow(size int) *RecordWindow {
	if size <= 0 {
		size = 600
	}
	return &RecordWindow{buf: make([]models.MarketRecord, size)}
}

// Push appends a record, evicting the oldest once the window is full.
func (w *RecordWindow) Push(rec models.MarketRecord) {
	w.mu.Lock()
	w.buf[w.head] = rec
	w.head = (w.head + 1) % len(w.buf)
	if w.n < len(w.buf) {
		w.n++
	}
	w.mu.Unlock()
}

// Len reports how many records the window currently holds.
func (w *RecordWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Snapshot returns the held records in arrival order, oldest first.
func (w *RecordWindow) Snapshot() []models.MarketRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.MarketRecord, 0, w.n)
	start := w.head - w.n
	if start < 0 {
		start += len(w.buf)
	}
	for i := 0; i < w.n; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}
