package features

import "sync"

// Window keeps the most recent readings of a live stream.
type Window struct {
	buf []VitalReading
	max int
	mu  sync.RWMutex
}

func NewWindow(n int) *Window {
	if n <= 0 {
		n = 1
	}
	return &Window{max: n}
}

// Add appends a reading, evicting the oldest once the window is full.
func (w *Window) Add(r VitalReading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == w.max {
		w.buf = w.buf[1:]
	}
	w.buf = append(w.buf, r)
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.buf)
}

// Snapshot returns a copy of the buffered readings, oldest first.
func (w *Window) Snapshot() []VitalReading {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]VitalReading, len(w.buf))
	copy(out, w.buf)
	return out
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = nil
}
